package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mahaj/logchat/pkg/api"
	"github.com/mahaj/logchat/pkg/auth"
	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/config"
	"github.com/mahaj/logchat/pkg/inbox"
	"github.com/mahaj/logchat/pkg/logging"
	"github.com/mahaj/logchat/pkg/metrics"
	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/snowflake"
	"github.com/mahaj/logchat/pkg/transcript"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:], os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, stdin io.Reader, stdout io.Writer) (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "api service address")
	fs.StringVar(&cfg.WSURL, "ws", cfg.WSURL, "real-time gateway websocket url")
	fs.StringVar(&cfg.User, "user", cfg.User, "login handle")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "login password")
	dm := fs.String("dm", "", "handle of the friend to chat with")
	list := fs.Bool("list", false, "print recent conversations and exit")
	fs.BoolVar(&cfg.StrictOrder, "strict", cfg.StrictOrder, "order the transcript by message date")
	if err := fs.Parse(args); err != nil {
		return exitConfig, err
	}
	if *dm == "" && !*list {
		return exitConfig, errors.New("either -dm or -list is required")
	}

	log := logging.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.New(cfg.APIURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		api.WithLogger(log),
	)
	handle, err := authenticate(ctx, cfg, client)
	if err != nil {
		return exitRuntime, err
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, log)
		defer srv.Close()
	}

	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return exitConfig, err
	}

	b, err := buildBackends(ctx, cfg, client, handle, ids, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("close backends", "err", err)
		}
	}()

	convs, err := loadInbox(ctx, b.recent, handle)
	if err != nil {
		if *list {
			return exitRuntime, err
		}
		log.Warn("recent conversations unavailable", "err", err)
	}
	if *list {
		renderInbox(stdout, convs)
		return exitOK, nil
	}

	var opts []transcript.Option
	if cfg.StrictOrder {
		opts = append(opts, transcript.WithTimestampOrdering())
	}
	if cfg.TranscriptLog != "" {
		f, err := os.OpenFile(cfg.TranscriptLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return exitConfig, fmt.Errorf("open transcript log: %w", err)
		}
		defer f.Close()
		opts = append(opts, transcript.WithOnAppend(newExporter(f, log).Append))
	}
	tr := openTranscript(convs, *dm, opts)

	view := newTerminalView(stdout, handle)
	session, err := chat.New(chat.Options{
		Local:      model.Identity{Handle: handle},
		Friend:     model.Identity{Handle: *dm},
		Channel:    b.channel,
		History:    b.history,
		Sender:     b.sender,
		Listener:   view,
		Logger:     log,
		IDs:        ids,
		Transcript: tr,
	})
	if err != nil {
		return exitRuntime, err
	}
	if err := session.Start(ctx); err != nil {
		return exitRuntime, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			log.Warn("close session", "err", err)
		}
	}()

	return chatLoop(ctx, session, view, stdin), nil
}

// authenticate resolves the local handle, from TOKEN when set and by logging
// in otherwise.
func authenticate(ctx context.Context, cfg config.Config, client *api.Client) (string, error) {
	if cfg.Token != "" {
		handle, err := auth.HandleFromToken(cfg.Token)
		if err != nil {
			return "", err
		}
		client.SetToken(auth.StripBearer(cfg.Token))
		return handle, nil
	}
	if cfg.User == "" {
		return "", errors.New("set -user or TOKEN")
	}

	res, err := client.Login(ctx, cfg.User, cfg.Password)
	if err != nil {
		return "", fmt.Errorf("login as %s: %w", cfg.User, err)
	}
	return res.Username, nil
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}

func loadInbox(ctx context.Context, recent lister, handle string) ([]inbox.Conversation, error) {
	groups, err := recent(ctx)
	if err != nil {
		return nil, err
	}
	return inbox.Build(handle, groups), nil
}

// openTranscript reuses the friend's profile from the conversation list when
// the friend is on it.
func openTranscript(convs []inbox.Conversation, friend string, opts []transcript.Option) *transcript.Transcript {
	for _, c := range convs {
		if c.Friend.Handle != friend {
			continue
		}
		if tr, err := c.Transcript(opts...); err == nil {
			return tr
		}
	}
	return transcript.New(opts...)
}

type command int

const (
	cmdSend command = iota
	cmdTyping
	cmdStopTyping
	cmdQuit
	cmdNone
)

func parseInput(line string) (command, string) {
	text := strings.TrimSpace(line)
	switch text {
	case "":
		return cmdNone, ""
	case "/typing":
		return cmdTyping, ""
	case "/stop":
		return cmdStopTyping, ""
	case "/quit":
		return cmdQuit, ""
	}
	return cmdSend, text
}

// chatLoop feeds stdin lines to the session until /quit, EOF, an interrupt or
// the session closing.
func chatLoop(ctx context.Context, session *chat.Session, view *terminalView, stdin io.Reader) int {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	view.Prompt()
	for {
		select {
		case <-ctx.Done():
			return exitOK
		case <-session.Done():
			return exitOK
		case line, ok := <-lines:
			if !ok {
				return exitOK
			}

			cmd, text := parseInput(line)
			var err error
			switch cmd {
			case cmdQuit:
				return exitOK
			case cmdTyping:
				err = session.StartTyping(ctx)
			case cmdStopTyping:
				err = session.StopTyping(ctx)
			case cmdSend:
				err = session.Send(ctx, text)
			case cmdNone:
				view.Prompt()
			}
			switch {
			case err != nil:
				view.Notice(err)
			case cmd == cmdTyping || cmd == cmdStopTyping:
				view.Prompt()
			}
		}
	}
}
