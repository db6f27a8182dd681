package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/logchat/pkg/metrics"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 64 * 1024

	defaultSendQueue = 256

	transportWS = "ws"
)

// WSOptions tunes the websocket transport. Zero values take defaults.
type WSOptions struct {
	Token          string
	SendQueue      int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	Logger         *slog.Logger
	Dialer         *websocket.Dialer
}

func (o *WSOptions) defaults() {
	if o.SendQueue <= 0 {
		o.SendQueue = defaultSendQueue
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// WSChannel is a Channel over one websocket connection.
type WSChannel struct {
	conn   *websocket.Conn
	opts   WSOptions
	router *Router
	log    *slog.Logger

	send chan []byte

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
	pumps     sync.WaitGroup
}

// Dial connects to url and starts the read and write pumps.
func Dial(ctx context.Context, url string, opts WSOptions) (*WSChannel, error) {
	opts.defaults()

	header := http.Header{}
	if opts.Token != "" {
		header.Add("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := opts.Dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &WSChannel{
		conn:   conn,
		opts:   opts,
		router: NewRouter(),
		log:    opts.Logger.With("transport", transportWS),
		send:   make(chan []byte, opts.SendQueue),
		done:   make(chan struct{}),
	}
	metrics.IncConnections(transportWS)

	c.pumps.Add(2)
	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *WSChannel) Subscribe(_ context.Context, events ...string) (Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.router.Add(events...)
}

func (c *WSChannel) Emit(_ context.Context, event string, payload any) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		metrics.IncEventEmitted(transportWS, event)
		return nil
	default:
		return fmt.Errorf("emit %s: %w", event, ErrSendQueueFull)
	}
}

// Done is closed once the connection is gone, either by Close or by a read error.
func (c *WSChannel) Done() <-chan struct{} { return c.done }

// Close flushes queued frames, sends a normal close frame and waits for the
// pumps to exit.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.pumps.Wait()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.router.Close()
	c.pumps.Wait()
	return nil
}

func (c *WSChannel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *WSChannel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.router.Close()
		metrics.DecConnections(transportWS)
	})
}

// readPump pumps frames from the websocket connection to the router.
func (c *WSChannel) readPump() {
	defer func() {
		c.shutdown()
		c.conn.Close()
		c.pumps.Done()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); return nil })
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.opts.WriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("read failed", "err", err)
			}
			return
		}

		events, err := decode(frame)
		if err != nil {
			c.log.Warn("skipping undecodable frame", "err", err)
		}
		for _, e := range events {
			metrics.IncEventReceived(transportWS, e.Name)
			c.router.Dispatch(e)
		}
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *WSChannel) writePump() {
	ticker := time.NewTicker((c.opts.PongWait * 9) / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.pumps.Done()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				// Close was called.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.waitForPeerClose()
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.log.Error("next writer failed", "err", err)
				return
			}
			w.Write(frame)

			// Add queued frames to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write(newline)
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				c.log.Error("write failed", "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// waitForPeerClose gives the server a moment to answer the close frame.
func (c *WSChannel) waitForPeerClose() {
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
}
