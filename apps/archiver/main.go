package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahaj/logchat/pkg/archive"
	"github.com/mahaj/logchat/pkg/config"
	"github.com/mahaj/logchat/pkg/db"
	"github.com/mahaj/logchat/pkg/logging"
	"github.com/mahaj/logchat/pkg/metrics"
	"github.com/mahaj/logchat/pkg/outbox"
	"github.com/mahaj/logchat/pkg/snowflake"
)

// archiver stores messages clients produce with PERSIST_SINK=kafka.
func main() {
	cfg, err := config.Load()
	log := logging.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Schema creation needs a session without a keyspace.
	sysSession, err := db.NewSession(cfg.Hosts(), "", log)
	if err != nil {
		log.Error("failed to connect to scylla", "err", err)
		os.Exit(1)
	}
	err = sysSession.Migrate(cfg.ScyllaKeyspace)
	sysSession.Close()
	if err != nil {
		log.Error("failed to create tables", "err", err)
		os.Exit(1)
	}

	session, err := db.NewSession(cfg.Hosts(), cfg.ScyllaKeyspace, log)
	if err != nil {
		log.Error("failed to connect to scylla", "err", err)
		os.Exit(1)
	}
	defer session.Close()

	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Error("invalid node id", "err", err)
		os.Exit(2)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	consumer := outbox.NewConsumer(cfg.Brokers(), cfg.KafkaTopic, cfg.KafkaGroup, archive.New(session, ids, log), log)
	defer consumer.Close()

	log.Info("consuming", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
	consumer.Consume(ctx)
	log.Info("archiver stopped")
}
