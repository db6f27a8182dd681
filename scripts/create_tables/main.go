package main

import (
	"os"

	"github.com/mahaj/logchat/pkg/config"
	"github.com/mahaj/logchat/pkg/db"
	"github.com/mahaj/logchat/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	log := logging.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(2)
	}

	session, err := db.NewSession(cfg.Hosts(), "", log)
	if err != nil {
		log.Error("failed to connect to scylla", "err", err)
		os.Exit(1)
	}
	defer session.Close()

	if err := session.Migrate(cfg.ScyllaKeyspace); err != nil {
		log.Error("failed to create tables", "err", err)
		os.Exit(1)
	}
	log.Info("tables created", "keyspace", cfg.ScyllaKeyspace)
}
