package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

// NewSession connects to the cluster. An empty keyspace connects without one,
// which schema creation needs.
func NewSession(hosts []string, keyspace string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla %v: %w", hosts, err)
	}

	logger.Info("connected to scylla", "hosts", hosts, "keyspace", keyspace)
	return &Session{Session: session}, nil
}

// KeyspaceStatement creates the keyspace with a single replica.
func KeyspaceStatement(keyspace string) string {
	return fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
}

// TableStatements are the tables the archive reads and writes, keyspace-qualified.
func TableStatements(keyspace string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.messages (
		channel_id text,
		id bigint,
		user_id text,
		content text,
		timestamp timestamp,
		PRIMARY KEY (channel_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.user_conversations (
		user_id text,
		other_user_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`, keyspace),
	}
}

// Migrate creates the keyspace and tables if they do not exist.
func (s *Session) Migrate(keyspace string) error {
	stmts := append([]string{KeyspaceStatement(keyspace)}, TableStatements(keyspace)...)
	for _, stmt := range stmts {
		if err := s.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("migrate %s: %w", keyspace, err)
		}
	}
	return nil
}
