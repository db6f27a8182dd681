package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/logchat/pkg/api"
	"github.com/mahaj/logchat/pkg/archive"
	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/config"
	"github.com/mahaj/logchat/pkg/db"
	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/outbox"
	"github.com/mahaj/logchat/pkg/realtime"
	"github.com/mahaj/logchat/pkg/snowflake"
)

// lister returns the recent-conversations groups for the local user.
type lister func(ctx context.Context) ([][]model.RecentPacket, error)

// backends holds the collaborators a session is wired with and what must be
// closed on exit, in order.
type backends struct {
	channel realtime.Channel
	history chat.HistoryFetcher
	sender  chat.Sender
	recent  lister
	closers []io.Closer
}

func (b *backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func buildBackends(ctx context.Context, cfg config.Config, client *api.Client, handle string, ids *snowflake.Node, log *slog.Logger) (*backends, error) {
	b := &backends{
		history: client,
		sender:  client,
		recent:  client.RecentConversations,
	}

	if cfg.NeedsScylla() {
		session, err := db.NewSession(cfg.Hosts(), cfg.ScyllaKeyspace, log)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, closerFunc(func() error { session.Close(); return nil }))

		arc := archive.New(session, ids, log).WithLimit(cfg.ArchiveLimit)
		if cfg.HistorySource == config.SourceScylla {
			b.history = arc
			b.recent = func(ctx context.Context) ([][]model.RecentPacket, error) {
				return arc.RecentConversations(ctx, handle)
			}
		}
		if cfg.PersistSink == config.SourceScylla {
			b.sender = arc
		}
	}

	if cfg.PersistSink == config.SinkKafka {
		ob := outbox.New(cfg.Brokers(), cfg.KafkaTopic, log)
		b.sender = ob
		b.closers = append(b.closers, ob)
	}

	switch cfg.Transport {
	case config.TransportRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = b.Close()
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		ch := realtime.NewRedisChannel(rdb, log)
		b.channel = ch
		// The channel must stop before the client it publishes through.
		b.closers = append([]io.Closer{ch, rdb}, b.closers...)
	default:
		ch, err := realtime.Dial(ctx, cfg.WSURL, realtime.WSOptions{Token: client.Token(), Logger: log})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.channel = ch
		b.closers = append([]io.Closer{ch}, b.closers...)
	}

	return b, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
