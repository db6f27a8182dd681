package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/logchat/pkg/metrics"
	"github.com/mahaj/logchat/pkg/model"
)

const (
	eventPrefix    = "chat:event:"
	transportRedis = "redis"
)

func eventChannel(event string) string { return eventPrefix + event }

func presenceKey(chatID string) string { return "chat:room:" + chatID + ":users" }

type outbound struct {
	event   string
	payload []byte
	room    *model.RoomPayload
}

// RedisChannel is a Channel over Redis pub/sub. Each event name maps to one
// pub/sub channel; joinRoom and leaveRoom also maintain a presence set.
type RedisChannel struct {
	rdb    redis.UniversalClient
	router *Router
	log    *slog.Logger

	mu     sync.Mutex
	ps     *redis.PubSub
	names  map[string]struct{}
	closed bool

	send      chan outbound
	published sync.WaitGroup
	forwarded sync.WaitGroup
}

func NewRedisChannel(rdb redis.UniversalClient, logger *slog.Logger) *RedisChannel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RedisChannel{
		rdb:    rdb,
		router: NewRouter(),
		log:    logger.With("transport", transportRedis),
		names:  make(map[string]struct{}),
		send:   make(chan outbound, defaultSendQueue),
	}
	metrics.IncConnections(transportRedis)

	c.published.Add(1)
	go c.publishLoop()
	return c
}

func (c *RedisChannel) Subscribe(ctx context.Context, events ...string) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	var fresh []string
	for _, name := range events {
		if _, ok := c.names[name]; !ok {
			fresh = append(fresh, eventChannel(name))
		}
	}

	if len(fresh) > 0 {
		if c.ps == nil {
			c.ps = c.rdb.Subscribe(ctx, fresh...)
			// Wait for the subscription confirmation so no event is missed.
			if _, err := c.ps.Receive(ctx); err != nil {
				c.ps.Close()
				c.ps = nil
				return nil, fmt.Errorf("subscribe: %w", err)
			}
			c.forwarded.Add(1)
			go c.forward(c.ps)
		} else if err := c.ps.Subscribe(ctx, fresh...); err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		for _, name := range events {
			c.names[name] = struct{}{}
		}
	}

	return c.router.Add(events...)
}

func (c *RedisChannel) Emit(_ context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	out := outbound{event: event, payload: data}
	if event == model.EventJoinRoom || event == model.EventLeaveRoom {
		var room model.RoomPayload
		if err := json.Unmarshal(data, &room); err == nil && room.ChatID != "" {
			out.room = &room
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.send <- out:
		return nil
	default:
		return fmt.Errorf("emit %s: %w", event, ErrSendQueueFull)
	}
}

// Members returns the handles currently joined to a room.
func (c *RedisChannel) Members(ctx context.Context, chatID string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, presenceKey(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", chatID, err)
	}
	return members, nil
}

// Close drains queued events and unsubscribes. The redis client stays open.
func (c *RedisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	ps := c.ps
	c.mu.Unlock()

	c.published.Wait()
	c.router.Close()

	var err error
	if ps != nil {
		err = ps.Close()
		c.forwarded.Wait()
	}
	metrics.DecConnections(transportRedis)
	return err
}

func (c *RedisChannel) publishLoop() {
	defer c.published.Done()

	ctx := context.Background()
	for out := range c.send {
		switch {
		case out.room != nil && out.event == model.EventJoinRoom:
			if err := c.rdb.SAdd(ctx, presenceKey(out.room.ChatID), out.room.UserEmail).Err(); err != nil {
				c.log.Error("failed to set presence", "user", out.room.UserEmail, "err", err)
			}
		case out.room != nil && out.event == model.EventLeaveRoom:
			if err := c.rdb.SRem(ctx, presenceKey(out.room.ChatID), out.room.UserEmail).Err(); err != nil {
				c.log.Error("failed to delete presence", "user", out.room.UserEmail, "err", err)
			}
		}

		if err := c.rdb.Publish(ctx, eventChannel(out.event), out.payload).Err(); err != nil {
			c.log.Error("publish failed", "event", out.event, "err", err)
			continue
		}
		metrics.IncEventEmitted(transportRedis, out.event)
	}
}

func (c *RedisChannel) forward(ps *redis.PubSub) {
	defer c.forwarded.Done()

	for msg := range ps.Channel() {
		name := strings.TrimPrefix(msg.Channel, eventPrefix)
		if name == msg.Channel {
			continue
		}
		metrics.IncEventReceived(transportRedis, name)
		c.router.Dispatch(Event{Name: name, Data: json.RawMessage(msg.Payload)})
	}
}
