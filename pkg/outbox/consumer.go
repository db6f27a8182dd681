package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/metrics"
	"github.com/mahaj/logchat/pkg/model"
)

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer drains the outbox topic into a sink, usually the archive.
type Consumer struct {
	reader Reader
	sink   chat.Sender
	log    *slog.Logger
	retry  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, sink chat.Sender, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(r, sink, logger)
}

func NewConsumerWithReader(r Reader, sink chat.Sender, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader: r,
		sink:   sink,
		log:    logger.With("component", "outbox-consumer"),
		retry:  time.Second,
	}
}

// Consume stores messages until ctx is done. Read errors are retried and
// records that do not decode are skipped.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("read failed, retrying", "err", err, "in", c.retry)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retry):
			}
			continue
		}

		var msg model.OutgoingMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil || msg.SentBy == "" || msg.SentTo == "" || msg.Message == "" {
			metrics.IncDropped("malformed_outbox")
			c.log.Warn("skipping malformed record", "offset", m.Offset, "err", err)
			continue
		}

		if err := c.sink.SendMessage(ctx, msg); err != nil {
			c.log.Error("failed to store message", "id", msg.ID, "room", string(m.Key), "err", err)
			continue
		}
		c.log.Debug("message stored", "id", msg.ID, "room", string(m.Key))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
