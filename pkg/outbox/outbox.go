package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/roomid"
)

// Writer is the subset of *kafka.Writer the outbox uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Outbox persists outgoing messages by producing them to a Kafka topic. A
// downstream consumer stores them.
type Outbox struct {
	writer Writer
	log    *slog.Logger
}

// New builds an outbox writing to topic. Messages are keyed by room so a
// room's messages stay in one partition, in order.
func New(brokers []string, topic string, logger *slog.Logger) *Outbox {
	return NewWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}, logger)
}

func NewWithWriter(w Writer, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{writer: w, log: logger.With("component", "outbox")}
}

func (o *Outbox) SendMessage(ctx context.Context, msg model.OutgoingMessage) error {
	km, err := encode(msg)
	if err != nil {
		return err
	}

	if err := o.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("produce message: %w: %v", model.ErrNetworkFailure, err)
	}
	o.log.Debug("message produced", "id", msg.ID, "room", string(km.Key))
	return nil
}

func (o *Outbox) Close() error {
	return o.writer.Close()
}

func encode(msg model.OutgoingMessage) (kafka.Message, error) {
	if msg.ChatID == "" {
		room, err := roomid.Derive(msg.SentBy, msg.SentTo)
		if err != nil {
			return kafka.Message{}, err
		}
		msg.ChatID = room.String()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode message: %w", err)
	}
	return kafka.Message{
		Key:   []byte(msg.ChatID),
		Value: value,
		Time:  timestampOf(msg.Date),
	}, nil
}

func timestampOf(date string) time.Time {
	if ts, err := model.ParseDate(date); err == nil {
		return ts
	}
	return time.Now()
}

var _ chat.Sender = (*Outbox)(nil)
