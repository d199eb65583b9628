package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/ubysync/ubysync/internal/broker/messages"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume commits a message only after handler succeeded; a handler error
// stops consumption so the message is redelivered.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ConsumeStatusChanged decodes guest status events. Undecodable messages are
// logged and committed.
func (c *Consumer) ConsumeStatusChanged(ctx context.Context, handler func(ctx context.Context, msg messages.GuestStatusChanged) error) error {
	return c.Consume(ctx, func(key, value []byte) error {
		msg, err := DecodeStatusChanged(value)
		if err != nil {
			slog.Warn("skip malformed status event", "key", string(key), "error", err.Error())
			return nil
		}
		return handler(ctx, msg)
	})
}
