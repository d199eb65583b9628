package kafka

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/broker/messages"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// StatusEvents publishes guest status changes to one topic.
type StatusEvents struct {
	p     publisher
	topic string
}

func NewStatusEvents(p publisher, topic string) *StatusEvents {
	if topic == "" {
		topic = messages.EventGuestStatusChanged
	}
	return &StatusEvents{p: p, topic: topic}
}

func (s *StatusEvents) PublishStatusChanged(ctx context.Context, msg messages.GuestStatusChanged) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal status event")
	}
	return s.p.Publish(ctx, s.topic, msg.Key(), b)
}

// DecodeStatusChanged parses a consumed message value.
func DecodeStatusChanged(value []byte) (messages.GuestStatusChanged, error) {
	var msg messages.GuestStatusChanged
	if err := json.Unmarshal(value, &msg); err != nil {
		return msg, errors.Wrap(err, "decode status event")
	}
	return msg, nil
}
