// Package events publishes persisted chat messages to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"chat-platform/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, msg *models.Message) error
	Close() error
}

// Subject is the routing name of a message: <prefix>.<scope>.<conversation>.
func Subject(prefix string, msg *models.Message) string {
	return fmt.Sprintf("%s.%s.%s", prefix, msg.Scope, conversation(msg))
}

// Key partitions messages of one conversation together.
func Key(msg *models.Message) string {
	return fmt.Sprintf("%s:%s", msg.Scope, conversation(msg))
}

// conversation is the scope id for rooms and groups. Private messages use the
// ordered user pair so both directions share it.
func conversation(msg *models.Message) string {
	if msg.Scope != models.ScopePrivate {
		return strconv.FormatInt(msg.ScopeID(), 10)
	}
	lo, hi := msg.SenderID, msg.ReceiverID
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d_%d", lo, hi)
}

func encode(msg *models.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message %d: %w", msg.ID, err)
	}
	return data, nil
}

type Noop struct{}

func (Noop) Publish(context.Context, *models.Message) error { return nil }
func (Noop) Close() error                                  { return nil }

// Multi fans a message out to every configured publisher.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, msg *models.Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
