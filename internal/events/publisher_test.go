package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"chat-platform/internal/models"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectAndKey(t *testing.T) {
	room := &models.Message{Scope: models.ScopeRoom, RoomID: 42}
	toFrank := &models.Message{Scope: models.ScopePrivate, SenderID: 5, ReceiverID: 9}
	toErin := &models.Message{Scope: models.ScopePrivate, SenderID: 9, ReceiverID: 5}

	assert.Equal(t, "chat.room.42", Subject("chat", room))
	assert.Equal(t, "room:42", Key(room))
	assert.Equal(t, "chat.private.5_9", Subject("chat", toFrank))
	assert.Equal(t, Subject("chat", toFrank), Subject("chat", toErin), "both directions share a subject")
	assert.Equal(t, "private:5_9", Key(toErin))
}

func TestKafkaPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg models.Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.ID != 100 || msg.Content != "hi" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "chat-messages")
	msg := &models.Message{ID: 100, Scope: models.ScopeRoom, RoomID: 42, Content: "hi", Type: models.MessageTypeText}

	require.NoError(t, p.Publish(context.Background(), msg))
	assert.ErrorIs(t, p.Publish(context.Background(), msg), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, *models.Message) error { return f.err }
func (f failingPublisher) Close() error                                  { return nil }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{Noop{}, failingPublisher{err: boom}}

	err := m.Publish(context.Background(), &models.Message{})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, m.Close())
}
