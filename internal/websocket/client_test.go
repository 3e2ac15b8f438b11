package websocket

import (
	"context"
	"encoding/json"
	"testing"

	"chat-platform/internal/errs"
	"chat-platform/internal/hub"
	"chat-platform/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	handle func(cmd *models.Command) error
}

func (d *stubDispatcher) Name() string                        { return "stub" }
func (d *stubDispatcher) Open(context.Context, hub.Sink) error { return nil }
func (d *stubDispatcher) Close(context.Context, hub.Sink)      {}

func (d *stubDispatcher) Handle(_ context.Context, _ hub.Sink, cmd *models.Command) error {
	return d.handle(cmd)
}

func newTestClient(d hub.Dispatcher, buffer int) *Client {
	return NewClient(nil, &models.User{ID: 7, Username: "alice"}, d, Options{SendBuffer: buffer})
}

func nextEvent(t *testing.T, c *Client) *models.Event {
	t.Helper()
	select {
	case data := <-c.send:
		var evt models.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return &evt
	default:
		t.Fatal("no event queued")
		return nil
	}
}

func TestDeliverDropsSlowConsumer(t *testing.T) {
	c := newTestClient(&stubDispatcher{}, 1)
	f, err := hub.NewFrame(models.NewEvent(models.EventMessage, models.ScopeRoom, 1))
	require.NoError(t, err)

	assert.True(t, c.Deliver(f))
	assert.False(t, c.Deliver(f))
	assert.False(t, c.Deliver(f), "closed stays closed")

	<-c.send
	_, open := <-c.send
	assert.False(t, open)

	c.shutdown()
}

func TestHandleReportsErrorsToSender(t *testing.T) {
	c := newTestClient(&stubDispatcher{handle: func(*models.Command) error {
		return errs.New(errs.KindNotBound, "join a room before sending")
	}}, 4)

	c.handle(context.Background(), &models.Command{Action: models.ActionSend})
	evt := nextEvent(t, c)
	assert.Equal(t, models.EventError, evt.Type)
	assert.Equal(t, "not_bound", evt.Code)
	assert.Equal(t, "join a room before sending", evt.Error)
}

func TestHandleRecoversPanics(t *testing.T) {
	c := newTestClient(&stubDispatcher{handle: func(*models.Command) error {
		panic("boom")
	}}, 4)

	assert.NotPanics(t, func() {
		c.handle(context.Background(), &models.Command{Action: models.ActionJoin})
	})
	evt := nextEvent(t, c)
	assert.Equal(t, "internal", evt.Code)
}

func TestClientIDsAreUnique(t *testing.T) {
	a := newTestClient(&stubDispatcher{}, 1)
	b := newTestClient(&stubDispatcher{}, 1)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, int64(7), a.UserID())
}
