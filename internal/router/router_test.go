package router

import (
	"fmt"
	"sync"
	"testing"

	"chat-platform/internal/membership"
	"chat-platform/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() (*Router, *presence.Registry) {
	registry := presence.NewRegistry()
	return New(membership.New(), registry), registry
}

var alice = membership.Participant{UserID: 7, Username: "alice"}

func TestBindUnbind(t *testing.T) {
	r, registry := newRouter()

	res, err := r.Bind("conn-a", 42, alice)
	require.NoError(t, err)
	require.Len(t, res.Members, 1)
	assert.True(t, registry.IsOnline(7))

	b, ok := r.Lookup("conn-a")
	require.True(t, ok)
	assert.Equal(t, int64(42), b.RoomID)

	released, left, ok := r.Unbind("conn-a")
	require.True(t, ok)
	assert.Equal(t, int64(42), released.RoomID)
	assert.True(t, left.LastForUser)
	assert.Empty(t, r.Members().ListMembers(42))
	assert.False(t, registry.IsOnline(7))
}

func TestBindWhileBoundFailsFast(t *testing.T) {
	r, registry := newRouter()
	_, err := r.Bind("conn-a", 1, alice)
	require.NoError(t, err)

	_, err = r.Bind("conn-a", 2, alice)
	assert.ErrorIs(t, err, ErrAlreadyBound)

	_, err = r.Bind("conn-a", 1, alice)
	assert.ErrorIs(t, err, ErrAlreadyBound)

	assert.Empty(t, r.Members().ListMembers(2), "failed bind leaves no trace")
	assert.Equal(t, 1, registry.Connections(7))
}

func TestUnbindTwiceIsNoop(t *testing.T) {
	r, registry := newRouter()
	registry.SetOnline(7) // another hub holds alice online
	_, err := r.Bind("conn-a", 1, alice)
	require.NoError(t, err)

	_, _, first := r.Unbind("conn-a")
	_, _, second := r.Unbind("conn-a")
	_, _, third := r.OnTransportDisconnect("conn-a")

	assert.True(t, first)
	assert.False(t, second)
	assert.False(t, third)
	assert.True(t, registry.IsOnline(7), "a repeated unbind must not release someone else's reference")
	assert.Equal(t, 1, registry.Connections(7))
}

func TestDisconnectWithoutBind(t *testing.T) {
	r, _ := newRouter()

	_, res, ok := r.OnTransportDisconnect("never-bound")

	assert.False(t, ok)
	assert.False(t, res.Found)
}

func TestSequenceNetEffect(t *testing.T) {
	r, registry := newRouter()

	_, err := r.Bind("c", 1, alice)
	require.NoError(t, err)
	r.Unbind("c")
	_, err = r.Bind("c", 2, alice)
	require.NoError(t, err)

	b, ok := r.Lookup("c")
	require.True(t, ok)
	assert.Equal(t, int64(2), b.RoomID)
	assert.Empty(t, r.Members().ListMembers(1))
	assert.Len(t, r.Members().ListMembers(2), 1)
	assert.Equal(t, 1, registry.Connections(7))

	r.OnTransportDisconnect("c")
	_, ok = r.Lookup("c")
	assert.False(t, ok)
	assert.False(t, registry.IsOnline(7))
}

func TestRacingUnbindAndDisconnect(t *testing.T) {
	r, registry := newRouter()
	const conns = 100
	for i := 0; i < conns; i++ {
		_, err := r.Bind(fmt.Sprintf("c%d", i), 1, alice)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		id := fmt.Sprintf("c%d", i)
		wg.Add(2)
		go func() { defer wg.Done(); r.Unbind(id) }()
		go func() { defer wg.Done(); r.OnTransportDisconnect(id) }()
	}
	wg.Wait()

	assert.Equal(t, 0, r.BoundCount())
	assert.Equal(t, 0, registry.Connections(7))
	assert.False(t, r.Members().HasRoom(1))
}
