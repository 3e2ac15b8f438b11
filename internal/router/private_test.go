package router

import (
	"testing"

	"chat-platform/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairGroupIsCanonical(t *testing.T) {
	assert.Equal(t, PairGroup(5, 9), PairGroup(9, 5))
	assert.Equal(t, "private_5_9", PairGroup(9, 5))
	assert.NotEqual(t, PairGroup(5, 9), PairGroup(5, 10))
}

func TestPrivateSubscribeBothSides(t *testing.T) {
	registry := presence.NewRegistry()
	r := NewPrivate(registry)

	require.NoError(t, r.Register("conn-5", 5))
	require.NoError(t, r.Register("conn-9", 9))

	g1, added, err := r.Subscribe("conn-9", 5)
	require.NoError(t, err)
	assert.True(t, added)
	g2, _, err := r.Subscribe("conn-5", 9)
	require.NoError(t, err)

	_, added, err = r.Subscribe("conn-9", 5)
	require.NoError(t, err)
	assert.False(t, added, "already subscribed")

	assert.Equal(t, g1, g2)
	assert.ElementsMatch(t, []string{"conn-5", "conn-9"}, r.GroupConnections(g1))
	assert.True(t, registry.IsOnline(5))
	assert.True(t, registry.IsOnline(9))
}

func TestPrivateSubscribeRequiresRegistration(t *testing.T) {
	r := NewPrivate(presence.NewRegistry())

	_, _, err := r.Subscribe("ghost", 5)

	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestPrivateLastConnectionWins(t *testing.T) {
	registry := presence.NewRegistry()
	r := NewPrivate(registry)
	require.NoError(t, r.Register("old", 5))
	require.NoError(t, r.Register("new", 5))

	conn, ok := r.ConnectionFor(5)
	require.True(t, ok)
	assert.Equal(t, "new", conn)

	_, ok = r.Disconnect("old")
	require.True(t, ok)
	conn, ok = r.ConnectionFor(5)
	require.True(t, ok)
	assert.Equal(t, "new", conn, "disconnecting an older tab keeps the newer slot")
	assert.True(t, registry.IsOnline(5))

	r.Disconnect("new")
	_, ok = r.ConnectionFor(5)
	assert.False(t, ok)
	assert.False(t, registry.IsOnline(5))
}

func TestPrivateDisconnectClearsGroupsOnce(t *testing.T) {
	registry := presence.NewRegistry()
	r := NewPrivate(registry)
	require.NoError(t, r.Register("c", 5))
	group, _, err := r.Subscribe("c", 9)
	require.NoError(t, err)

	_, first := r.Disconnect("c")
	_, second := r.Disconnect("c")

	assert.True(t, first)
	assert.False(t, second)
	assert.Empty(t, r.GroupConnections(group))
	assert.False(t, r.IsSubscribed("c", group))
	assert.Equal(t, 0, registry.Connections(5))
}

func TestPrivateUnsubscribe(t *testing.T) {
	r := NewPrivate(presence.NewRegistry())
	require.NoError(t, r.Register("c", 5))
	group, _, err := r.Subscribe("c", 9)
	require.NoError(t, err)

	_, ok := r.Unsubscribe("c", 9)
	assert.True(t, ok)
	_, ok = r.Unsubscribe("c", 9)
	assert.False(t, ok)
	assert.Empty(t, r.GroupConnections(group))
}
