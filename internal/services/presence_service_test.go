package services

import (
	"context"
	"testing"
	"time"

	"chat-platform/internal/database"
	"chat-platform/internal/identity"
	"chat-platform/internal/membership"
	"chat-platform/internal/models"
	"chat-platform/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	recent []*models.UserPresence
	users  map[int64]*models.User
}

func (s *stubStore) SaveRoomMessage(context.Context, *models.Message) (int64, error)    { return 0, nil }
func (s *stubStore) SaveGroupMessage(context.Context, *models.Message) (int64, error)   { return 0, nil }
func (s *stubStore) SavePrivateMessage(context.Context, *models.Message) (int64, error) { return 0, nil }

func (s *stubStore) GetRecentMessages(context.Context, models.Scope, int64, int) ([]*models.Message, error) {
	return nil, nil
}

func (s *stubStore) RecentSenders(context.Context, int64, int) ([]*models.UserPresence, error) {
	return s.recent, nil
}

func (s *stubStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func newPresenceService(store *stubStore) (*PresenceService, *membership.Membership, *presence.Registry) {
	rooms := membership.New()
	registry := presence.NewRegistry()
	return NewPresenceService(rooms, registry, store, identity.NewResolver(store, 8, time.Minute)), rooms, registry
}

func TestActiveUsersPrefersLiveMembers(t *testing.T) {
	store := &stubStore{recent: []*models.UserPresence{{ID: 9, Username: "old", Status: models.StatusRecent}}}
	svc, rooms, _ := newPresenceService(store)
	rooms.Join(3, "conn-a", membership.Participant{UserID: 7, Username: "alice"})

	users, err := svc.GetActiveUsers(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.StatusOnline, users[0].Status)
}

func TestActiveUsersFallsBackToRecentSenders(t *testing.T) {
	store := &stubStore{recent: []*models.UserPresence{{ID: 9, Username: "old", Status: models.StatusRecent}}}
	svc, _, _ := newPresenceService(store)

	users, err := svc.GetActiveUsers(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.StatusRecent, users[0].Status)

	_, err = svc.GetActiveUsers(context.Background(), 0)
	assert.Error(t, err)
}

func TestListOnlineUsersResolvesNames(t *testing.T) {
	store := &stubStore{users: map[int64]*models.User{7: {ID: 7, Username: "alice", AvatarURL: "a.png"}}}
	svc, _, registry := newPresenceService(store)
	registry.SetOnline(7)
	registry.SetOnline(12)

	users := svc.ListOnlineUsers(context.Background())
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "a.png", users[0].AvatarURL)
	assert.Equal(t, "user-12", users[1].Username)
}

func TestUserStatus(t *testing.T) {
	svc, _, registry := newPresenceService(&stubStore{})
	registry.SetOnline(7)
	registry.SetOnline(7)

	assert.Equal(t, UserStatus{UserID: 7, Online: true, Connections: 2}, svc.GetUserStatus(7))
	assert.False(t, svc.GetUserStatus(8).Online)
}
