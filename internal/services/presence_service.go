package services

import (
	"context"
	"fmt"
	"time"

	"chat-platform/internal/database"
	"chat-platform/internal/identity"
	"chat-platform/internal/membership"
	"chat-platform/internal/models"
	"chat-platform/internal/presence"
)

const recentSendersLimit = 20

// PresenceService answers "who is here" questions from the live registries,
// falling back to the store when a room has nobody connected.
type PresenceService struct {
	rooms    *membership.Membership
	registry *presence.Registry
	store    database.MessageStore
	users    *identity.Resolver
}

func NewPresenceService(rooms *membership.Membership, registry *presence.Registry, store database.MessageStore, users *identity.Resolver) *PresenceService {
	return &PresenceService{
		rooms:    rooms,
		registry: registry,
		store:    store,
		users:    users,
	}
}

// GetActiveUsers lists the live members of a room. An empty room reports its
// recent senders with status "recent" instead.
func (s *PresenceService) GetActiveUsers(ctx context.Context, roomID int64) ([]*models.UserPresence, error) {
	if roomID <= 0 {
		return nil, fmt.Errorf("invalid room id %d", roomID)
	}
	if live := s.rooms.ListMembers(roomID); len(live) > 0 {
		return live, nil
	}

	recent, err := s.store.RecentSenders(ctx, roomID, recentSendersLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent senders for room %d: %w", roomID, err)
	}
	if recent == nil {
		recent = []*models.UserPresence{}
	}
	return recent, nil
}

// ListOnlineUsers resolves every online user id to a presence snapshot.
func (s *PresenceService) ListOnlineUsers(ctx context.Context) []*models.UserPresence {
	ids := s.registry.ListOnline()
	out := make([]*models.UserPresence, 0, len(ids))
	now := time.Now()
	for _, id := range ids {
		p := &models.UserPresence{ID: id, Status: models.StatusOnline, LastActive: now}
		author := s.users.Author(ctx, id)
		p.Username = author.DisplayName
		if author.Found() {
			p.AvatarURL = author.User.AvatarURL
		}
		out = append(out, p)
	}
	return out
}

type UserStatus struct {
	UserID      int64 `json:"user_id"`
	Online      bool  `json:"online"`
	Connections int   `json:"connections"`
}

func (s *PresenceService) GetUserStatus(userID int64) UserStatus {
	n := s.registry.Connections(userID)
	return UserStatus{UserID: userID, Online: n > 0, Connections: n}
}
