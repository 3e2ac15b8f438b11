package database

import (
	"context"
	"errors"

	"chat-platform/internal/models"
)

// MaxHistory caps how many messages a history query returns.
const MaxHistory = 50

var ErrNotFound = errors.New("not found")

// MessageStore persists chat messages. Save methods return the durable id assigned
// to the message; a non-positive id is never valid.
type MessageStore interface {
	SaveRoomMessage(ctx context.Context, msg *models.Message) (int64, error)
	SaveGroupMessage(ctx context.Context, msg *models.Message) (int64, error)
	SavePrivateMessage(ctx context.Context, msg *models.Message) (int64, error)
	// GetRecentMessages returns up to count messages of a room or group, oldest first.
	GetRecentMessages(ctx context.Context, scope models.Scope, scopeID int64, count int) ([]*models.Message, error)
	// RecentSenders lists users who recently wrote in a room, newest first.
	RecentSenders(ctx context.Context, roomID int64, limit int) ([]*models.UserPresence, error)
}

type IdentityStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// GroupStore is the durable source of truth for group membership.
type GroupStore interface {
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
}

type Database interface {
	MessageStore
	IdentityStore
	GroupStore
	Close() error
}

func ClampHistory(count int) int {
	if count <= 0 || count > MaxHistory {
		return MaxHistory
	}
	return count
}
