package presence

import (
	"context"
	"strconv"
	"time"

	"chat-platform/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisMirror copies the online set into a Redis set so services outside this
// process can answer "is user X online". The in-memory Registry stays the source of
// truth: every change re-reads the registry, and a periodic resync rewrites the set.
type RedisMirror struct {
	client   *redis.Client
	registry *Registry
	key      string
	resync   time.Duration
	changes  chan int64
}

func NewRedisMirror(client *redis.Client, registry *Registry, key string, resync time.Duration) *RedisMirror {
	if resync <= 0 {
		resync = 30 * time.Second
	}
	m := &RedisMirror{
		client:   client,
		registry: registry,
		key:      key,
		resync:   resync,
		changes:  make(chan int64, 1024),
	}
	registry.AddListener(m)
	return m
}

// PresenceChanged implements Listener. A full queue drops the change; the next
// resync repairs it.
func (m *RedisMirror) PresenceChanged(userID int64, _ bool) {
	select {
	case m.changes <- userID:
	default:
		logger.Warn("presence mirror queue full, dropping change for user %d", userID)
	}
}

// Run applies changes until ctx is cancelled.
func (m *RedisMirror) Run(ctx context.Context) error {
	if err := m.Resync(ctx); err != nil {
		logger.Error("Initial presence resync failed: %v", err)
	}

	ticker := time.NewTicker(m.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case userID := <-m.changes:
			if err := m.apply(ctx, userID); err != nil {
				logger.Error("Error mirroring presence of user %d: %v", userID, err)
			}
		case <-ticker.C:
			if err := m.Resync(ctx); err != nil {
				logger.Error("Presence resync failed: %v", err)
			}
		}
	}
}

func (m *RedisMirror) apply(ctx context.Context, userID int64) error {
	member := strconv.FormatInt(userID, 10)
	if m.registry.IsOnline(userID) {
		return m.client.SAdd(ctx, m.key, member).Err()
	}
	return m.client.SRem(ctx, m.key, member).Err()
}

// Resync replaces the Redis set with the registry's current snapshot.
func (m *RedisMirror) Resync(ctx context.Context) error {
	ids := m.registry.ListOnline()
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		members = append(members, strconv.FormatInt(id, 10))
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.key)
		if len(members) > 0 {
			pipe.SAdd(ctx, m.key, members...)
		}
		return nil
	})
	return err
}

// IsOnline asks Redis directly, for callers that only hold a Redis client.
func (m *RedisMirror) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return m.client.SIsMember(ctx, m.key, strconv.FormatInt(userID, 10)).Result()
}
