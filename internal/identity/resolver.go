// Package identity resolves user ids to display information for message authors.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chat-platform/internal/database"
	"chat-platform/internal/models"
	"chat-platform/pkg/logger"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

type AuthorKind int

const (
	AuthorFound AuthorKind = iota
	AuthorFallback
)

// Author is either a user found in the identity store or a fallback built from the
// id alone.
type Author struct {
	Kind        AuthorKind
	ID          int64
	DisplayName string
	User        *models.User
}

func (a Author) Found() bool {
	return a.Kind == AuthorFound
}

func FallbackName(id int64) string {
	return fmt.Sprintf("user-%d", id)
}

type Resolver struct {
	store database.IdentityStore
	cache *expirable.LRU[int64, *models.User]
	group singleflight.Group
}

func NewResolver(store database.IdentityStore, size int, ttl time.Duration) *Resolver {
	if size <= 0 {
		size = 1024
	}
	return &Resolver{
		store: store,
		cache: expirable.NewLRU[int64, *models.User](size, nil, ttl),
	}
}

// User loads a user through the cache. Concurrent lookups of the same id share
// one store call.
func (r *Resolver) User(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := r.cache.Get(id); ok {
		return u, nil
	}

	v, err, _ := r.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		u, err := r.store.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		r.cache.Add(id, u)
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User), nil
}

// Author never fails: unknown users and store errors yield the fallback.
func (r *Resolver) Author(ctx context.Context, id int64) Author {
	u, err := r.User(ctx, id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.Warn("Identity lookup for user %d failed: %v", id, err)
		}
		return Author{Kind: AuthorFallback, ID: id, DisplayName: FallbackName(id)}
	}
	return Author{Kind: AuthorFound, ID: id, DisplayName: u.Username, User: u}
}

// Forget drops a cached user, e.g. after a profile change.
func (r *Resolver) Forget(id int64) {
	r.cache.Remove(id)
}

// GetUserByID lets the resolver stand in for the identity store it wraps.
func (r *Resolver) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.User(ctx, id)
}
