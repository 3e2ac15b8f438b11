// Package presence tracks which users are online across every hub.
//
// A user is online while at least one of their connections holds a room, group or
// private-chat registration. Each registration increments a per-user counter and each
// release decrements it, so multi-tab users and users spread over several hubs are
// reported consistently.
package presence

import (
	"sort"
	"sync"

	"chat-platform/internal/shard"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Listener is told about online/offline transitions. It is called outside the
// registry's locks and must not block.
type Listener interface {
	PresenceChanged(userID int64, online bool)
}

type Registry struct {
	counts cmap.ConcurrentMap[int64, int]

	mu        sync.RWMutex
	listeners []Listener
}

func NewRegistry() *Registry {
	return &Registry{
		counts: cmap.NewWithCustomShardingFunction[int64, int](shard.Int64),
	}
}

func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// SetOnline registers one more live connection for the user. It returns true when
// the user went from offline to online.
func (r *Registry) SetOnline(userID int64) bool {
	n := r.counts.Upsert(userID, 1, func(exist bool, current int, _ int) int {
		if !exist || current < 0 {
			return 1
		}
		return current + 1
	})
	if n == 1 {
		r.notify(userID, true)
		return true
	}
	return false
}

// SetOffline releases one connection. Releasing a user that is not online is a no-op.
// It returns true when the user went from online to offline.
func (r *Registry) SetOffline(userID int64) bool {
	wentOffline := false
	r.counts.Upsert(userID, 0, func(exist bool, current int, _ int) int {
		if !exist || current <= 0 {
			return 0
		}
		if current == 1 {
			wentOffline = true
		}
		return current - 1
	})
	r.dropZero(userID)
	if wentOffline {
		r.notify(userID, false)
	}
	return wentOffline
}

// dropZero removes an entry left at zero unless a concurrent SetOnline revived it.
func (r *Registry) dropZero(userID int64) {
	r.counts.RemoveCb(userID, func(_ int64, current int, exists bool) bool {
		return exists && current <= 0
	})
}

func (r *Registry) IsOnline(userID int64) bool {
	n, ok := r.counts.Get(userID)
	return ok && n > 0
}

// Connections returns how many live registrations hold the user online.
func (r *Registry) Connections(userID int64) int {
	n, _ := r.counts.Get(userID)
	return n
}

// ListOnline returns a sorted snapshot of online user ids.
func (r *Registry) ListOnline() []int64 {
	items := r.counts.Items()
	ids := make([]int64, 0, len(items))
	for id, n := range items {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Count() int {
	n := 0
	for _, c := range r.counts.Items() {
		if c > 0 {
			n++
		}
	}
	return n
}

func (r *Registry) notify(userID int64, online bool) {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, l := range listeners {
		l.PresenceChanged(userID, online)
	}
}
