package router

import (
	"fmt"
	"sync"

	"chat-platform/internal/presence"
	"chat-platform/internal/shard"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// PairGroup names the broadcast group shared by two users. The ids are ordered so
// both participants resolve the same name whoever joins first.
func PairGroup(userID, friendID int64) string {
	lo, hi := userID, friendID
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("private_%d_%d", lo, hi)
}

type privateConn struct {
	mu     sync.Mutex
	userID int64
	closed bool
	groups map[string]struct{}
}

type pairState struct {
	mu     sync.RWMutex
	closed bool
	conns  map[string]struct{}
}

// PrivateRouter tracks private-chat connections: the latest connection of each user
// and the pair groups each connection subscribed to.
type PrivateRouter struct {
	conns     cmap.ConcurrentMap[string, *privateConn]
	userConns cmap.ConcurrentMap[int64, string]
	groups    cmap.ConcurrentMap[string, *pairState]
	presence  *presence.Registry
}

func NewPrivate(registry *presence.Registry) *PrivateRouter {
	return &PrivateRouter{
		conns:     cmap.NewWithCustomShardingFunction[string, *privateConn](shard.String),
		userConns: cmap.NewWithCustomShardingFunction[int64, string](shard.Int64),
		groups:    cmap.NewWithCustomShardingFunction[string, *pairState](shard.String),
		presence:  registry,
	}
}

// Register records connID as the user's private-chat connection. The last
// registered connection wins the user's slot.
func (r *PrivateRouter) Register(connID string, userID int64) error {
	already := false
	r.conns.Upsert(connID, nil, func(exist bool, existing *privateConn, _ *privateConn) *privateConn {
		if exist && existing != nil {
			already = true
			return existing
		}
		r.presence.SetOnline(userID)
		return &privateConn{userID: userID, groups: make(map[string]struct{})}
	})
	if already {
		return ErrAlreadyBound
	}
	r.userConns.Set(userID, connID)
	return nil
}

// ConnectionFor returns the user's latest registered connection.
func (r *PrivateRouter) ConnectionFor(userID int64) (string, bool) {
	return r.userConns.Get(userID)
}

// Subscribe adds the connection to the pair group it shares with friendID. It
// reports whether this call added the subscription.
func (r *PrivateRouter) Subscribe(connID string, friendID int64) (string, bool, error) {
	pc, ok := r.conns.Get(connID)
	if !ok {
		return "", false, ErrNotRegistered
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return "", false, ErrNotRegistered
	}

	group := PairGroup(pc.userID, friendID)
	if _, ok := pc.groups[group]; ok {
		return group, false, nil
	}
	pc.groups[group] = struct{}{}
	r.addToGroup(group, connID)
	return group, true, nil
}

// Unsubscribe removes the connection from the pair group. It reports whether the
// connection was subscribed.
func (r *PrivateRouter) Unsubscribe(connID string, friendID int64) (string, bool) {
	pc, ok := r.conns.Get(connID)
	if !ok {
		return "", false
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	group := PairGroup(pc.userID, friendID)
	if _, ok := pc.groups[group]; !ok || pc.closed {
		return group, false
	}
	delete(pc.groups, group)
	r.removeFromGroup(group, connID)
	return group, true
}

// Disconnect drops every subscription of the connection and releases the user's
// presence. It returns false for connections that were never registered or were
// already disconnected.
func (r *PrivateRouter) Disconnect(connID string) (int64, bool) {
	var (
		userID int64
		groups []string
		ok     bool
	)
	r.conns.RemoveCb(connID, func(_ string, pc *privateConn, exists bool) bool {
		if !exists || pc == nil {
			return false
		}
		pc.mu.Lock()
		pc.closed = true
		for g := range pc.groups {
			groups = append(groups, g)
		}
		pc.mu.Unlock()

		r.presence.SetOffline(pc.userID)
		userID, ok = pc.userID, true
		return true
	})
	if !ok {
		return 0, false
	}

	for _, g := range groups {
		r.removeFromGroup(g, connID)
	}
	r.userConns.RemoveCb(userID, func(_ int64, current string, exists bool) bool {
		return exists && current == connID
	})
	return userID, true
}

// GroupConnections lists the connections subscribed to a pair group.
func (r *PrivateRouter) GroupConnections(group string) []string {
	st, ok := r.groups.Get(group)
	if !ok {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, 0, len(st.conns))
	for id := range st.conns {
		out = append(out, id)
	}
	return out
}

// IsSubscribed reports whether the connection is in the pair group.
func (r *PrivateRouter) IsSubscribed(connID, group string) bool {
	pc, ok := r.conns.Get(connID)
	if !ok {
		return false
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, sub := pc.groups[group]
	return sub && !pc.closed
}

func (r *PrivateRouter) addToGroup(group, connID string) {
	for {
		st := r.groups.Upsert(group, nil, func(exist bool, current *pairState, _ *pairState) *pairState {
			if exist && current != nil {
				return current
			}
			return &pairState{conns: make(map[string]struct{})}
		})
		st.mu.Lock()
		if st.closed {
			st.mu.Unlock()
			continue
		}
		st.conns[connID] = struct{}{}
		st.mu.Unlock()
		return
	}
}

func (r *PrivateRouter) removeFromGroup(group, connID string) {
	st, ok := r.groups.Get(group)
	if !ok {
		return
	}
	st.mu.Lock()
	delete(st.conns, connID)
	empty := len(st.conns) == 0
	st.mu.Unlock()
	if !empty {
		return
	}
	r.groups.RemoveCb(group, func(_ string, current *pairState, exists bool) bool {
		if !exists || current != st {
			return false
		}
		current.mu.Lock()
		defer current.mu.Unlock()
		if len(current.conns) > 0 {
			return false
		}
		current.closed = true
		return true
	})
}
