// Package membership keeps the live, connection-derived view of who is in each room.
//
// Rooms are created lazily on the first Join and dropped as soon as their last
// connection leaves. A user with several connections in one room appears once in the
// member list.
package membership

import (
	"sort"
	"sync"
	"time"

	"chat-platform/internal/models"
	"chat-platform/internal/shard"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Participant identifies the user behind a connection.
type Participant struct {
	UserID    int64
	Username  string
	AvatarURL string
}

type roomState struct {
	mu        sync.RWMutex
	closed    bool
	conns     map[string]Participant
	users     map[int64]*models.UserPresence
	userConns map[int64]int
}

func newRoomState() *roomState {
	return &roomState{
		conns:     make(map[string]Participant),
		users:     make(map[int64]*models.UserPresence),
		userConns: make(map[int64]int),
	}
}

// JoinResult describes the room right after a Join.
type JoinResult struct {
	Members []*models.UserPresence
	// FirstForUser is true when this connection is the user's only one in the room.
	FirstForUser bool
	// Duplicate is true when the connection was already registered in the room.
	Duplicate bool
}

// LeaveResult describes the room right after a Leave.
type LeaveResult struct {
	Participant Participant
	Members     []*models.UserPresence
	// LastForUser is true when the user has no connection left in the room.
	LastForUser bool
	// Found is false when the connection was not in the room.
	Found bool
}

type Membership struct {
	rooms cmap.ConcurrentMap[int64, *roomState]
	now   func() time.Time
}

func New() *Membership {
	return &Membership{
		rooms: cmap.NewWithCustomShardingFunction[int64, *roomState](shard.Int64),
		now:   time.Now,
	}
}

func (m *Membership) Join(roomID int64, connID string, p Participant) JoinResult {
	for {
		st := m.rooms.Upsert(roomID, nil, func(exist bool, current *roomState, _ *roomState) *roomState {
			if exist && current != nil {
				return current
			}
			return newRoomState()
		})

		st.mu.Lock()
		if st.closed {
			// Lost a race with the removal of an emptied room; look it up again.
			st.mu.Unlock()
			continue
		}

		if _, ok := st.conns[connID]; ok {
			members := st.snapshot()
			st.mu.Unlock()
			return JoinResult{Members: members, Duplicate: true}
		}

		st.conns[connID] = p
		st.userConns[p.UserID]++
		first := st.userConns[p.UserID] == 1
		if first {
			st.users[p.UserID] = &models.UserPresence{
				ID:         p.UserID,
				Username:   p.Username,
				Status:     models.StatusOnline,
				LastActive: m.now(),
				AvatarURL:  p.AvatarURL,
			}
		} else if u := st.users[p.UserID]; u != nil {
			u.LastActive = m.now()
		}
		members := st.snapshot()
		st.mu.Unlock()

		return JoinResult{Members: members, FirstForUser: first}
	}
}

func (m *Membership) Leave(roomID int64, connID string) LeaveResult {
	st, ok := m.rooms.Get(roomID)
	if !ok {
		return LeaveResult{Members: []*models.UserPresence{}}
	}

	st.mu.Lock()
	p, found := st.conns[connID]
	if !found {
		members := st.snapshot()
		st.mu.Unlock()
		return LeaveResult{Members: members}
	}

	delete(st.conns, connID)
	st.userConns[p.UserID]--
	last := st.userConns[p.UserID] <= 0
	if last {
		delete(st.userConns, p.UserID)
		delete(st.users, p.UserID)
	}
	members := st.snapshot()
	empty := len(st.conns) == 0
	st.mu.Unlock()

	if empty {
		m.rooms.RemoveCb(roomID, func(_ int64, current *roomState, exists bool) bool {
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

	return LeaveResult{Participant: p, Members: members, LastForUser: last, Found: true}
}

// ListMembers returns the user-level presence snapshot, sorted by username.
// Unknown rooms yield an empty list.
func (m *Membership) ListMembers(roomID int64) []*models.UserPresence {
	st, ok := m.rooms.Get(roomID)
	if !ok {
		return []*models.UserPresence{}
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot()
}

// ConnectionIDs returns the connections currently registered in the room.
func (m *Membership) ConnectionIDs(roomID int64) []string {
	st, ok := m.rooms.Get(roomID)
	if !ok {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.conns))
	for id := range st.conns {
		ids = append(ids, id)
	}
	return ids
}

// HasRoom reports whether the room currently has any connection.
func (m *Membership) HasRoom(roomID int64) bool {
	return m.rooms.Has(roomID)
}

func (m *Membership) RoomCount() int {
	return m.rooms.Count()
}

// snapshot copies the member list; callers hold st.mu.
func (st *roomState) snapshot() []*models.UserPresence {
	out := make([]*models.UserPresence, 0, len(st.users))
	for _, u := range st.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username == out[j].Username {
			return out[i].ID < out[j].ID
		}
		return out[i].Username < out[j].Username
	})
	return out
}
