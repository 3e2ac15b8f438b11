// Package router maps live connections to the chat scope they are currently in.
package router

import (
	"errors"
	"fmt"

	"chat-platform/internal/membership"
	"chat-platform/internal/presence"
	"chat-platform/internal/shard"

	cmap "github.com/orcaman/concurrent-map/v2"
)

var (
	ErrAlreadyBound  = errors.New("connection already bound")
	ErrNotRegistered = errors.New("connection not registered")
)

// Binding is the room a connection is currently bound to.
type Binding struct {
	ConnID      string
	RoomID      int64
	Participant membership.Participant
}

// Router holds at most one room binding per connection. Binding joins the room
// membership and holds the user online; unbinding undoes both exactly once.
type Router struct {
	bindings cmap.ConcurrentMap[string, *Binding]
	members  *membership.Membership
	presence *presence.Registry
}

func New(members *membership.Membership, registry *presence.Registry) *Router {
	return &Router{
		bindings: cmap.NewWithCustomShardingFunction[string, *Binding](shard.String),
		members:  members,
		presence: registry,
	}
}

func (r *Router) Members() *membership.Membership {
	return r.members
}

// Bind fails with ErrAlreadyBound if the connection is bound anywhere, including
// the same room. The caller has to Unbind first.
func (r *Router) Bind(connID string, roomID int64, p membership.Participant) (membership.JoinResult, error) {
	var (
		res     membership.JoinResult
		current *Binding
	)
	r.bindings.Upsert(connID, nil, func(exist bool, existing *Binding, _ *Binding) *Binding {
		if exist && existing != nil {
			current = existing
			return existing
		}
		res = r.members.Join(roomID, connID, p)
		r.presence.SetOnline(p.UserID)
		return &Binding{ConnID: connID, RoomID: roomID, Participant: p}
	})
	if current != nil {
		return membership.JoinResult{}, fmt.Errorf("%w to room %d", ErrAlreadyBound, current.RoomID)
	}
	return res, nil
}

// Unbind releases the connection's room. It is a no-op returning false when the
// connection is not bound, so racing callers release the binding exactly once.
func (r *Router) Unbind(connID string) (Binding, membership.LeaveResult, bool) {
	var (
		released Binding
		res      membership.LeaveResult
		ok       bool
	)
	r.bindings.RemoveCb(connID, func(_ string, b *Binding, exists bool) bool {
		if !exists || b == nil {
			return false
		}
		res = r.members.Leave(b.RoomID, connID)
		r.presence.SetOffline(b.Participant.UserID)
		released, ok = *b, true
		return true
	})
	return released, res, ok
}

// OnTransportDisconnect is Unbind for connections that went away without leaving.
// Safe for connections that never bound.
func (r *Router) OnTransportDisconnect(connID string) (Binding, membership.LeaveResult, bool) {
	return r.Unbind(connID)
}

func (r *Router) Lookup(connID string) (Binding, bool) {
	b, ok := r.bindings.Get(connID)
	if !ok || b == nil {
		return Binding{}, false
	}
	return *b, true
}

func (r *Router) BoundCount() int {
	return r.bindings.Count()
}
