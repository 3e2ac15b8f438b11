package hub

import (
	"chat-platform/internal/models"
	"chat-platform/internal/router"
)

// RoomHub serves public rooms. Anyone may join any room id.
type RoomHub struct {
	*broadcastHub
}

func NewRoomHub(r *router.Router, opts Options) *RoomHub {
	return &RoomHub{
		broadcastHub: newBroadcastHub("room", models.ScopeRoom, r, opts, opts.Store.SaveRoomMessage, nil),
	}
}

// Router exposes the binding state, for the active-users endpoint.
func (h *RoomHub) Router() *router.Router {
	return h.router
}
