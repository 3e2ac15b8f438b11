package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-platform/internal/database"
	"chat-platform/internal/errs"
	"chat-platform/internal/events"
	"chat-platform/internal/membership"
	"chat-platform/internal/metrics"
	"chat-platform/internal/models"
	"chat-platform/internal/router"
	"chat-platform/internal/shard"
	"chat-platform/pkg/logger"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Options carries the collaborators every hub needs.
type Options struct {
	Directory   *Directory
	Store       database.MessageStore
	Publisher   events.Publisher
	HistorySize int
	// StoreTimeout bounds every store call made on behalf of a command.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Directory == nil {
		o.Directory = NewDirectory()
	}
	if o.Publisher == nil {
		o.Publisher = events.Noop{}
	}
	o.HistorySize = database.ClampHistory(o.HistorySize)
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 10 * time.Second
	}
	return o
}

type saveFunc func(ctx context.Context, msg *models.Message) (int64, error)
type authorizeFunc func(ctx context.Context, scopeID, userID int64) error

// backlog holds the frames fanned out to a connection between its Bind and its
// history replay. It is only touched under the connection's scope lock.
type backlog struct {
	frames []*Frame
}

// broadcastHub is the room-shaped protocol shared by public rooms and groups:
// one binding per connection, history replay on join, membership fanout.
type broadcastHub struct {
	name      string
	scope     models.Scope
	router    *router.Router
	opts      Options
	locks     scopeLocks
	save      saveFunc
	authorize authorizeFunc
	joining   cmap.ConcurrentMap[string, *backlog]
}

func newBroadcastHub(name string, scope models.Scope, r *router.Router, opts Options, save saveFunc, authorize authorizeFunc) *broadcastHub {
	return &broadcastHub{
		name:      name,
		scope:     scope,
		router:    r,
		opts:      opts.withDefaults(),
		save:      save,
		authorize: authorize,
		joining:   cmap.NewWithCustomShardingFunction[string, *backlog](shard.String),
	}
}

func (h *broadcastHub) Name() string {
	return h.name
}

func (h *broadcastHub) Open(_ context.Context, s Sink) error {
	h.opts.Directory.Add(s)
	metrics.Connections.WithLabelValues(h.name).Inc()
	return nil
}

func (h *broadcastHub) Close(ctx context.Context, s Sink) {
	h.Disconnect(ctx, s)
	h.opts.Directory.Remove(s.ID())
	metrics.Connections.WithLabelValues(h.name).Dec()
}

func (h *broadcastHub) Handle(ctx context.Context, s Sink, cmd *models.Command) error {
	switch cmd.Action {
	case models.ActionJoin:
		return h.Join(ctx, s, cmd.ScopeID, cmd.Username)
	case models.ActionSend:
		return h.Send(ctx, s, cmd)
	case models.ActionLeave:
		return h.Leave(ctx, s, cmd.ScopeID)
	default:
		return errs.Newf(errs.KindInvalidInput, "unknown action %q", cmd.Action)
	}
}

// Join binds the connection to scopeID, broadcasts the new member list and
// replays recent history to the joiner alone. The joiner sees the history
// first; anything fanned out while it loads is held back and follows it.
// Rejoining the bound scope only replays.
func (h *broadcastHub) Join(ctx context.Context, s Sink, scopeID int64, username string) error {
	if scopeID <= 0 {
		return errs.Newf(errs.KindInvalidInput, "invalid %s id", h.scope)
	}

	if h.authorize != nil {
		if err := h.authorize(ctx, scopeID, s.UserID()); err != nil {
			return err
		}
	}

	if b, ok := h.router.Lookup(s.ID()); ok {
		if b.RoomID == scopeID {
			return h.replay(ctx, s, scopeID)
		}
		h.release(s.ID(), false)
	}

	if username == "" {
		username = s.Username()
	}
	p := membership.Participant{UserID: s.UserID(), Username: username}
	key := scopeKey(h.scope, scopeID)

	unlock := h.locks.lock(key)
	res, err := h.router.Bind(s.ID(), scopeID, p)
	if err != nil {
		unlock()
		if errors.Is(err, router.ErrAlreadyBound) {
			return errs.Wrap(errs.KindInvalidInput, err, "connection is already in another "+string(h.scope))
		}
		return err
	}
	h.joining.Set(s.ID(), &backlog{})
	h.broadcastMembers(scopeID, res.Members)
	if res.FirstForUser {
		h.broadcastSystem(scopeID, fmt.Sprintf("%s joined", p.Username))
	}
	unlock()

	history := h.history(ctx, scopeID)
	hf := h.historyFrame(scopeID, history)
	replayed := make(map[int64]bool, len(history))
	for _, m := range history {
		replayed[m.ID] = true
	}

	unlock = h.locks.lock(key)
	q, _ := h.joining.Pop(s.ID())
	if hf != nil {
		s.Deliver(hf)
	}
	if q != nil {
		for _, f := range q.frames {
			if m := f.Event.Message; m != nil && m.ID > 0 && replayed[m.ID] {
				continue
			}
			s.Deliver(f)
		}
	}
	unlock()

	logger.Info("User %s joined %s %d", p.Username, h.scope, scopeID)
	return nil
}

// Send persists the message and then fans it out to every connection bound to
// the sender's scope. Nothing is delivered unless the store assigned an id.
func (h *broadcastHub) Send(ctx context.Context, s Sink, cmd *models.Command) error {
	b, ok := h.router.Lookup(s.ID())
	if !ok {
		return errs.Newf(errs.KindNotBound, "join a %s before sending", h.scope)
	}
	if cmd.ScopeID != 0 && cmd.ScopeID != b.RoomID {
		return errs.Newf(errs.KindNotBound, "not joined to %s %d", h.scope, cmd.ScopeID)
	}

	msg, err := newMessage(h.scope, b.RoomID, s.UserID(), b.Participant.Username, cmd)
	if err != nil {
		return err
	}
	if err := h.persist(ctx, msg); err != nil {
		return err
	}

	evt := models.NewEvent(models.EventMessage, h.scope, b.RoomID)
	evt.Message = msg
	f := frame(evt)

	unlock := h.locks.lock(scopeKey(h.scope, b.RoomID))
	h.fanout(b.RoomID, f)
	unlock()

	metrics.MessagesDelivered.WithLabelValues(string(h.scope)).Inc()
	if err := h.opts.Publisher.Publish(ctx, msg); err != nil {
		logger.Warn("Publishing %s message %d failed: %v", h.scope, msg.ID, err)
	}
	return nil
}

// Leave releases the connection's binding. Leaving while unbound is a no-op.
func (h *broadcastHub) Leave(_ context.Context, s Sink, scopeID int64) error {
	b, ok := h.router.Lookup(s.ID())
	if !ok {
		return nil
	}
	if scopeID != 0 && scopeID != b.RoomID {
		return errs.Newf(errs.KindNotBound, "not joined to %s %d", h.scope, scopeID)
	}
	h.release(s.ID(), false)
	return nil
}

// Disconnect is the transport-close path. It is safe to call more than once.
func (h *broadcastHub) Disconnect(_ context.Context, s Sink) {
	h.release(s.ID(), true)
}

func (h *broadcastHub) release(connID string, transport bool) {
	b, ok := h.router.Lookup(connID)
	if !ok {
		return
	}

	unlock := h.locks.lock(scopeKey(h.scope, b.RoomID))
	defer unlock()

	h.joining.Remove(connID)
	var res membership.LeaveResult
	if transport {
		b, res, ok = h.router.OnTransportDisconnect(connID)
	} else {
		b, res, ok = h.router.Unbind(connID)
	}
	if !ok {
		return
	}

	h.broadcastMembers(b.RoomID, res.Members)
	if res.LastForUser {
		h.broadcastSystem(b.RoomID, fmt.Sprintf("%s left", b.Participant.Username))
	}
	logger.Info("User %s left %s %d", b.Participant.Username, h.scope, b.RoomID)
}

func (h *broadcastHub) replay(ctx context.Context, s Sink, scopeID int64) error {
	hf := h.historyFrame(scopeID, h.history(ctx, scopeID))

	unlock := h.locks.lock(scopeKey(h.scope, scopeID))
	defer unlock()
	if hf != nil {
		s.Deliver(hf)
	}
	if f := h.membersFrame(scopeID, h.router.Members().ListMembers(scopeID)); f != nil {
		s.Deliver(f)
	}
	return nil
}

func (h *broadcastHub) history(ctx context.Context, scopeID int64) []*models.Message {
	ctx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()

	msgs, err := h.opts.Store.GetRecentMessages(ctx, h.scope, scopeID, h.opts.HistorySize)
	if err != nil {
		logger.Error("Error loading history for %s %d: %v", h.scope, scopeID, err)
		return nil
	}
	return msgs
}

func (h *broadcastHub) historyFrame(scopeID int64, msgs []*models.Message) *Frame {
	evt := models.NewEvent(models.EventHistory, h.scope, scopeID)
	if msgs == nil {
		msgs = []*models.Message{}
	}
	evt.Messages = msgs
	return frame(evt)
}

func (h *broadcastHub) membersFrame(scopeID int64, members []*models.UserPresence) *Frame {
	evt := models.NewEvent(models.EventOnlineUsers, h.scope, scopeID)
	evt.Users, evt.UserCount = members, len(members)
	return frame(evt)
}

func (h *broadcastHub) broadcastMembers(scopeID int64, members []*models.UserPresence) {
	h.fanout(scopeID, h.membersFrame(scopeID, members))
}

func (h *broadcastHub) broadcastSystem(scopeID int64, text string) {
	evt := models.NewEvent(models.EventMessage, h.scope, scopeID)
	evt.Message = models.SystemMessage(h.scope, scopeID, text)
	h.fanout(scopeID, frame(evt))
}

// fanout delivers f to every connection bound to scopeID. Connections still
// waiting for their history get it queued instead. The caller holds the scope
// lock.
func (h *broadcastHub) fanout(scopeID int64, f *Frame) {
	if f == nil {
		return
	}
	ids := h.router.Members().ConnectionIDs(scopeID)
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		if q, ok := h.joining.Get(id); ok {
			q.frames = append(q.frames, f)
			continue
		}
		live = append(live, id)
	}
	h.opts.Directory.deliver(live, f)
}

func (h *broadcastHub) persist(ctx context.Context, msg *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()
	return persistMessage(ctx, h.save, msg)
}
