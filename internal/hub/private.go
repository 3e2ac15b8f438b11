package hub

import (
	"context"
	"errors"
	"slices"

	"chat-platform/internal/errs"
	"chat-platform/internal/identity"
	"chat-platform/internal/metrics"
	"chat-platform/internal/models"
	"chat-platform/internal/router"
	"chat-platform/pkg/logger"
)

// PrivateHub serves 1:1 conversations. Each conversation fans out to its pair
// group; the receiver's registered connection gets a notify event when it has
// not opened the conversation.
type PrivateHub struct {
	router   *router.PrivateRouter
	identity *identity.Resolver
	opts     Options
	locks    scopeLocks
}

func NewPrivateHub(r *router.PrivateRouter, resolver *identity.Resolver, opts Options) *PrivateHub {
	return &PrivateHub{
		router:   r,
		identity: resolver,
		opts:     opts.withDefaults(),
	}
}

func (h *PrivateHub) Name() string {
	return "private"
}

// Open registers the connection as the user's current private endpoint.
func (h *PrivateHub) Open(_ context.Context, s Sink) error {
	h.opts.Directory.Add(s)
	if err := h.router.Register(s.ID(), s.UserID()); err != nil {
		h.opts.Directory.Remove(s.ID())
		return errs.Wrap(errs.KindInvalidInput, err, "connection already registered")
	}
	metrics.Connections.WithLabelValues(h.Name()).Inc()
	logger.Info("User %d opened private connection %s", s.UserID(), s.ID())
	return nil
}

func (h *PrivateHub) Close(ctx context.Context, s Sink) {
	h.Disconnect(ctx, s)
	h.opts.Directory.Remove(s.ID())
	metrics.Connections.WithLabelValues(h.Name()).Dec()
}

func (h *PrivateHub) Handle(ctx context.Context, s Sink, cmd *models.Command) error {
	switch cmd.Action {
	case models.ActionJoin:
		return h.Join(ctx, s, cmd.ScopeID)
	case models.ActionSend:
		return h.Send(ctx, s, cmd)
	case models.ActionLeave:
		return h.Leave(ctx, s, cmd.ScopeID)
	default:
		return errs.Newf(errs.KindInvalidInput, "unknown action %q", cmd.Action)
	}
}

// Join subscribes the connection to its pair group with friendID. Nothing is
// replayed and no membership is broadcast.
func (h *PrivateHub) Join(_ context.Context, s Sink, friendID int64) error {
	if err := validFriend(s.UserID(), friendID); err != nil {
		return err
	}
	group, _, err := h.router.Subscribe(s.ID(), friendID)
	if err != nil {
		return h.routeErr(err)
	}
	logger.Debug("Connection %s subscribed to %s", s.ID(), group)
	return nil
}

func (h *PrivateHub) Leave(_ context.Context, s Sink, friendID int64) error {
	if err := validFriend(s.UserID(), friendID); err != nil {
		return err
	}
	h.router.Unsubscribe(s.ID(), friendID)
	return nil
}

// Send persists a message to receiver cmd.ScopeID and delivers it to the pair
// group, sender included. A sender that has not joined the conversation is
// subscribed for the echo; the subscription is undone if the save fails.
func (h *PrivateHub) Send(ctx context.Context, s Sink, cmd *models.Command) error {
	receiverID := cmd.ScopeID
	if err := validFriend(s.UserID(), receiverID); err != nil {
		return err
	}

	msg, err := newMessage(models.ScopePrivate, receiverID, s.UserID(), h.senderName(ctx, s, cmd), cmd)
	if err != nil {
		return err
	}

	group, subscribed, err := h.router.Subscribe(s.ID(), receiverID)
	if err != nil {
		return h.routeErr(err)
	}

	saveCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	err = persistMessage(saveCtx, h.opts.Store.SavePrivateMessage, msg)
	cancel()
	if err != nil {
		if subscribed {
			h.router.Unsubscribe(s.ID(), receiverID)
		}
		return err
	}

	evt := models.NewEvent(models.EventMessage, models.ScopePrivate, receiverID)
	evt.Message = msg
	note := models.NewEvent(models.EventNotify, models.ScopePrivate, s.UserID())
	note.Message = msg
	mf, nf := frame(evt), frame(note)

	unlock := h.locks.lock(group)
	conns := h.router.GroupConnections(group)
	h.opts.Directory.deliver(conns, mf)
	if rc, ok := h.router.ConnectionFor(receiverID); ok && !slices.Contains(conns, rc) {
		h.opts.Directory.deliver([]string{rc}, nf)
	}
	unlock()

	metrics.MessagesDelivered.WithLabelValues(string(models.ScopePrivate)).Inc()
	if err := h.opts.Publisher.Publish(ctx, msg); err != nil {
		logger.Warn("Publishing private message %d failed: %v", msg.ID, err)
	}
	return nil
}

// Disconnect drops the registration and every pair-group subscription.
func (h *PrivateHub) Disconnect(_ context.Context, s Sink) {
	if userID, ok := h.router.Disconnect(s.ID()); ok {
		logger.Info("User %d closed private connection %s", userID, s.ID())
	}
}

func (h *PrivateHub) senderName(ctx context.Context, s Sink, cmd *models.Command) string {
	if cmd.Username != "" {
		return cmd.Username
	}
	if h.identity != nil {
		if a := h.identity.Author(ctx, s.UserID()); a.Found() || s.Username() == "" {
			return a.DisplayName
		}
	}
	if s.Username() != "" {
		return s.Username()
	}
	return identity.FallbackName(s.UserID())
}

func (h *PrivateHub) routeErr(err error) error {
	if errors.Is(err, router.ErrNotRegistered) {
		return errs.Wrap(errs.KindNotBound, err, "private connection is not registered")
	}
	return err
}

func validFriend(userID, friendID int64) error {
	if friendID <= 0 {
		return errs.New(errs.KindInvalidInput, "invalid user id")
	}
	if friendID == userID {
		return errs.New(errs.KindInvalidInput, "cannot open a conversation with yourself")
	}
	return nil
}
