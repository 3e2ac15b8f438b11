package hub

import (
	"context"
	"time"

	"chat-platform/internal/errs"
	"chat-platform/internal/metrics"
	"chat-platform/internal/models"
	"chat-platform/pkg/logger"
)

// newMessage validates a send command and builds the message to persist.
// An omitted type means text.
func newMessage(scope models.Scope, scopeID, senderID int64, senderName string, cmd *models.Command) (*models.Message, error) {
	msgType := cmd.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, errs.Newf(errs.KindInvalidInput, "unsupported message type %q", msgType)
	}

	msg := &models.Message{
		Scope:      scope,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    cmd.Content,
		Type:       msgType,
		File:       cmd.FileMeta(),
	}
	switch scope {
	case models.ScopeGroup:
		msg.GroupID = scopeID
	case models.ScopePrivate:
		msg.ReceiverID = scopeID
	default:
		msg.RoomID = scopeID
	}

	if !msg.HasBody() {
		if msgType == models.MessageTypeText {
			return nil, errs.New(errs.KindInvalidInput, "message content is required")
		}
		return nil, errs.Newf(errs.KindInvalidInput, "%s message needs a file url or content", msgType)
	}
	return msg, nil
}

// persistMessage stores msg and fills in its id. A store error or a non-positive
// id are both persistence failures.
func persistMessage(ctx context.Context, save saveFunc, msg *models.Message) error {
	id, err := save(ctx, msg)
	if err != nil {
		metrics.PersistFailures.WithLabelValues(string(msg.Scope)).Inc()
		logger.Error("Error saving %s message from user %d: %v", msg.Scope, msg.SenderID, err)
		return errs.Wrap(errs.KindPersistence, err, "message could not be saved")
	}
	if id <= 0 {
		metrics.PersistFailures.WithLabelValues(string(msg.Scope)).Inc()
		logger.Error("Store returned invalid id %d for %s message from user %d", id, msg.Scope, msg.SenderID)
		return errs.New(errs.KindPersistence, "message could not be saved")
	}

	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return nil
}
