package hub

import (
	"context"

	"chat-platform/internal/database"
	"chat-platform/internal/errs"
	"chat-platform/internal/models"
	"chat-platform/internal/router"
)

// GroupHub serves invite-only groups. Joining requires a membership row.
type GroupHub struct {
	*broadcastHub
	groups database.GroupStore
}

func NewGroupHub(r *router.Router, groups database.GroupStore, opts Options) *GroupHub {
	h := &GroupHub{groups: groups}
	h.broadcastHub = newBroadcastHub("group", models.ScopeGroup, r, opts, opts.Store.SaveGroupMessage, h.checkMember)
	return h
}

func (h *GroupHub) checkMember(ctx context.Context, groupID, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()

	ok, err := h.groups.IsGroupMember(ctx, groupID, userID)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "could not verify group membership")
	}
	if !ok {
		return errs.Newf(errs.KindForbidden, "not a member of group %d", groupID)
	}
	return nil
}
