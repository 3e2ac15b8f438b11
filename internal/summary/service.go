package summary

import (
	"context"
	"fmt"
	"strings"

	"chat-platform/internal/database"
	"chat-platform/internal/errs"
	"chat-platform/internal/metrics"
	"chat-platform/internal/models"
	"chat-platform/pkg/logger"
)

// Result is what the summary endpoints return.
type Result struct {
	Scope        models.Scope `json:"scope"`
	ScopeID      int64        `json:"scope_id"`
	MessageCount int          `json:"message_count"`
	Summary      string       `json:"summary"`
}

type Service struct {
	store       database.MessageStore
	summarizer  Summarizer
	maxMessages int
}

// NewService returns a Service. A nil summarizer disables summaries.
func NewService(store database.MessageStore, summarizer Summarizer, maxMessages int) *Service {
	return &Service{
		store:       store,
		summarizer:  summarizer,
		maxMessages: database.ClampHistory(maxMessages),
	}
}

func (s *Service) Summarize(ctx context.Context, scope models.Scope, scopeID int64, count int) (*Result, error) {
	if scopeID <= 0 {
		return nil, errs.Newf(errs.KindInvalidInput, "invalid %s id", scope)
	}
	if s.summarizer == nil {
		return nil, errs.New(errs.KindUpstream, "summaries are not configured")
	}
	if count <= 0 || count > s.maxMessages {
		count = s.maxMessages
	}

	msgs, err := s.store.GetRecentMessages(ctx, scope, scopeID, count)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "failed to load messages")
	}
	res := &Result{Scope: scope, ScopeID: scopeID, MessageCount: len(msgs)}
	if len(msgs) == 0 {
		res.Summary = "No messages to summarize yet."
		return res, nil
	}

	text, err := s.summarizer.Summarize(ctx, Transcript(msgs))
	if err != nil {
		metrics.SummaryRequests.WithLabelValues(string(errs.KindOf(err))).Inc()
		logger.Warn("Summary for %s %d failed: %v", scope, scopeID, err)
		return nil, err
	}
	metrics.SummaryRequests.WithLabelValues("ok").Inc()
	res.Summary = text
	return res, nil
}

// Transcript renders messages one per line as "name: content". Attachments are
// shown by file name.
func Transcript(msgs []*models.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		content := m.Content
		if m.File != nil && content == "" {
			content = fmt.Sprintf("[%s %s]", m.Type, m.File.Name)
		}
		fmt.Fprintf(&b, "%s: %s\n", m.SenderName, content)
	}
	return b.String()
}
