// Package summary asks an OpenAI-compatible chat completion API to summarize
// recent conversation history.
package summary

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat-platform/internal/errs"

	"github.com/go-resty/resty/v2"
)

const systemPrompt = "Summarize the following chat conversation in a few sentences. " +
	"Mention the main topics and any decisions or open questions."

// Summarizer turns a transcript into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a Summarizer backed by a chat completions endpoint.
type Client struct {
	http    *resty.Client
	model   string
	timeout time.Duration
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	http := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		http.SetAuthToken(apiKey)
	}
	return &Client{http: http, model: model, timeout: timeout}
}

// Summarize is bounded by the client timeout. Running out of time is reported
// as errs.KindUpstreamTimeout so callers can retry with fewer messages.
func (c *Client) Summarize(ctx context.Context, transcript string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		result completionResponse
		failed apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(completionRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: transcript},
			},
		}).
		SetResult(&result).
		SetError(&failed).
		Post("/chat/completions")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errs.Wrap(errs.KindUpstreamTimeout, err, "summary took too long, try fewer messages")
		}
		return "", errs.Wrap(errs.KindUpstream, err, "summary service unavailable")
	}
	if resp.IsError() {
		msg := failed.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", errs.Newf(errs.KindUpstream, "summary service failed: %s", msg)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", errs.New(errs.KindUpstream, "summary service returned no content")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
