// ABOUTME: Appends user utterances to a conversation thread
// ABOUTME: Fallback handles are handled locally without any network call

package conversation

import (
	"context"
	"log/slog"
)

// PostedMessage is the record of a posted message.
type PostedMessage struct {
	ID      string
	Role    string
	Content string
	// Local is set when nothing was sent because the handle is a fallback.
	Local bool
}

// Poster appends messages to threads.
type Poster struct {
	messages MessageCreator
	logger   *slog.Logger
}

// NewPoster creates a Poster backed by messages.
func NewPoster(messages MessageCreator, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		messages: messages,
		logger:   logger.With("component", "poster"),
	}
}

// Post appends content to the conversation identified by h. A failure is
// returned wrapped in ErrTransport or ErrMalformedResponse; the session is
// left untouched and the caller decides what to do.
func (p *Poster) Post(ctx context.Context, h Handle, role, content string) (*PostedMessage, error) {
	if h.IsFallback() {
		p.logger.Debug("fallback handle, storing message locally", "handle", h)
		return &PostedMessage{Role: role, Content: content, Local: true}, nil
	}

	msg, err := p.messages.CreateMessage(ctx, h.String(), role, content)
	if err != nil {
		p.logger.Error("posting message failed", "thread_id", h, "error", err)
		return nil, classifyRemote("posting message", err)
	}

	p.logger.Debug("message posted", "thread_id", h, "message_id", msg.ID)
	return &PostedMessage{ID: msg.ID, Role: role, Content: content}, nil
}
