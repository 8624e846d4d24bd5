// ABOUTME: Matrix implementation of Transport using mautrix
// ABOUTME: Messages carry HTML bodies; keyboards are seeded as reactions on the sent event

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-assistant/internal/prompts"
)

const (
	// typingTimeout is how long the typing indicator shows before the homeserver drops it.
	typingTimeout = 30 * time.Second
	// networkTimeout bounds small Matrix calls (typing, receipts, reactions).
	networkTimeout = 10 * time.Second
	// sendTimeout bounds message sends, which can be large.
	sendTimeout = 30 * time.Second
)

// SentRecorder remembers event ids the bridge sent so reactions on them can
// be recognized as button presses.
type SentRecorder interface {
	FirstSeen(key string) bool
}

// matrixTransport sends through a mautrix client.
type matrixTransport struct {
	client *mautrix.Client
	sent   SentRecorder
	logger *slog.Logger
}

func newMatrixTransport(client *mautrix.Client, sent SentRecorder, logger *slog.Logger) *matrixTransport {
	return &matrixTransport{
		client: client,
		sent:   sent,
		logger: logger.With("component", "matrix_transport"),
	}
}

// messageContent builds the event body for text, with an HTML body when the
// markdown renders to something richer than a paragraph.
func messageContent(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
	if html, ok := renderHTML(text); ok {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	return content
}

func (t *matrixTransport) SendText(ctx context.Context, roomID, text string, keyboard []prompts.Button) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	room := id.RoomID(roomID)
	resp, err := t.client.SendMessageEvent(sendCtx, room, event.EventMessage, messageContent(text))
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	t.sent.FirstSeen(resp.EventID.String())

	for _, b := range keyboard {
		reactCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), networkTimeout)
		_, err := t.client.SendReaction(reactCtx, room, resp.EventID, b.Key)
		cancel()
		if err != nil {
			// The message is out; a missing button only loses the shortcut.
			t.logger.Warn("failed to seed keyboard reaction", "room", roomID, "key", b.Key, "error", err)
		}
	}
	return nil
}

// Acknowledge marks the reaction as read, the Matrix stand-in for answering a callback.
func (t *matrixTransport) Acknowledge(ctx context.Context, in Inbound) error {
	if in.EventID == "" {
		return nil
	}
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), networkTimeout)
	defer cancel()
	if err := t.client.MarkRead(ackCtx, id.RoomID(in.RoomID), id.EventID(in.EventID)); err != nil {
		return fmt.Errorf("sending read receipt: %w", err)
	}
	return nil
}

func (t *matrixTransport) Typing(ctx context.Context, roomID string, typing bool) error {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	typingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), networkTimeout)
	defer cancel()
	if _, err := t.client.UserTyping(typingCtx, id.RoomID(roomID), typing, timeout); err != nil {
		return fmt.Errorf("setting typing: %w", err)
	}
	return nil
}
