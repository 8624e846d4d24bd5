// ABOUTME: Routes inbound chat actions to the conversation service
// ABOUTME: Renders replies, errors and fixed prompts back through the Transport

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-assistant/internal/conversation"
	"github.com/2389/coven-assistant/internal/prompts"
)

// Transport sends to the chat network.
type Transport interface {
	// SendText posts text to a room with the keyboard attached. A nil
	// keyboard sends a bare message.
	SendText(ctx context.Context, roomID, text string, keyboard []prompts.Button) error
	// Acknowledge confirms a callback was handled.
	Acknowledge(ctx context.Context, in Inbound) error
	Typing(ctx context.Context, roomID string, typing bool) error
}

// Conversation is the part of conversation.Service the dispatcher drives.
type Conversation interface {
	Restart(ctx context.Context, userID string) bool
	ExplainLast(ctx context.Context, userID string) (conversation.Reply, error)
	SendMessage(ctx context.Context, userID, text string) (conversation.Reply, error)
	Debug(ctx context.Context, userID string) conversation.DebugInfo
}

var _ Conversation = (*conversation.Service)(nil)

// typingRefresh re-sends the typing indicator before typingTimeout expires,
// so it stays up for runs that poll longer than one timeout.
const typingRefresh = 20 * time.Second

// Dispatcher handles one inbound action at a time per call; it is safe to
// call Handle from many goroutines.
type Dispatcher struct {
	conv      Conversation
	transport Transport
	prompts   *prompts.Prompts
	typing    bool
	refresh   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil p uses prompts.Default().
func NewDispatcher(conv Conversation, transport Transport, p *prompts.Prompts, typing bool, logger *slog.Logger) *Dispatcher {
	if p == nil {
		p = prompts.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		conv:      conv,
		transport: transport,
		prompts:   p,
		typing:    typing,
		refresh:   typingRefresh,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Handle processes in. Failures are reported to the room, never returned.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) {
	logger := d.logger.With("kind", in.Kind, "room", in.RoomID, "user_id", in.UserID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic handling event", "panic", r)
			d.send(ctx, in.RoomID, conversation.UserMessage(fmt.Errorf("panic: %v", r)), nil)
		}
	}()

	switch in.Kind {
	case KindStart:
		d.restart(ctx, in, d.prompts.Welcome)
	case KindDebug:
		info := d.conv.Debug(ctx, in.UserID)
		d.send(ctx, in.RoomID, info.String(), d.prompts.Keyboard)
	case KindCallback:
		d.callback(ctx, in, logger)
	case KindText:
		if in.Text == "" {
			return
		}
		d.message(ctx, in, logger)
	default:
		logger.Warn("unhandled inbound kind")
	}
}

func (d *Dispatcher) restart(ctx context.Context, in Inbound, greeting string) {
	degraded := d.conv.Restart(ctx, in.UserID)
	d.send(ctx, in.RoomID, greeting, d.prompts.Keyboard)
	if degraded {
		d.send(ctx, in.RoomID, d.prompts.DegradedWarning, nil)
	}
}

func (d *Dispatcher) callback(ctx context.Context, in Inbound, logger *slog.Logger) {
	defer func() {
		if err := d.transport.Acknowledge(ctx, in); err != nil {
			logger.Debug("acknowledging callback", "error", err)
		}
	}()

	switch in.Callback {
	case prompts.CallbackStart:
		d.restart(ctx, in, d.prompts.Restarted)
	case prompts.CallbackExplain:
		stopTyping := d.startTyping(ctx, in.RoomID)
		reply, err := d.conv.ExplainLast(ctx, in.UserID)
		stopTyping()
		switch {
		case err != nil:
			d.send(ctx, in.RoomID, conversation.UserMessage(err), d.prompts.Keyboard)
		case reply.Empty:
			d.send(ctx, in.RoomID, d.prompts.NothingToExplain, d.prompts.Keyboard)
		default:
			d.send(ctx, in.RoomID, replyText(reply), d.prompts.Keyboard)
		}
	default:
		logger.Warn("unknown callback", "callback", in.Callback)
	}
}

func (d *Dispatcher) message(ctx context.Context, in Inbound, logger *slog.Logger) {
	stopTyping := d.startTyping(ctx, in.RoomID)
	reply, err := d.conv.SendMessage(ctx, in.UserID, in.Text)
	stopTyping()

	if err != nil {
		logger.Warn("turn failed", "error", err)
		d.send(ctx, in.RoomID, conversation.UserMessage(err), d.prompts.Keyboard)
		return
	}
	d.send(ctx, in.RoomID, replyText(reply), d.prompts.Keyboard)
}

// replyText is the text to post for a successful reply. A run can complete
// with a blank message; the user still gets an answer.
func replyText(reply conversation.Reply) string {
	if reply.Text == "" {
		return conversation.EmptyReply
	}
	return reply.Text
}

// startTyping shows the typing indicator, refreshing it until the returned
// function is called, which clears it.
func (d *Dispatcher) startTyping(ctx context.Context, roomID string) func() {
	if !d.typing {
		return func() {}
	}
	d.setTyping(ctx, roomID)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.setTyping(ctx, roomID)
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		if err := d.transport.Typing(context.WithoutCancel(ctx), roomID, false); err != nil {
			d.logger.Debug("failed to clear typing indicator", "room", roomID, "error", err)
		}
	}
}

func (d *Dispatcher) setTyping(ctx context.Context, roomID string) {
	if err := d.transport.Typing(ctx, roomID, true); err != nil {
		d.logger.Debug("failed to set typing indicator", "room", roomID, "error", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, roomID, text string, keyboard []prompts.Button) {
	if text == "" {
		return
	}
	if err := d.transport.SendText(ctx, roomID, text, keyboard); err != nil {
		d.logger.Error("failed to send message", "room", roomID, "error", err)
	}
}
