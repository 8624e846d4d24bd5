// ABOUTME: Tests for the dispatcher using fake conversation and transport
// ABOUTME: Covers start, debug, callbacks, free text, error rendering and panics

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-assistant/internal/conversation"
	"github.com/2389/coven-assistant/internal/prompts"
)

type sentMessage struct {
	Room     string
	Text     string
	Keyboard bool
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentMessage
	acks    []string
	typing  []bool
	sendErr error
}

func (f *fakeTransport) SendText(_ context.Context, roomID, text string, keyboard []prompts.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Room: roomID, Text: text, Keyboard: len(keyboard) > 0})
	return f.sendErr
}

func (f *fakeTransport) Acknowledge(_ context.Context, in Inbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, in.EventID)
	return nil
}

func (f *fakeTransport) Typing(_ context.Context, _ string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typing)
	return nil
}

type fakeConversation struct {
	degraded    bool
	restarts    []string
	reply       conversation.Reply
	err         error
	explain     conversation.Reply
	explainErr  error
	texts       []string
	debug       conversation.DebugInfo
	panicOnSend bool
	sendDelay   time.Duration
}

func (f *fakeConversation) Restart(_ context.Context, userID string) bool {
	f.restarts = append(f.restarts, userID)
	return f.degraded
}

func (f *fakeConversation) ExplainLast(context.Context, string) (conversation.Reply, error) {
	return f.explain, f.explainErr
}

func (f *fakeConversation) SendMessage(_ context.Context, _ string, text string) (conversation.Reply, error) {
	if f.panicOnSend {
		panic("boom")
	}
	f.texts = append(f.texts, text)
	time.Sleep(f.sendDelay)
	return f.reply, f.err
}

func (f *fakeConversation) Debug(context.Context, string) conversation.DebugInfo {
	return f.debug
}

func newTestDispatcher(conv *fakeConversation, typing bool) (*Dispatcher, *fakeTransport) {
	tr := &fakeTransport{}
	return NewDispatcher(conv, tr, prompts.Default(), typing, nil), tr
}

const (
	room = "!room:example.org"
	user = "@alice:example.org"
)

func TestDispatcher_Start(t *testing.T) {
	conv := &fakeConversation{}
	d, tr := newTestDispatcher(conv, false)

	d.Handle(context.Background(), Inbound{Kind: KindStart, RoomID: room, UserID: user})

	assert.Equal(t, []string{user}, conv.restarts)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, prompts.Default().Welcome, tr.sent[0].Text)
	assert.True(t, tr.sent[0].Keyboard)
}

func TestDispatcher_StartDegradedWarns(t *testing.T) {
	conv := &fakeConversation{degraded: true}
	d, tr := newTestDispatcher(conv, false)

	d.Handle(context.Background(), Inbound{Kind: KindStart, RoomID: room, UserID: user})

	require.Len(t, tr.sent, 2)
	assert.Equal(t, prompts.Default().Welcome, tr.sent[0].Text)
	assert.Equal(t, prompts.Default().DegradedWarning, tr.sent[1].Text)
	assert.False(t, tr.sent[1].Keyboard)
}

func TestDispatcher_Debug(t *testing.T) {
	conv := &fakeConversation{debug: conversation.DebugInfo{UserID: user, MessageCount: 4}}
	d, tr := newTestDispatcher(conv, false)

	d.Handle(context.Background(), Inbound{Kind: KindDebug, RoomID: room, UserID: user})

	require.Len(t, tr.sent, 1)
	assert.Equal(t, conv.debug.String(), tr.sent[0].Text)
	assert.Contains(t, tr.sent[0].Text, "Messages in history: 4")
}

func TestDispatcher_RestartCallback(t *testing.T) {
	conv := &fakeConversation{}
	d, tr := newTestDispatcher(conv, false)

	d.Handle(context.Background(), Inbound{Kind: KindCallback, Callback: prompts.CallbackStart, RoomID: room, UserID: user, EventID: "$press"})

	assert.Len(t, conv.restarts, 1)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, prompts.Default().Restarted, tr.sent[0].Text)
	assert.Equal(t, []string{"$press"}, tr.acks)
}

func TestDispatcher_ExplainCallback(t *testing.T) {
	tests := []struct {
		name     string
		reply    conversation.Reply
		err      error
		wantText string
	}{
		{"empty history", conversation.Reply{Empty: true}, nil, prompts.Default().NothingToExplain},
		{"explained", conversation.Reply{Text: "Here is why."}, nil, "Here is why."},
		{"timeout", conversation.Reply{}, conversation.ErrTimeout, "Error: Timeout waiting for assistant response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConversation{explain: tt.reply, explainErr: tt.err}
			d, tr := newTestDispatcher(conv, true)

			d.Handle(context.Background(), Inbound{Kind: KindCallback, Callback: prompts.CallbackExplain, RoomID: room, UserID: user, EventID: "$press"})

			require.Len(t, tr.sent, 1)
			assert.Equal(t, tt.wantText, tr.sent[0].Text)
			assert.True(t, tr.sent[0].Keyboard)
			assert.Equal(t, []bool{true, false}, tr.typing)
			assert.Equal(t, []string{"$press"}, tr.acks)
		})
	}
}

func TestDispatcher_UnknownCallbackStillAcknowledged(t *testing.T) {
	conv := &fakeConversation{}
	d, tr := newTestDispatcher(conv, false)

	d.Handle(context.Background(), Inbound{Kind: KindCallback, Callback: "nope", RoomID: room, UserID: user, EventID: "$press"})

	assert.Empty(t, tr.sent)
	assert.Equal(t, []string{"$press"}, tr.acks)
}

func TestDispatcher_Text(t *testing.T) {
	conv := &fakeConversation{reply: conversation.Reply{Text: "I'm fine, thanks!", RunID: "run_1"}}
	d, tr := newTestDispatcher(conv, true)

	d.Handle(context.Background(), Inbound{Kind: KindText, Text: "How are you?", RoomID: room, UserID: user})

	assert.Equal(t, []string{"How are you?"}, conv.texts)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, sentMessage{Room: room, Text: "I'm fine, thanks!", Keyboard: true}, tr.sent[0])
	assert.Equal(t, []bool{true, false}, tr.typing)
}

func TestDispatcher_BlankReplyStillAnswers(t *testing.T) {
	blank := conversation.ExtractContent([]byte(`[{"type":"text","text":{"value":""}}]`))
	require.Empty(t, blank)

	conv := &fakeConversation{reply: conversation.Reply{Text: blank}, explain: conversation.Reply{Text: blank}}
	d, tr := newTestDispatcher(conv, false)

	d.Handle(context.Background(), Inbound{Kind: KindText, Text: "hi", RoomID: room, UserID: user})
	d.Handle(context.Background(), Inbound{Kind: KindCallback, Callback: prompts.CallbackExplain, RoomID: room, UserID: user, EventID: "$press"})

	require.Len(t, tr.sent, 2)
	assert.Equal(t, conversation.EmptyReply, tr.sent[0].Text)
	assert.Equal(t, conversation.EmptyReply, tr.sent[1].Text)
}

func TestDispatcher_TypingRefreshedDuringLongTurn(t *testing.T) {
	conv := &fakeConversation{reply: conversation.Reply{Text: "done"}, sendDelay: 120 * time.Millisecond}
	d, tr := newTestDispatcher(conv, true)
	d.refresh = 20 * time.Millisecond

	d.Handle(context.Background(), Inbound{Kind: KindText, Text: "slow question", RoomID: room, UserID: user})

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.GreaterOrEqual(t, len(tr.typing), 3)
	assert.False(t, tr.typing[len(tr.typing)-1], "cleared last")
	for _, typing := range tr.typing[:len(tr.typing)-1] {
		assert.True(t, typing)
	}
}

func TestDispatcher_TextErrorRendered(t *testing.T) {
	runErr := fmt.Errorf("turn: %w", &conversation.RunFailureError{RunID: "run_1", Status: "failed", Message: "rate limited"})
	conv := &fakeConversation{err: runErr}
	d, tr := newTestDispatcher(conv, false)

	d.Handle(context.Background(), Inbound{Kind: KindText, Text: "hi", RoomID: room, UserID: user})

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "Error: Run ended with status: failed. Details: rate limited", tr.sent[0].Text)
	assert.Empty(t, tr.typing, "typing disabled")
}

func TestDispatcher_EmptyTextIgnored(t *testing.T) {
	conv := &fakeConversation{}
	d, tr := newTestDispatcher(conv, true)

	d.Handle(context.Background(), Inbound{Kind: KindText, RoomID: room, UserID: user})

	assert.Empty(t, conv.texts)
	assert.Empty(t, tr.sent)
}

func TestDispatcher_PanicReportedToRoom(t *testing.T) {
	conv := &fakeConversation{panicOnSend: true}
	d, tr := newTestDispatcher(conv, false)

	assert.NotPanics(t, func() {
		d.Handle(context.Background(), Inbound{Kind: KindText, Text: "hi", RoomID: room, UserID: user})
	})
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "Something went wrong. Please try again later.", tr.sent[0].Text)
}

func TestDispatcher_SendFailureIsLoggedOnly(t *testing.T) {
	conv := &fakeConversation{reply: conversation.Reply{Text: "ok"}}
	d, tr := newTestDispatcher(conv, false)
	tr.sendErr = errors.New("homeserver down")

	assert.NotPanics(t, func() {
		d.Handle(context.Background(), Inbound{Kind: KindText, Text: "hi", RoomID: room, UserID: user})
	})
	assert.Len(t, tr.sent, 1)
}
