// ABOUTME: Tests for command parsing
// ABOUTME: Prefix handling and free-text fallthrough

package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		prefix string
		body   string
		want   Kind
	}{
		{"!", "!start", KindStart},
		{"!", "/start", KindStart},
		{"!", "  !START  ", KindStart},
		{"!", "!debug", KindDebug},
		{"!", "/debug now", KindDebug},
		{"", "/start", KindStart},
		{"", "!start", KindText},
		{"!", "!restart", KindText},
		{"!", "!", KindText},
		{"!", "start", KindText},
		{"!", "How are you?", KindText},
		{"!bot ", "!bot start", KindStart},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCommand(tt.prefix, tt.body), "prefix=%q body=%q", tt.prefix, tt.body)
	}
}

func TestParseMessage(t *testing.T) {
	in := ParseMessage("!", "!r:x", "@a:x", "$e", "  How are you?  ")
	assert.Equal(t, Inbound{Kind: KindText, RoomID: "!r:x", UserID: "@a:x", EventID: "$e", Text: "How are you?"}, in)

	in = ParseMessage("!", "!r:x", "@a:x", "$e", "!start")
	assert.Equal(t, KindStart, in.Kind)
	assert.Empty(t, in.Text)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "callback", KindCallback.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
