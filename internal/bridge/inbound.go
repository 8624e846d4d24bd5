// ABOUTME: Inbound chat events as the dispatcher sees them
// ABOUTME: Command parsing for start/debug with the configured or slash prefix

package bridge

import (
	"strings"
)

// Kind classifies an inbound event.
type Kind int

const (
	KindText Kind = iota
	KindStart
	KindDebug
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStart:
		return "start"
	case KindDebug:
		return "debug"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Inbound is one user action in a room.
type Inbound struct {
	Kind    Kind
	RoomID  string
	UserID  string
	EventID string
	// Text is the message body for KindText.
	Text string
	// Callback is the button's callback code for KindCallback.
	Callback string
}

// commandNames maps command words to kinds.
var commandNames = map[string]Kind{
	"start": KindStart,
	"debug": KindDebug,
}

// ParseCommand classifies a message body. Commands are recognized with the
// configured prefix or with "/"; anything else is free text.
func ParseCommand(prefix, body string) Kind {
	body = strings.TrimSpace(body)
	for _, p := range []string{prefix, "/"} {
		if p == "" || !strings.HasPrefix(body, p) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(body, p))
		if len(fields) == 0 {
			continue
		}
		if kind, ok := commandNames[strings.ToLower(fields[0])]; ok {
			return kind
		}
	}
	return KindText
}

// ParseMessage builds an Inbound from a text message.
func ParseMessage(prefix, roomID, userID, eventID, body string) Inbound {
	in := Inbound{
		Kind:    ParseCommand(prefix, body),
		RoomID:  roomID,
		UserID:  userID,
		EventID: eventID,
	}
	if in.Kind == KindText {
		in.Text = strings.TrimSpace(body)
	}
	return in
}
