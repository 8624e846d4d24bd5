// ABOUTME: Data types exchanged with the remote assistants service
// ABOUTME: Threads, runs, run statuses, and raw thread messages

package assistant

import (
	"encoding/json"
	"time"
)

// Message roles understood by the service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RunStatus is the status string reported for a run. The service may add new
// values at any time, so callers must not assume the set below is closed.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusExpired        RunStatus = "expired"
	RunStatusCancelled      RunStatus = "cancelled"
)

// Thread is a remote conversation context.
type Thread struct {
	ID        string
	CreatedAt time.Time
}

// RunRequest starts a run on a thread.
type RunRequest struct {
	AssistantID string
	// Instructions overrides the assistant's instructions for this run only.
	Instructions string
}

// Run is a single processing pass over a thread.
type Run struct {
	ID       string
	ThreadID string
	Status   RunStatus
	// LastError is the service's message for failed runs, if any.
	LastError string
}

// Message is a thread message as returned by the service. Content and Text
// are kept raw; see the conversation package for how they are read.
type Message struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Text    json.RawMessage `json:"text,omitempty"`
}

// messageList is the envelope of GET /threads/{id}/messages.
type messageList struct {
	Data []Message `json:"data"`
}
