// ABOUTME: Interfaces describing what the conversation layer needs from the service
// ABOUTME: Implemented by assistant.Client; faked in tests

package conversation

import (
	"context"

	"github.com/2389/coven-assistant/internal/assistant"
)

// ThreadCreator provisions remote threads.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (*assistant.Thread, error)
}

// ThreadInspector looks up remote threads.
type ThreadInspector interface {
	GetThread(ctx context.Context, threadID string) (*assistant.Thread, error)
}

// MessageCreator appends messages to remote threads.
type MessageCreator interface {
	CreateMessage(ctx context.Context, threadID, role, content string) (*assistant.Message, error)
}

// RunAPI starts and observes runs.
type RunAPI interface {
	CreateRun(ctx context.Context, threadID string, req assistant.RunRequest) (*assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error)
}

// Remote is the full surface used by Service.
type Remote interface {
	ThreadCreator
	ThreadInspector
	MessageCreator
	RunAPI
}

var _ Remote = (*assistant.Client)(nil)
