// ABOUTME: Error taxonomy for conversation turns
// ABOUTME: Sentinels, the run failure type, and the user-facing rendering of each

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/coven-assistant/internal/assistant"
)

var (
	// ErrTransport wraps network and HTTP failures talking to the service.
	ErrTransport = errors.New("transport error")

	// ErrMalformedResponse is returned when a response lacks expected fields.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRunNotCreated is returned when run creation produced no run id.
	ErrRunNotCreated = fmt.Errorf("%w: run was not created", ErrMalformedResponse)

	// ErrTimeout is returned when a run is still pending after every poll attempt.
	ErrTimeout = errors.New("timeout waiting for assistant response")

	// ErrNoAssistantMessage is returned when a completed run left no assistant message.
	ErrNoAssistantMessage = errors.New("no assistant messages found")

	// ErrConfig marks fatal startup configuration problems such as missing credentials.
	ErrConfig = errors.New("configuration error")
)

// noErrorDetail is reported when a failed run carries no message.
const noErrorDetail = "No specific error message"

// RunFailureError reports a run that ended in failed, expired or cancelled.
type RunFailureError struct {
	RunID   string
	Status  assistant.RunStatus
	Message string
}

func (e *RunFailureError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = noErrorDetail
	}
	return fmt.Sprintf("run ended with status: %s. Details: %s", e.Status, msg)
}

// classifyRemote maps an error from the assistant client onto the taxonomy.
func classifyRemote(op string, err error) error {
	if errors.Is(err, assistant.ErrMalformedPayload) {
		return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// UserMessage renders a per-request error as text for the chat user.
func UserMessage(err error) string {
	var runErr *RunFailureError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &runErr):
		msg := runErr.Message
		if msg == "" {
			msg = noErrorDetail
		}
		return fmt.Sprintf("Error: Run ended with status: %s. Details: %s", runErr.Status, msg)
	case errors.Is(err, ErrRunNotCreated):
		return "Error: Could not start assistant run. Please check your API credentials."
	case errors.Is(err, ErrTimeout):
		return "Error: Timeout waiting for assistant response"
	case errors.Is(err, ErrNoAssistantMessage):
		return "Error: No assistant messages found"
	case errors.Is(err, ErrMalformedResponse):
		return "Error: The assistant service returned an unexpected response."
	case errors.Is(err, ErrTransport):
		return "Error: " + err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Error: The request was interrupted. Please try again."
	default:
		return "Something went wrong. Please try again later."
	}
}
