// ABOUTME: Run ledger types and the RunLedger interface
// ABOUTME: Records outcomes of assistant runs; never holds conversation content

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// RunKind distinguishes what triggered a run.
type RunKind string

const (
	RunKindMessage RunKind = "message" // free text from the user
	RunKindExplain RunKind = "explain" // explain-last-reply request
)

// Outcome is how a run ended from the bridge's point of view.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeFailed         Outcome = "failed"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeNoReply        Outcome = "no_reply"
	OutcomeMalformed      Outcome = "malformed"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeError          Outcome = "error"
)

// RunRecord is one row of the run ledger.
type RunRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ThreadID     string    `json:"thread_id"`
	RunID        string    `json:"run_id,omitempty"`
	Kind         RunKind   `json:"kind"`
	Outcome      Outcome   `json:"outcome"`
	RemoteStatus string    `json:"remote_status,omitempty"`
	Attempts     int       `json:"attempts"`
	DurationMS   int64     `json:"duration_ms"`
	Detail       string    `json:"detail,omitempty"` // error text for failed runs
	CreatedAt    time.Time `json:"created_at"`
}

// RunFilter narrows ledger queries. Nil fields match everything.
type RunFilter struct {
	UserID *string
	Since  *time.Time
}

// RunStats aggregates the ledger.
type RunStats struct {
	Total         int             `json:"total"`
	ByOutcome     map[Outcome]int `json:"by_outcome"`
	AvgDurationMS int64           `json:"avg_duration_ms"`
	AvgAttempts   float64         `json:"avg_attempts"`
}

// RunLedger persists run outcomes.
type RunLedger interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRecentRuns(ctx context.Context, filter RunFilter, limit int) ([]*RunRecord, error)
	GetRunStats(ctx context.Context, filter RunFilter) (*RunStats, error)
	Close() error
}
