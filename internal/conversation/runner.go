// ABOUTME: Run controller: starts a run on a thread and polls it to a terminal state
// ABOUTME: Bounded retry state machine with a first-class PollPolicy

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-assistant/internal/assistant"
)

// DegradedReply is the canned reply for runs requested on a fallback handle.
const DegradedReply = "I'm sorry, there seems to be an issue connecting to the language model. " +
	"Please try restarting the conversation or try again later."

// PollPolicy bounds how long a run is waited on.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy polls every two seconds, thirty times.
var DefaultPollPolicy = PollPolicy{Interval: 2 * time.Second, MaxAttempts: 30}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollPolicy.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollPolicy.MaxAttempts
	}
	return p
}

// Ceiling is the longest a run can be waited on, ignoring request latency.
func (p PollPolicy) Ceiling() time.Duration {
	p = p.withDefaults()
	return time.Duration(p.MaxAttempts-1) * p.Interval
}

// RunState is the controller's view of a run.
type RunState int

const (
	RunCreated RunState = iota
	RunPolling
	RunSucceeded
	RunFailed
	RunTimedOut
)

func (s RunState) String() string {
	switch s {
	case RunCreated:
		return "created"
	case RunPolling:
		return "polling"
	case RunSucceeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	case RunTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunTimedOut
}

type runPhase int

const (
	phasePending runPhase = iota
	phaseSucceeded
	phaseFailed
)

// phaseOf collapses a remote status. Unknown statuses are pending so that
// they still consume the attempt budget.
func phaseOf(status assistant.RunStatus) runPhase {
	switch status {
	case assistant.RunStatusCompleted:
		return phaseSucceeded
	case assistant.RunStatusFailed, assistant.RunStatusExpired, assistant.RunStatusCancelled:
		return phaseFailed
	default:
		return phasePending
	}
}

// RunResult describes how a run ended. Runner.Run always returns one, even
// alongside an error, so callers can record attempts and status.
type RunResult struct {
	RunID    string
	Status   assistant.RunStatus
	State    RunState
	Attempts int
	Text     string
	Degraded bool
}

// Runner drives runs to completion.
type Runner struct {
	api    RunAPI
	policy PollPolicy
	wait   func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// NewRunner creates a Runner. Zero fields in policy take DefaultPollPolicy values.
func NewRunner(api RunAPI, policy PollPolicy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		api:    api,
		policy: policy.withDefaults(),
		wait:   sleepContext,
		logger: logger.With("component", "runner"),
	}
}

// Policy returns the effective poll policy.
func (r *Runner) Policy() PollPolicy {
	return r.policy
}

// Run starts a run for assistantID on h and waits for the reply. A non-empty
// instructions overrides the assistant's instructions for this run only.
func (r *Runner) Run(ctx context.Context, h Handle, assistantID, instructions string) (*RunResult, error) {
	res := &RunResult{State: RunCreated}

	if h.IsFallback() {
		res.State = RunSucceeded
		res.Text = DegradedReply
		res.Degraded = true
		r.logger.Debug("fallback handle, returning degraded reply", "handle", h)
		return res, nil
	}

	run, err := r.api.CreateRun(ctx, h.String(), assistant.RunRequest{
		AssistantID:  assistantID,
		Instructions: instructions,
	})
	if err != nil {
		res.State = RunFailed
		return res, classifyRemote("creating run", err)
	}
	if run == nil || run.ID == "" {
		res.State = RunFailed
		r.logger.Error("run creation returned no run id", "thread_id", h)
		return res, ErrRunNotCreated
	}

	res.RunID = run.ID
	res.Status = run.Status
	res.State = RunPolling
	r.logger.Debug("run created", "thread_id", h, "run_id", run.ID, "status", run.Status)

	for !res.State.Terminal() {
		if err := r.step(ctx, h, res); err != nil {
			return res, err
		}
	}

	if res.State != RunSucceeded {
		return res, nil
	}

	text, err := r.reply(ctx, h)
	if err != nil {
		res.State = RunFailed
		return res, err
	}
	res.Text = text
	return res, nil
}

// step performs one poll attempt and advances res.State.
func (r *Runner) step(ctx context.Context, h Handle, res *RunResult) error {
	if res.Attempts >= r.policy.MaxAttempts {
		res.State = RunTimedOut
		r.logger.Warn("run timed out",
			"thread_id", h,
			"run_id", res.RunID,
			"attempts", res.Attempts,
			"last_status", res.Status,
		)
		return ErrTimeout
	}

	if res.Attempts > 0 {
		if err := r.wait(ctx, r.policy.Interval); err != nil {
			res.State = RunFailed
			return fmt.Errorf("waiting for run %s: %w", res.RunID, err)
		}
	}
	res.Attempts++

	run, err := r.api.GetRun(ctx, h.String(), res.RunID)
	if err != nil {
		res.State = RunFailed
		return classifyRemote("retrieving run", err)
	}
	res.Status = run.Status

	switch phaseOf(run.Status) {
	case phaseSucceeded:
		res.State = RunSucceeded
		r.logger.Debug("run completed", "run_id", res.RunID, "attempts", res.Attempts)
	case phaseFailed:
		res.State = RunFailed
		r.logger.Warn("run failed",
			"run_id", res.RunID,
			"status", run.Status,
			"last_error", run.LastError,
		)
		return &RunFailureError{RunID: res.RunID, Status: run.Status, Message: run.LastError}
	default:
		r.logger.Debug("run pending",
			"run_id", res.RunID,
			"status", run.Status,
			"attempt", res.Attempts,
			"max_attempts", r.policy.MaxAttempts,
		)
	}
	return nil
}

// reply fetches the thread and extracts the newest assistant message.
func (r *Runner) reply(ctx context.Context, h Handle) (string, error) {
	msgs, err := r.api.ListMessages(ctx, h.String())
	if err != nil {
		return "", classifyRemote("listing messages", err)
	}

	for _, msg := range msgs {
		if msg.Role != assistant.RoleAssistant {
			continue
		}
		variant, text := classifyReply(msg)
		r.logger.Debug("assistant reply extracted",
			"thread_id", h,
			"message_id", msg.ID,
			"shape", variant,
		)
		return text, nil
	}

	r.logger.Warn("completed run left no assistant message", "thread_id", h, "messages", len(msgs))
	return "", ErrNoAssistantMessage
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
