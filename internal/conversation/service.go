// ABOUTME: Service is the conversation front door used by the chat bridge
// ABOUTME: Restart, explain-last and send-message turns composed from store, poster and runner

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-assistant/internal/assistant"
	"github.com/2389/coven-assistant/internal/store"
)

// Default user-facing texts.
const (
	DefaultExplainPrompt   = "Please explain your last message in detail."
	DefaultDegradedMessage = "Sorry, I'm having trouble connecting to the language model. " +
		"Please check your API keys or try again later."
)

// recordTimeout bounds ledger writes made after a turn finishes.
const recordTimeout = 5 * time.Second

// Config holds the per-deployment settings of a Service.
type Config struct {
	AssistantID string
	// ExplainPrompt is posted as the user's message by ExplainLast.
	ExplainPrompt string
	// DegradedMessage answers SendMessage on a fallback handle.
	DegradedMessage string
	Poll            PollPolicy
}

// RunRecorder receives the outcome of every run started against the service.
type RunRecorder interface {
	SaveRun(ctx context.Context, rec *store.RunRecord) error
}

// Recorders fans a record out to several recorders, stopping at the first error.
type Recorders []RunRecorder

func (rs Recorders) SaveRun(ctx context.Context, rec *store.RunRecord) error {
	for _, r := range rs {
		if err := r.SaveRun(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Reply is the result of a conversation turn.
type Reply struct {
	Text string
	// Degraded is set when the reply was produced locally on a fallback handle.
	Degraded bool
	// Empty is set when there was nothing to act on.
	Empty bool
	RunID string
}

// Service composes sessions, posting and runs into conversation turns.
// Per-request errors are returned to the caller, which renders them with
// UserMessage; they never alter session history.
type Service struct {
	sessions *SessionStore
	poster   *Poster
	runner   *Runner
	threads  ThreadInspector
	recorder RunRecorder
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// NewService wires a Service around remote. recorder may be nil.
func NewService(remote Remote, cfg Config, recorder RunRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ExplainPrompt == "" {
		cfg.ExplainPrompt = DefaultExplainPrompt
	}
	if cfg.DegradedMessage == "" {
		cfg.DegradedMessage = DefaultDegradedMessage
	}

	return &Service{
		sessions: NewSessionStore(NewProvisioner(remote, logger)),
		poster:   NewPoster(remote, logger),
		runner:   NewRunner(remote, cfg.Poll, logger),
		threads:  remote,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("component", "conversation"),
	}
}

// Sessions exposes the session store for status reporting.
func (s *Service) Sessions() *SessionStore {
	return s.sessions
}

// Restart replaces the user's session and reports whether the new one is degraded.
func (s *Service) Restart(ctx context.Context, userID string) bool {
	sess := s.sessions.Reset(ctx, userID)
	s.logger.Info("conversation restarted",
		"user_id", userID,
		"handle", sess.Handle,
		"degraded", sess.Degraded(),
	)
	return sess.Degraded()
}

// ExplainLast asks the assistant to explain its previous reply. A user with no
// history gets Reply{Empty: true} and no remote call is made.
func (s *Service) ExplainLast(ctx context.Context, userID string) (Reply, error) {
	sess, ok := s.sessions.Peek(userID)
	if !ok || sess.Len() == 0 {
		return Reply{Empty: true}, nil
	}

	sess.turn.Lock()
	defer sess.turn.Unlock()

	return s.turn(ctx, sess, store.RunKindExplain, s.cfg.ExplainPrompt)
}

// SendMessage posts text for the user and returns the assistant's reply. On
// success both the utterance and the reply are appended to history.
func (s *Service) SendMessage(ctx context.Context, userID, text string) (Reply, error) {
	sess := s.sessions.GetOrCreate(ctx, userID)

	sess.turn.Lock()
	defer sess.turn.Unlock()

	if sess.Degraded() {
		s.logger.Debug("degraded session, not posting", "user_id", userID, "handle", sess.Handle)
		return Reply{Text: s.cfg.DegradedMessage, Degraded: true}, nil
	}

	reply, err := s.turn(ctx, sess, store.RunKindMessage, text)
	if err != nil {
		return reply, err
	}

	sess.append(
		Message{Role: RoleUser, Content: text},
		Message{Role: RoleAssistant, Content: reply.Text},
	)
	return reply, nil
}

// turn posts content and runs the assistant over the session's thread.
// The caller holds sess.turn.
func (s *Service) turn(ctx context.Context, sess *Session, kind store.RunKind, content string) (Reply, error) {
	turnID := uuid.New().String()
	logger := s.logger.With("turn_id", turnID, "user_id", sess.UserID, "kind", kind)
	start := s.now()

	if _, err := s.poster.Post(ctx, sess.Handle, assistant.RoleUser, content); err != nil {
		logger.Error("turn aborted, message not posted", "error", err)
		s.record(ctx, sess, kind, nil, err, start)
		return Reply{}, err
	}

	res, err := s.runner.Run(ctx, sess.Handle, s.cfg.AssistantID, "")
	s.record(ctx, sess, kind, res, err, start)
	if err != nil {
		logger.Error("turn failed",
			"run_id", res.RunID,
			"state", res.State,
			"attempts", res.Attempts,
			"error", err,
		)
		return Reply{RunID: res.RunID}, err
	}

	logger.Info("turn completed",
		"run_id", res.RunID,
		"attempts", res.Attempts,
		"degraded", res.Degraded,
		"duration", s.now().Sub(start),
	)
	return Reply{Text: res.Text, Degraded: res.Degraded, RunID: res.RunID}, nil
}

// record writes the run outcome to the recorder. Degraded turns are not runs
// and are skipped. Failures are logged only.
func (s *Service) record(ctx context.Context, sess *Session, kind store.RunKind, res *RunResult, runErr error, start time.Time) {
	if s.recorder == nil || (res != nil && res.Degraded) {
		return
	}

	rec := &store.RunRecord{
		UserID:     sess.UserID,
		ThreadID:   sess.Handle.String(),
		Kind:       kind,
		Outcome:    outcomeOf(runErr),
		DurationMS: s.now().Sub(start).Milliseconds(),
		CreatedAt:  start,
	}
	if res != nil {
		rec.RunID = res.RunID
		rec.RemoteStatus = string(res.Status)
		rec.Attempts = res.Attempts
	}
	if runErr != nil {
		rec.Detail = runErr.Error()
	}

	// The turn's own context may already be done; the record should still land.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.SaveRun(saveCtx, rec); err != nil {
		s.logger.Warn("failed to record run", "user_id", sess.UserID, "run_id", rec.RunID, "error", err)
	}
}

func outcomeOf(err error) store.Outcome {
	var runErr *RunFailureError
	switch {
	case err == nil:
		return store.OutcomeSucceeded
	case errors.As(err, &runErr):
		return store.OutcomeFailed
	case errors.Is(err, ErrTimeout):
		return store.OutcomeTimedOut
	case errors.Is(err, ErrNoAssistantMessage):
		return store.OutcomeNoReply
	case errors.Is(err, ErrMalformedResponse):
		return store.OutcomeMalformed
	case errors.Is(err, ErrTransport):
		return store.OutcomeTransportError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.OutcomeCancelled
	default:
		return store.OutcomeError
	}
}

// DebugInfo describes a user's session for the debug command.
type DebugInfo struct {
	UserID          string
	Handle          Handle
	Degraded        bool
	MessageCount    int
	SessionAge      time.Duration
	RemoteChecked   bool
	RemoteExists    bool
	RemoteCreatedAt time.Time
	RemoteError     string
}

// Debug reports the user's session state. Live handles are looked up remotely.
func (s *Service) Debug(ctx context.Context, userID string) DebugInfo {
	sess := s.sessions.GetOrCreate(ctx, userID)

	info := DebugInfo{
		UserID:       userID,
		Handle:       sess.Handle,
		Degraded:     sess.Degraded(),
		MessageCount: sess.Len(),
		SessionAge:   s.now().Sub(sess.CreatedAt),
	}
	if info.Degraded {
		return info
	}

	info.RemoteChecked = true
	thread, err := s.threads.GetThread(ctx, sess.Handle.String())
	if err != nil {
		info.RemoteError = UserMessage(classifyRemote("retrieving thread", err))
		s.logger.Warn("debug thread lookup failed", "user_id", userID, "thread_id", sess.Handle, "error", err)
		return info
	}
	info.RemoteExists = true
	info.RemoteCreatedAt = thread.CreatedAt
	return info
}

func (d DebugInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Debug information:\n")
	fmt.Fprintf(&b, "User ID: %s\n", d.UserID)
	fmt.Fprintf(&b, "Thread ID: %s\n", d.Handle)
	fmt.Fprintf(&b, "Messages in history: %d\n", d.MessageCount)
	fmt.Fprintf(&b, "Session age: %s\n", d.SessionAge.Round(time.Second))
	switch {
	case d.Degraded:
		b.WriteString("Mode: degraded (fallback thread, no remote calls)")
	case !d.RemoteChecked:
		b.WriteString("Thread status: not checked")
	case d.RemoteExists && !d.RemoteCreatedAt.IsZero():
		fmt.Fprintf(&b, "Thread status: exists (created %s)", d.RemoteCreatedAt.UTC().Format(time.RFC3339))
	case d.RemoteExists:
		b.WriteString("Thread status: exists")
	default:
		fmt.Fprintf(&b, "Thread status: unavailable (%s)", d.RemoteError)
	}
	return b.String()
}
