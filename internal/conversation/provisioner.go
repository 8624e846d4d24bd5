// ABOUTME: Provisions conversation handles, degrading to a fallback handle on any failure
// ABOUTME: Exactly one remote call per provision; never returns an error

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	errNoThreadID       = errors.New("response has no thread id")
	errReservedThreadID = errors.New("thread id uses the reserved fallback prefix")
)

// Provisioner obtains a new conversation handle for a user.
type Provisioner struct {
	threads ThreadCreator
	now     func() time.Time
	logger  *slog.Logger
}

// NewProvisioner creates a Provisioner backed by threads.
func NewProvisioner(threads ThreadCreator, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		threads: threads,
		now:     time.Now,
		logger:  logger.With("component", "provisioner"),
	}
}

// Provision creates a remote thread. Transport failures, error statuses,
// undecodable payloads and missing ids all yield a fallback handle instead.
func (p *Provisioner) Provision(ctx context.Context, userID string) Handle {
	thread, err := p.threads.CreateThread(ctx)
	switch {
	case err != nil:
	case thread == nil || thread.ID == "":
		err = errNoThreadID
	case Handle(thread.ID).IsFallback():
		err = errReservedThreadID
	default:
		p.logger.Debug("thread provisioned", "user_id", userID, "thread_id", thread.ID)
		return Handle(thread.ID)
	}

	h := FallbackHandle(userID, p.now())
	p.logger.Warn("thread provisioning degraded, using fallback handle",
		"user_id", userID,
		"handle", h,
		"error", err,
	)
	return h
}
