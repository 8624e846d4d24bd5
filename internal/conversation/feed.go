// ABOUTME: In-memory fan-out of run records to live subscribers
// ABOUTME: Subscribers follow one user or everyone; slow subscribers lose records

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-assistant/internal/store"
)

// AllUsers subscribes to records for every user.
const AllUsers = ""

// feedBufferSize is the channel buffer for each subscriber.
const feedBufferSize = 64

// RunFeed publishes run records to subscribers as they are recorded. It
// implements RunRecorder so it can sit next to the ledger in Recorders.
type RunFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.RunRecord // userID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewRunFeed creates a feed. Pass nil logger for default.
func NewRunFeed(logger *slog.Logger) *RunFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunFeed{
		subscribers: make(map[string]map[string]chan *store.RunRecord),
		logger:      logger.With("component", "run_feed"),
	}
}

// Subscribe registers for records of userID, or of everyone with AllUsers.
// The subscription ends when ctx is cancelled.
func (f *RunFeed) Subscribe(ctx context.Context, userID string) (<-chan *store.RunRecord, string) {
	subID := uuid.New().String()
	ch := make(chan *store.RunRecord, feedBufferSize)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := f.subscribers[userID]; !ok {
		f.subscribers[userID] = make(map[string]chan *store.RunRecord)
	}
	f.subscribers[userID][subID] = ch
	f.mu.Unlock()

	f.logger.Debug("subscriber added", "user_id", userID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		f.Unsubscribe(userID, subID)
	}()

	return ch, subID
}

// Publish delivers rec to the user's subscribers and to AllUsers subscribers.
// Never blocks.
func (f *RunFeed) Publish(rec *store.RunRecord) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := []string{AllUsers}
	if rec.UserID != AllUsers {
		keys = append(keys, rec.UserID)
	}
	for _, key := range keys {
		for subID, ch := range f.subscribers[key] {
			select {
			case ch <- rec:
			default:
				f.logger.Debug("dropped record for slow subscriber", "sub_id", subID, "run_id", rec.RunID)
			}
		}
	}
}

// SaveRun publishes rec. It never fails.
func (f *RunFeed) SaveRun(_ context.Context, rec *store.RunRecord) error {
	f.Publish(rec)
	return nil
}

// Unsubscribe removes a subscription and closes its channel.
func (f *RunFeed) Unsubscribe(userID, subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[userID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(f.subscribers, userID)
	}

	f.logger.Debug("subscriber removed", "user_id", userID, "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions are closed immediately.
func (f *RunFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for userID, subs := range f.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(f.subscribers, userID)
	}
	f.closed = true
	f.logger.Debug("run feed closed")
}
