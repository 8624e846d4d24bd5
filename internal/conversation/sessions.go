// ABOUTME: In-memory per-user session store, partitioned into shards by user id
// ABOUTME: Creates sessions lazily; concurrent misses for one user provision once

package conversation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Role is the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a session's history.
type Message struct {
	Role    Role
	Content string
}

// Session is one user's conversation state.
type Session struct {
	UserID    string
	Handle    Handle
	CreatedAt time.Time

	// turn serializes turns for this session.
	turn sync.Mutex

	mu       sync.RWMutex
	messages []Message
}

func newSession(userID string, h Handle, now time.Time) *Session {
	return &Session{UserID: userID, Handle: h, CreatedAt: now}
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of history entries.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Degraded reports whether the session runs on a fallback handle.
func (s *Session) Degraded() bool {
	return s.Handle.IsFallback()
}

// append adds entries to the history in one step.
func (s *Session) append(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

// HandleProvisioner obtains handles for new sessions. It must not fail.
type HandleProvisioner interface {
	Provision(ctx context.Context, userID string) Handle
}

const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// SessionStats summarizes the store.
type SessionStats struct {
	Sessions int `json:"sessions"`
	Degraded int `json:"degraded"`
}

// SessionStore maps user ids to sessions. It is safe for concurrent use.
type SessionStore struct {
	provisioner HandleProvisioner
	shards      [shardCount]*shard
	flight      singleflight.Group
	now         func() time.Time
}

// NewSessionStore creates an empty store that provisions handles through p.
func NewSessionStore(p HandleProvisioner) *SessionStore {
	st := &SessionStore{provisioner: p, now: time.Now}
	for i := range st.shards {
		st.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return st
}

func (st *SessionStore) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return st.shards[h.Sum32()%shardCount]
}

// Peek returns the user's session without creating one.
func (st *SessionStore) Peek(userID string) (*Session, bool) {
	sh := st.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[userID]
	return s, ok
}

// GetOrCreate returns the user's session, provisioning one on first use.
func (st *SessionStore) GetOrCreate(ctx context.Context, userID string) *Session {
	if s, ok := st.Peek(userID); ok {
		return s
	}

	v, _, _ := st.flight.Do(userID, func() (any, error) {
		if s, ok := st.Peek(userID); ok {
			return s, nil
		}
		h := st.provisioner.Provision(ctx, userID)

		sh := st.shardFor(userID)
		sh.mu.Lock()
		defer sh.mu.Unlock()
		// A concurrent Reset may have installed a session meanwhile.
		if s, ok := sh.sessions[userID]; ok {
			return s, nil
		}
		s := newSession(userID, h, st.now())
		sh.sessions[userID] = s
		return s, nil
	})
	return v.(*Session)
}

// Reset replaces the user's session with a fresh one and a new handle.
func (st *SessionStore) Reset(ctx context.Context, userID string) *Session {
	h := st.provisioner.Provision(ctx, userID)
	s := newSession(userID, h, st.now())

	sh := st.shardFor(userID)
	sh.mu.Lock()
	sh.sessions[userID] = s
	sh.mu.Unlock()
	return s
}

// Stats counts sessions and how many are degraded.
func (st *SessionStore) Stats() SessionStats {
	var stats SessionStats
	for _, sh := range st.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			stats.Sessions++
			if s.Degraded() {
				stats.Degraded++
			}
		}
		sh.mu.RUnlock()
	}
	return stats
}
