// ABOUTME: Scripted in-memory fake of the assistants service for conversation tests
// ABOUTME: Records every call so tests can assert which remote operations happened

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/2389/coven-assistant/internal/assistant"
	"github.com/2389/coven-assistant/internal/store"
)

type postCall struct {
	ThreadID string
	Role     string
	Content  string
}

// fakeRemote implements Remote. Zero value answers every call successfully
// with a completed run and no messages.
type fakeRemote struct {
	mu sync.Mutex

	// threads are returned by CreateThread in order; once exhausted a fresh
	// "thread_N" is issued.
	threads     []*assistant.Thread
	threadErr   error
	threadCalls int

	getThreadErr   error
	getThreadCalls int

	postErr error
	posts   []postCall

	runID        string
	createRunErr error
	runCalls     int
	runRequests  []assistant.RunRequest

	// statuses are returned by successive GetRun calls; the last one repeats.
	statuses    []assistant.RunStatus
	lastError   string
	getRunErr   error
	getRunCalls int

	messages  []assistant.Message
	listErr   error
	listCalls int
}

func (f *fakeRemote) CreateThread(ctx context.Context) (*assistant.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadCalls++
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	if len(f.threads) > 0 {
		th := f.threads[0]
		f.threads = f.threads[1:]
		return th, nil
	}
	return &assistant.Thread{ID: fmt.Sprintf("thread_%d", f.threadCalls), CreatedAt: time.Unix(1700000000, 0)}, nil
}

func (f *fakeRemote) GetThread(ctx context.Context, threadID string) (*assistant.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getThreadCalls++
	if f.getThreadErr != nil {
		return nil, f.getThreadErr
	}
	return &assistant.Thread{ID: threadID, CreatedAt: time.Unix(1700000000, 0)}, nil
}

func (f *fakeRemote) CreateMessage(ctx context.Context, threadID, role, content string) (*assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, postCall{ThreadID: threadID, Role: role, Content: content})
	if f.postErr != nil {
		return nil, f.postErr
	}
	return &assistant.Message{ID: fmt.Sprintf("msg_%d", len(f.posts)), Role: role}, nil
}

func (f *fakeRemote) CreateRun(ctx context.Context, threadID string, req assistant.RunRequest) (*assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	f.runRequests = append(f.runRequests, req)
	if f.createRunErr != nil {
		return nil, f.createRunErr
	}
	id := f.runID
	if id == "" {
		id = fmt.Sprintf("run_%d", f.runCalls)
	}
	return &assistant.Run{ID: id, ThreadID: threadID, Status: assistant.RunStatusQueued}, nil
}

func (f *fakeRemote) GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getRunCalls++
	if f.getRunErr != nil {
		return nil, f.getRunErr
	}
	status := assistant.RunStatusCompleted
	if len(f.statuses) > 0 {
		idx := min(f.getRunCalls-1, len(f.statuses)-1)
		status = f.statuses[idx]
	}
	return &assistant.Run{ID: runID, ThreadID: threadID, Status: status, LastError: f.lastError}, nil
}

func (f *fakeRemote) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

// remoteCalls counts every call that would have reached the network.
func (f *fakeRemote) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadCalls + f.getThreadCalls + len(f.posts) + f.runCalls + f.getRunCalls + f.listCalls
}

// assistantText builds an assistant message in the service's usual shape.
func assistantText(id, text string) assistant.Message {
	content, _ := json.Marshal([]map[string]any{
		{"type": "text", "text": map[string]any{"value": text, "annotations": []any{}}},
	})
	return assistant.Message{ID: id, Role: assistant.RoleAssistant, Content: content}
}

func userText(id, text string) assistant.Message {
	m := assistantText(id, text)
	m.Role = assistant.RoleUser
	return m
}

// waitRecorder replaces Runner.wait so tests do not sleep.
type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

// memRecorder collects run records.
type memRecorder struct {
	mu      sync.Mutex
	records []*store.RunRecord
	err     error
}

func (m *memRecorder) SaveRun(ctx context.Context, rec *store.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *memRecorder) all() []*store.RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.RunRecord, len(m.records))
	copy(out, m.records)
	return out
}
