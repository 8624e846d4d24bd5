// ABOUTME: Tests for the status API routes
// ABOUTME: Uses a real SQLite ledger and run feed behind httptest

package statusapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-assistant/internal/auth"
	"github.com/2389/coven-assistant/internal/conversation"
	"github.com/2389/coven-assistant/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixedSessions conversation.SessionStats

func (f fixedSessions) Stats() conversation.SessionStats {
	return conversation.SessionStats(f)
}

type testEnv struct {
	server *Server
	ledger *store.SQLiteStore
	feed   *conversation.RunFeed
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ledger, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	feed := conversation.NewRunFeed(nil)
	t.Cleanup(feed.Close)

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	token, err := verifier.Generate("ops", time.Hour)
	require.NoError(t, err)

	srv, err := New(Config{
		Addr:     "127.0.0.1:0",
		Verifier: verifier,
		Sessions: fixedSessions{Sessions: 3, Degraded: 1},
		Runs:     ledger,
		Feed:     feed,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, ledger: ledger, feed: feed, token: token}
}

func (e *testEnv) get(t *testing.T, path string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) saveRun(t *testing.T, user string, outcome store.Outcome) {
	t.Helper()
	require.NoError(t, e.ledger.SaveRun(context.Background(), &store.RunRecord{
		UserID:   user,
		ThreadID: "thread_" + user,
		RunID:    "run_" + user,
		Kind:     store.RunKindMessage,
		Outcome:  outcome,
		Attempts: 2,
	}))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	_, err = New(Config{Verifier: verifier})
	assert.Error(t, err)
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/sessions", "/api/runs", "/api/runs/stats", "/api/runs/stream"} {
		rec := env.get(t, path, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestSessions(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/sessions", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var got conversation.SessionStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, conversation.SessionStats{Sessions: 3, Degraded: 1}, got)
}

func TestRuns_ListAndFilter(t *testing.T) {
	env := newTestEnv(t)
	env.saveRun(t, "@alice:example.org", store.OutcomeSucceeded)
	env.saveRun(t, "@bob:example.org", store.OutcomeTimedOut)
	env.saveRun(t, "@alice:example.org", store.OutcomeFailed)

	rec := env.get(t, "/api/runs", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Runs []store.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.Runs, 3)

	rec = env.get(t, "/api/runs?limit=1&user=@alice:example.org", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered struct {
		Runs []store.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	require.Len(t, filtered.Runs, 1)
	assert.Equal(t, "@alice:example.org", filtered.Runs[0].UserID)
	assert.Equal(t, store.OutcomeFailed, filtered.Runs[0].Outcome)
}

func TestRuns_EmptyLedgerReturnsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/runs", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestRuns_BadQuery(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/runs?limit=0", "/api/runs?limit=abc", "/api/runs?since=yesterday", "/api/runs/stats?since=1"} {
		rec := env.get(t, path, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"error"`, path)
	}
}

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("")
	require.NoError(t, err)
	assert.Equal(t, defaultRunLimit, n)

	n, err = parseLimit("10000")
	require.NoError(t, err)
	assert.Equal(t, maxRunLimit, n)

	_, err = parseLimit("-3")
	assert.Error(t, err)
}

func TestRunStats(t *testing.T) {
	env := newTestEnv(t)
	env.saveRun(t, "@alice:example.org", store.OutcomeSucceeded)
	env.saveRun(t, "@alice:example.org", store.OutcomeSucceeded)
	env.saveRun(t, "@bob:example.org", store.OutcomeTimedOut)

	rec := env.get(t, "/api/runs/stats", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats store.RunStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByOutcome[store.OutcomeSucceeded])
	assert.Equal(t, 1, stats.ByOutcome[store.OutcomeTimedOut])
}

func TestRunStream_DeliversRecords(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/runs/stream?user=@alice:example.org", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	// Another user's record must not reach this subscriber.
	env.feed.Publish(&store.RunRecord{UserID: "@bob:example.org", RunID: "run_bob", Outcome: store.OutcomeFailed})
	env.feed.Publish(&store.RunRecord{UserID: "@alice:example.org", RunID: "run_alice", Outcome: store.OutcomeSucceeded})

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, "run", event)
	var got store.RunRecord
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "run_alice", got.RunID)
	assert.Equal(t, store.OutcomeSucceeded, got.Outcome)
}

func TestServe_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
