// ABOUTME: HTTP status API: health, session counts, run ledger queries and a live run stream
// ABOUTME: Everything except /health requires a bearer JWT

package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/coven-assistant/internal/auth"
	"github.com/2389/coven-assistant/internal/conversation"
	"github.com/2389/coven-assistant/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	shutdownTimeout = 5 * time.Second
	keepAlivePeriod = 30 * time.Second
)

// SessionCounter reports live session counts.
type SessionCounter interface {
	Stats() conversation.SessionStats
}

// RunQuerier reads the run ledger.
type RunQuerier interface {
	ListRecentRuns(ctx context.Context, filter store.RunFilter, limit int) ([]*store.RunRecord, error)
	GetRunStats(ctx context.Context, filter store.RunFilter) (*store.RunStats, error)
}

// RunSubscriber streams run records as they are recorded.
type RunSubscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan *store.RunRecord, string)
}

// Config wires a Server.
type Config struct {
	Addr     string
	Verifier auth.TokenVerifier
	Sessions SessionCounter
	Runs     RunQuerier
	Feed     RunSubscriber // optional; /api/runs/stream returns 404 without it
	Tailnet  *TailnetConfig // optional; replaces Addr
	Logger   *slog.Logger
}

// Server serves the status API.
type Server struct {
	sessions SessionCounter
	runs     RunQuerier
	feed     RunSubscriber
	tailnet  *TailnetConfig
	handler  http.Handler
	server   *http.Server
	logger   *slog.Logger
}

// New builds a server from cfg. Verifier, Sessions and Runs are required.
func New(cfg Config) (*Server, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("status api requires a token verifier")
	}
	if cfg.Sessions == nil || cfg.Runs == nil {
		return nil, errors.New("status api requires sessions and runs")
	}
	if cfg.Tailnet != nil && cfg.Tailnet.Hostname == "" {
		return nil, errors.New("status api tailnet requires a hostname")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		sessions: cfg.Sessions,
		runs:     cfg.Runs,
		feed:     cfg.Feed,
		tailnet:  cfg.Tailnet,
		logger:   logger.With("component", "statusapi"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	protected := auth.HTTPAuthMiddleware(cfg.Verifier)
	mux.Handle("GET /api/sessions", protected(http.HandlerFunc(s.handleSessions)))
	mux.Handle("GET /api/runs", protected(http.HandlerFunc(s.handleRuns)))
	mux.Handle("GET /api/runs/stats", protected(http.HandlerFunc(s.handleRunStats)))
	if s.feed != nil {
		mux.Handle("GET /api/runs/stream", protected(http.HandlerFunc(s.handleRunStream)))
	}

	s.handler = mux
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address, or on the tailnet when one is
// configured, and serves until ctx is cancelled. Returns nil on graceful
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	if s.tailnet != nil {
		ln, node, err := s.listenTailnet(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := node.Close(); err != nil {
				s.logger.Warn("closing tailscale node", "error", err)
			}
		}()
		return s.Serve(ctx, ln)
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on status address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status API listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down status API")
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}

	// The serve context is already cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sessions.Stats())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.runs.ListRecentRuns(r.Context(), filter, limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.runs.GetRunStats(r.Context(), filter)
	if err != nil {
		s.logger.Error("computing run stats", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleRunStream sends each recorded run as an SSE "run" event until the
// client goes away.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	records, _ := s.feed.Subscribe(ctx, r.URL.Query().Get("user"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAlivePeriod)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case rec, ok := <-records:
			if !ok {
				return
			}
			s.writeSSEEvent(w, "run", rec)
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultRunLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxRunLimit), nil
}

// parseFilter reads the optional user and since (RFC3339) query parameters.
func parseFilter(r *http.Request) (store.RunFilter, error) {
	var filter store.RunFilter
	q := r.URL.Query()
	if user := q.Get("user"); user != "" {
		filter.UserID = &user
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.RunFilter{}, errors.New("since must be an RFC3339 timestamp")
		}
		filter.Since = &since
	}
	return filter, nil
}
