// ABOUTME: REST client for the remote assistants service (threads, messages, runs)
// ABOUTME: Typed calls go through go-openai; message listing is fetched raw

package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the public endpoint of the service.
const DefaultBaseURL = "https://api.openai.com/v1"

// assistantsVersion is sent as the OpenAI-Beta header on raw requests.
const assistantsVersion = "assistants=v2"

// Config holds the connection settings for Client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the assistants service. It is safe for concurrent use.
type Client struct {
	api        *openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient creates a client from cfg. An empty BaseURL selects DefaultBaseURL.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = baseURL
	oc.HTTPClient = httpClient

	return &Client{
		api:        openai.NewClientWithConfig(oc),
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		logger:     logger.With("component", "assistant"),
	}
}

// VerifyCredentials performs a cheap authenticated call to check the API key.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return wrapError("listing models", err)
	}
	return nil
}

// CreateThread provisions a new, empty thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	th, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return nil, wrapError("creating thread", err)
	}
	c.logger.Debug("thread created", "thread_id", th.ID)
	return &Thread{ID: th.ID, CreatedAt: unixTime(th.CreatedAt)}, nil
}

// GetThread looks up an existing thread.
func (c *Client) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	th, err := c.api.RetrieveThread(ctx, threadID)
	if err != nil {
		return nil, wrapError("retrieving thread", err)
	}
	return &Thread{ID: th.ID, CreatedAt: unixTime(th.CreatedAt)}, nil
}

// CreateMessage appends a message to a thread and returns the stored echo.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	msg, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    role,
		Content: content,
	})
	if err != nil {
		return nil, wrapError("creating message", err)
	}

	raw, err := json.Marshal(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("encoding message content: %w", err)
	}
	return &Message{ID: msg.ID, Role: msg.Role, Content: raw}, nil
}

// CreateRun starts a run on a thread.
func (c *Client) CreateRun(ctx context.Context, threadID string, req RunRequest) (*Run, error) {
	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID:  req.AssistantID,
		Instructions: req.Instructions,
	})
	if err != nil {
		return nil, wrapError("creating run", err)
	}
	return convertRun(run), nil
}

// GetRun retrieves the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, wrapError("retrieving run", err)
	}
	return convertRun(run), nil
}

// ListMessages returns the thread's messages, newest first, with content left raw.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	endpoint := c.baseURL + "/threads/" + url.PathEscape(threadID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", assistantsVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading messages response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("listing messages: %w", decodeAPIError(resp.StatusCode, body))
	}

	var list messageList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("listing messages: %w: %v", ErrMalformedPayload, err)
	}

	c.logger.Debug("messages listed", "thread_id", threadID, "count", len(list.Data))
	return list.Data, nil
}

// decodeAPIError extracts the service's error message from a non-2xx body.
func decodeAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return &APIError{StatusCode: status, Message: envelope.Error.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func convertRun(run openai.Run) *Run {
	r := &Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   RunStatus(run.Status),
	}
	if run.LastError != nil {
		r.LastError = run.LastError.Message
	}
	return r
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
