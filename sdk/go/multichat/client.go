// Package multichat is a Go client for the multi-model chat HTTP API.
package multichat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// A chat with auto-continuation queries every endpoint once per turn, so it is
// much longer than a typical REST timeout.
const DefaultHTTPTimeout = 15 * time.Minute

// Client wraps the HTTP interactions with the chat service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Message is one entry of the conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Endpoint describes a model backend to use instead of the server defaults.
type Endpoint struct {
	Name    string `json:"name"`
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
	ModelID string `json:"modelId"`
}

// ChatRequest is the payload of POST /chat.
type ChatRequest struct {
	Messages     []Message  `json:"messages"`
	Endpoints    []Endpoint `json:"endpoints,omitempty"`
	AutoContinue bool       `json:"auto_continue,omitempty"`
	MaxTurns     int        `json:"max_turns,omitempty"`
}

// Response is a single answer, error entry or code output produced during a chat.
type Response struct {
	Role    string `json:"role"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ChatResult is the body returned by POST /chat.
type ChatResult struct {
	RunID      string     `json:"run_id"`
	Responses  []Response `json:"responses"`
	Turns      int        `json:"turns"`
	StopReason string     `json:"stop_reason"`
}

// EndpointSummary is the public view of a default endpoint.
type EndpointSummary struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Health is the body returned by GET /health.
type Health struct {
	Status           string            `json:"status"`
	MissingEnvVars   []string          `json:"missing_env_vars"`
	DefaultEndpoints []EndpointSummary `json:"default_endpoints"`
}

// Conversation is an archived chat run.
type Conversation struct {
	ID           string    `json:"id"`
	Endpoints    []string  `json:"endpoints"`
	Messages     []Message `json:"messages"`
	Responses    []Message `json:"responses"`
	AutoContinue bool      `json:"auto_continue"`
	MaxTurns     int       `json:"max_turns"`
	Turns        int       `json:"turns"`
	StopReason   string    `json:"stop_reason"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    int64     `json:"created_at"`
	DurationMS   int64     `json:"duration_ms"`
}

// APIError represents a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("multichat api error (%d): %s - %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("multichat api error (%d): %s", e.StatusCode, e.Detail)
}

// NewClient instantiates a client. When httpClient is nil a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat runs a multi-model conversation.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	var result ChatResult
	if err := c.post(ctx, "/chat", req, &result); err != nil {
		return ChatResult{}, err
	}
	return result, nil
}

// ExecuteCode runs a Python snippet on the server. A zero timeout uses the
// server default.
func (c *Client) ExecuteCode(ctx context.Context, code string, timeout time.Duration) (string, error) {
	payload := struct {
		Code    string  `json:"code"`
		Timeout float64 `json:"timeout,omitempty"`
	}{Code: code, Timeout: timeout.Seconds()}
	var out struct {
		Output string `json:"output"`
	}
	if err := c.post(ctx, "/execute-code", payload, &out); err != nil {
		return "", err
	}
	return out.Output, nil
}

// Health fetches the readiness report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.get(ctx, "/health", nil, &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

// ListConversations returns the latest archived runs, newest first.
func (c *Client) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.get(ctx, "/api/v1/conversations", query, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetConversation fetches one archived run.
func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	if err := c.get(ctx, "/api/v1/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Detail == "" {
			apiErr.Detail = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
