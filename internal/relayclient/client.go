package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"english-tutor/internal/domain"
)

// HTTPStatusError is a non-2xx answer from the relay. Message is the relay's
// "error" field when it sent one.
type HTTPStatusError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("relayclient: status %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type contentResponse struct {
	Content *string `json:"content"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Client calls the relay routes on behalf of the session client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("relayclient: base URL must not be empty")
	}
	c := &Client{baseURL: baseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// Token fetches a realtime session descriptor. Fields beyond the ephemeral
// secret are ignored.
func (c *Client) Token(ctx context.Context) (domain.RealtimeSession, error) {
	raw, err := c.do(ctx, http.MethodGet, "/token", nil)
	if err != nil {
		return domain.RealtimeSession{}, err
	}
	var sess domain.RealtimeSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.RealtimeSession{}, fmt.Errorf("relayclient: decode token: %w", err)
	}
	if strings.TrimSpace(sess.ClientSecret.Value) == "" {
		return domain.RealtimeSession{}, errors.New("relayclient: token response has no client secret")
	}
	return sess, nil
}

// Chat sends a single utterance.
func (c *Client) Chat(ctx context.Context, userMessage string) (string, error) {
	return c.content(ctx, "/chat", map[string]any{"userMessage": userMessage})
}

// ChatMessages sends a full message list, optionally asking for a JSON object.
func (c *Client) ChatMessages(ctx context.Context, messages []domain.ChatMessage, parseJSON bool) (string, error) {
	return c.content(ctx, "/chat", map[string]any{"messages": messages, "parseJSON": parseJSON})
}

func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	return c.content(ctx, "/translate", map[string]any{"text": text})
}

// Explain returns the explanation decoded from the relay's JSON string.
func (c *Client) Explain(ctx context.Context, userText, aiText string) (domain.Explanation, error) {
	raw, err := c.content(ctx, "/explanation", map[string]any{"userText": userText, "aiText": aiText})
	if err != nil {
		return domain.Explanation{}, err
	}
	return ParseExplanation(raw)
}

// ParseExplanation decodes the model's JSON object. Both english and japanese
// must be present.
func ParseExplanation(raw string) (domain.Explanation, error) {
	var exp domain.Explanation
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &exp); err != nil {
		return domain.Explanation{}, fmt.Errorf("relayclient: decode explanation: %w", err)
	}
	if strings.TrimSpace(exp.English) == "" || strings.TrimSpace(exp.Japanese) == "" {
		return domain.Explanation{}, errors.New("relayclient: explanation is missing english or japanese")
	}
	return exp, nil
}

func (c *Client) content(ctx context.Context, path string, body any) (string, error) {
	raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	var out contentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("relayclient: decode %s response: %w", path, err)
	}
	if out.Content == nil {
		return "", fmt.Errorf("relayclient: %s response has no content", path)
	}
	return *out.Content, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("relayclient: marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("relayclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relayclient: %s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("relayclient: read response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		statusErr := &HTTPStatusError{StatusCode: res.StatusCode}
		var er errorResponse
		if json.Unmarshal(buf, &er) == nil {
			statusErr.Message = er.Error
			statusErr.Details = er.Details
		}
		return nil, statusErr
	}
	return buf, nil
}
