package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"english-tutor/internal/domain"
)

// Flavor selects the upstream URL layout and auth header.
type Flavor string

const (
	FlavorAzure  Flavor = "azure"
	FlavorOpenAI Flavor = "openai"
)

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model          string               `json:"model,omitempty"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	Choices []struct {
		Index   int                `json:"index"`
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

type realtimeSessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

// KeyFunc resolves a provider API key. It is called on every request so the
// source decides its own caching.
type KeyFunc func(ctx context.Context) (string, error)

// StaticKey returns a KeyFunc for a key already held in memory.
func StaticKey(key string) KeyFunc {
	return func(context.Context) (string, error) {
		if strings.TrimSpace(key) == "" {
			return "", errors.New("openai: API key is empty")
		}
		return key, nil
	}
}

// Endpoint describes one upstream deployment.
type Endpoint struct {
	BaseURL    string
	Deployment string
	APIVersion string
	Key        KeyFunc
}

func (e Endpoint) validate(name string) error {
	if strings.TrimSpace(e.BaseURL) == "" {
		return fmt.Errorf("openai: %s endpoint base URL must not be empty", name)
	}
	if strings.TrimSpace(e.Deployment) == "" {
		return fmt.Errorf("openai: %s deployment must not be empty", name)
	}
	if e.Key == nil {
		return fmt.Errorf("openai: %s key source must not be nil", name)
	}
	return nil
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to an Azure OpenAI or OpenAI-compatible provider.
type Client struct {
	flavor     Flavor
	chat       Endpoint
	realtime   Endpoint
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the chat and realtime deployments. No
// request timeout is imposed beyond the transport defaults; callers bound
// requests through their context.
func NewClient(flavor Flavor, chat, realtime Endpoint, opts ...Option) (*Client, error) {
	switch flavor {
	case "":
		flavor = FlavorAzure
	case FlavorAzure, FlavorOpenAI:
	default:
		return nil, fmt.Errorf("openai: unsupported flavor %q", flavor)
	}
	if err := chat.validate("chat"); err != nil {
		return nil, err
	}
	if err := realtime.validate("realtime"); err != nil {
		return nil, err
	}
	c := &Client{
		flavor:     flavor,
		chat:       chat,
		realtime:   realtime,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func realtimeSessionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/realtime/sessions"
	}
	return base + "/v1/realtime/sessions"
}

func withAPIVersion(u, version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return u
	}
	return u + "?api-version=" + url.QueryEscape(version)
}

func (c *Client) chatCompletionsURL() string {
	if c.flavor == FlavorOpenAI {
		return chatURL(c.chat.BaseURL)
	}
	base := strings.TrimRight(c.chat.BaseURL, "/")
	return withAPIVersion(base+"/openai/deployments/"+url.PathEscape(c.chat.Deployment)+"/chat/completions", c.chat.APIVersion)
}

func (c *Client) realtimeURL() string {
	if c.flavor == FlavorOpenAI {
		return realtimeSessionsURL(c.realtime.BaseURL)
	}
	base := strings.TrimRight(c.realtime.BaseURL, "/")
	return withAPIVersion(base+"/openai/realtimeapi/sessions", c.realtime.APIVersion)
}

func (c *Client) authorize(req *http.Request, apiKey string) {
	if c.flavor == FlavorAzure {
		req.Header.Set("api-key", apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

// Chat runs one chat completion and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, in domain.CompletionRequest) (string, error) {
	if len(in.Messages) == 0 {
		return "", errors.New("openai: messages must not be empty")
	}

	apiKey, err := c.chat.Key(ctx)
	if err != nil {
		return "", fmt.Errorf("openai: resolve chat key: %w", err)
	}

	temperature := in.Temperature
	payload := chatRequest{
		Messages:    in.Messages,
		Temperature: &temperature,
	}
	if c.flavor == FlavorOpenAI {
		// Azure routes by deployment in the URL; OpenAI needs the model in the body.
		payload.Model = c.chat.Deployment
	}
	if in.JSONObject {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	u := c.chatCompletionsURL()
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, apiKey)

	raw, err := c.doJSONRequest(req, u)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var decoded chatResponse
	if decErr := json.Unmarshal(raw, &decoded); decErr != nil {
		return "", fmt.Errorf("openai: decode response: %w", decErr)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return decoded.Choices[0].Message.Content, nil
}

// CreateRealtimeSession asks the provider for a realtime session descriptor
// (which carries the ephemeral client secret) and returns it verbatim.
func (c *Client) CreateRealtimeSession(ctx context.Context, voice string) (json.RawMessage, error) {
	apiKey, err := c.realtime.Key(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: resolve realtime key: %w", err)
	}

	body, err := json.Marshal(realtimeSessionRequest{Model: c.realtime.Deployment, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal realtime session request: %w", err)
	}

	u := c.realtimeURL()
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("openai: create realtime session request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, apiKey)

	raw, err := c.doJSONRequest(req, u)
	if err != nil {
		return nil, fmt.Errorf("openai: realtime session request failed: %w", err)
	}
	if !json.Valid(raw) {
		return nil, errors.New("openai: realtime session response is not JSON")
	}
	return json.RawMessage(raw), nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
