package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"english-tutor/internal/domain"
	"english-tutor/internal/integrations/openai"
	"english-tutor/internal/observability"
	"english-tutor/internal/usecase"
)

type stubRelay struct {
	token     json.RawMessage
	content   string
	err       error
	chatIn    usecase.ChatInput
	text      string
	explainIn usecase.ExplainInput
}

func (s *stubRelay) Token(context.Context) (json.RawMessage, error) {
	return s.token, s.err
}

func (s *stubRelay) Chat(_ context.Context, in usecase.ChatInput) (string, error) {
	s.chatIn = in
	return s.content, s.err
}

func (s *stubRelay) Translate(_ context.Context, text string) (string, error) {
	s.text = text
	return s.content, s.err
}

func (s *stubRelay) Explain(_ context.Context, in usecase.ExplainInput) (string, error) {
	s.explainIn = in
	return s.content, s.err
}

func newTestServer(t *testing.T, relay Relay, opts ...Option) (*httptest.Server, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics("test_httpapi")
	srv, err := New(relay, metrics, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, metrics
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(buf)
}

func decodeBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(nil, observability.NewMetrics("test_httpapi"))
	require.Error(t, err)

	_, err = New(&stubRelay{}, nil)
	require.Error(t, err)
}

func TestRoutes_ServedAtRootAndUnderAPI(t *testing.T) {
	relay := &stubRelay{content: "ok"}
	ts, _ := newTestServer(t, relay)

	for _, prefix := range []string{"", "/api"} {
		res, body := do(t, http.MethodPost, ts.URL+prefix+"/translate", `{"text":"Hello"}`)
		require.Equal(t, http.StatusOK, res.StatusCode, prefix)
		require.Equal(t, "ok", decodeBody[contentResponse](t, body).Content)
		require.Equal(t, "Hello", relay.text)
	}
}

func TestChat_ForwardsBothShapes(t *testing.T) {
	relay := &stubRelay{content: "Hi there!"}
	ts, _ := newTestServer(t, relay)

	res, body := do(t, http.MethodPost, ts.URL+"/api/chat", `{"userMessage":"Hello"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "Hi there!", decodeBody[contentResponse](t, body).Content)
	require.Equal(t, "Hello", relay.chatIn.UserMessage)

	_, _ = do(t, http.MethodPost, ts.URL+"/chat", `{"messages":[{"role":"user","content":"Hi"}],"parseJSON":true}`)
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "Hi"}}, relay.chatIn.Messages)
	require.True(t, relay.chatIn.ParseJSON)
}

func TestExplanation_ForwardsTexts(t *testing.T) {
	relay := &stubRelay{content: `{"english":"Hi there!","japanese":"やあ"}`}
	ts, _ := newTestServer(t, relay)

	res, body := do(t, http.MethodPost, ts.URL+"/explanation", `{"userText":"Hello","aiText":"Hi there!"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, usecase.ExplainInput{UserText: "Hello", AIText: "Hi there!"}, relay.explainIn)
	require.JSONEq(t, relay.content, decodeBody[contentResponse](t, body).Content)
}

func TestToken_PassesDescriptorThroughUnmodified(t *testing.T) {
	descriptor := `{"id":"sess_1","client_secret":{"value":"ek_abc","expires_at":1700000000},"voice":"verse"}`
	ts, metrics := newTestServer(t, &stubRelay{token: json.RawMessage(descriptor)})

	res, body := do(t, http.MethodGet, ts.URL+"/api/token", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/json", res.Header.Get("Content-Type"))
	require.Equal(t, descriptor, body)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.TokensIssued))
}

func TestToken_FailureReturnsDiagnostic(t *testing.T) {
	relay := &stubRelay{err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "realtime_session_error", Detail: "upstream returned status 401"}}
	ts, _ := newTestServer(t, relay)

	res, body := do(t, http.MethodGet, ts.URL+"/token", "")
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	out := decodeBody[errorResponse](t, body)
	require.Equal(t, "Failed to generate token", out.Error)
	require.Equal(t, "upstream returned status 401", out.Details)
}

func TestErrors_MapToGenericResponses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, msg: "userMessage or messages is required"},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "chat_rate_limited"}, status: http.StatusInternalServerError, msg: "Failed to generate response"},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "chat_error"}, status: http.StatusInternalServerError, msg: "Failed to generate response"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, msg: "Failed to generate response"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, _ := newTestServer(t, &stubRelay{err: tc.err})

			res, body := do(t, http.MethodPost, ts.URL+"/chat", `{"userMessage":"Hello"}`)
			require.Equal(t, tc.status, res.StatusCode)
			require.JSONEq(t, `{"error":"`+tc.msg+`"}`, body)
		})
	}
}

func TestDecodeFailures(t *testing.T) {
	ts, _ := newTestServer(t, &stubRelay{})

	res, _ := do(t, http.MethodPost, ts.URL+"/chat", "")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, http.MethodPost, ts.URL+"/chat", "not-json")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	huge := `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	res, _ = do(t, http.MethodPost, ts.URL+"/translate", huge)
	require.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
}

func TestCorrelationID(t *testing.T) {
	ts, _ := newTestServer(t, &stubRelay{content: "ok"})

	res, _ := do(t, http.MethodPost, ts.URL+"/translate", `{"text":"Hi"}`)
	require.NotEmpty(t, res.Header.Get(correlationHeader))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("x-correlation-id", "corr-123")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, "corr-123", res.Header.Get(correlationHeader))
}

func TestCORS(t *testing.T) {
	ts, _ := newTestServer(t, &stubRelay{content: "ok"}, WithAllowOrigin("http://localhost:5173"))

	res, _ := do(t, http.MethodOptions, ts.URL+"/api/chat", "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))

	ts, _ = newTestServer(t, &stubRelay{content: "ok"})
	res, _ = do(t, http.MethodPost, ts.URL+"/translate", `{"text":"Hi"}`)
	require.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &stubRelay{content: "ok"})

	_, _ = do(t, http.MethodPost, ts.URL+"/api/translate", `{"text":"Hi"}`)
	_, _ = do(t, http.MethodPost, ts.URL+"/translate", `{"text":"Hi"}`)

	res, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, `test_httpapi_relay_requests_total{route="/translate",status="2xx"} 2`)
}

// End to end through the real use case and provider client.

func newRelayAgainst(t *testing.T, upstream http.HandlerFunc) *httptest.Server {
	t.Helper()
	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)

	ep := openai.Endpoint{BaseURL: up.URL, Deployment: "gpt-4o", APIVersion: "2024-08-01-preview", Key: openai.StaticKey("test-key")}
	client, err := openai.NewClient(openai.FlavorAzure, ep, ep)
	require.NoError(t, err)
	svc, err := usecase.NewRelayService(client, usecase.Settings{})
	require.NoError(t, err)

	ts, _ := newTestServer(t, svc)
	return ts
}

func TestChatScenario_HelloHiThere(t *testing.T) {
	ts := newRelayAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hi there!"}}]}`))
	})

	res, body := do(t, http.MethodPost, ts.URL+"/chat", `{"userMessage":"Hello"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"content":"Hi there!"}`, body)
}

func TestExplanationScenario_RawJSONContent(t *testing.T) {
	completion := `{"english":"Hi there!","japanese":"「やあ」という気軽な挨拶です。"}`
	ts := newRelayAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
		raw, _ := json.Marshal(completion)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` + string(raw) + `}}]}`))
	})

	res, body := do(t, http.MethodPost, ts.URL+"/api/explanation", `{"userText":"Hello","aiText":"Hi there!"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	content := decodeBody[contentResponse](t, body).Content
	require.Equal(t, completion, content)

	explanation := decodeBody[domain.Explanation](t, content)
	require.Equal(t, "Hi there!", explanation.English)
	require.Equal(t, "「やあ」という気軽な挨拶です。", explanation.Japanese)
}

func TestUpstreamNon2xx_YieldsExactlyOneGeneric500(t *testing.T) {
	var calls atomic.Int32
	ts := newRelayAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"deployment overloaded","choices":[]}}`))
	})

	routes := map[string]string{
		"/chat":        `{"userMessage":"Hello"}`,
		"/translate":   `{"text":"Hello"}`,
		"/explanation": `{"userText":"Hello","aiText":"Hi there!"}`,
	}
	for route, payload := range routes {
		before := calls.Load()
		res, body := do(t, http.MethodPost, ts.URL+route, payload)
		require.Equal(t, http.StatusInternalServerError, res.StatusCode, route)
		require.Equal(t, before+1, calls.Load(), "no retry for %s", route)

		out := decodeBody[map[string]any](t, body)
		require.Len(t, out, 1, route)
		require.Contains(t, out, "error")
		require.NotContains(t, body, "deployment overloaded")
	}
}
