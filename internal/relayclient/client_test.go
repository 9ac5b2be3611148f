package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"english-tutor/internal/domain"
)

func newStub(t *testing.T, fn http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(fn)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL + "/api/")
	require.NoError(t, err)
	return c
}

func TestNew_ValidatesBaseURL(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestChat(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Hello", body["userMessage"])
		_, _ = w.Write([]byte(`{"content":"Hi there!"}`))
	})

	out, err := c.Chat(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hi there!", out)
}

func TestChatMessages(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages  []domain.ChatMessage `json:"messages"`
			ParseJSON bool                 `json:"parseJSON"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 1)
		require.True(t, body.ParseJSON)
		_, _ = w.Write([]byte(`{"content":"{}"}`))
	})

	out, err := c.ChatMessages(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "Hi"}}, true)
	require.NoError(t, err)
	require.Equal(t, "{}", out)
}

func TestTranslate_EmptyContentIsValid(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":""}`))
	})

	out, err := c.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestContent_MissingField(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"wrong shape"}`))
	})

	_, err := c.Translate(context.Background(), "Hello")
	require.ErrorContains(t, err, "no content")
}

func TestExplain_DecodesJSONString(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Hello", body["userText"])
		require.Equal(t, "Hi there!", body["aiText"])
		_, _ = w.Write([]byte(`{"content":"{\"english\":\"Hi there!\",\"japanese\":\"やあ\",\"grammar\":\"挨拶\"}"}`))
	})

	exp, err := c.Explain(context.Background(), "Hello", "Hi there!")
	require.NoError(t, err)
	require.Equal(t, domain.Explanation{English: "Hi there!", Japanese: "やあ", Grammar: "挨拶"}, exp)
}

func TestParseExplanation_Rejects(t *testing.T) {
	_, err := ParseExplanation("not-json")
	require.Error(t, err)

	_, err = ParseExplanation(`{"english":"Hi"}`)
	require.Error(t, err)
}

func TestToken(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/token", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"sess_1","model":"gpt-4o-realtime-preview","client_secret":{"value":"ek_1","expires_at":1700000000}}`))
	})

	sess, err := c.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ek_1", sess.ClientSecret.Value)
	require.Equal(t, int64(1700000000), sess.ClientSecret.ExpiresAt)
}

func TestToken_MissingSecret(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"bad deployment"}}`))
	})

	_, err := c.Token(context.Background())
	require.ErrorContains(t, err, "no client secret")
}

func TestNon2xx(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to generate token","details":"upstream returned status 401"}`))
	})

	_, err := c.Token(context.Background())
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.HTTPStatusCode())
	require.Equal(t, "Failed to generate token", statusErr.Message)
	require.Equal(t, "upstream returned status 401", statusErr.Details)
}

func TestNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(url)
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "Hello")
	require.Error(t, err)
}
