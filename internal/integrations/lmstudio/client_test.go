package lmstudio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"little-giant/internal/domain"
)

// ---------------------------------------------------------------------------
// URL helpers
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:1234", "http://localhost:1234/v1/chat/completions"},
		{"http://localhost:1234/", "http://localhost:1234/v1/chat/completions"},
		{"http://localhost:1234/v1", "http://localhost:1234/v1/chat/completions"},
		{"", "http://localhost:1234/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
	require.Equal(t, "http://127.0.0.1:5000/v1/models", modelsURL("http://127.0.0.1:5000"))
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{Model: "deepseek-coder-v2-lite-instruct"})
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
	require.Equal(t, DefaultTemperature, c.temperature)
	require.Equal(t, DefaultMaxTokens, c.maxTokens)
	require.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestNew_ExplicitZeroTemperature(t *testing.T) {
	zero := 0.0
	c, err := New(Config{Model: "m", Temperature: &zero})
	require.NoError(t, err)
	require.Equal(t, 0.0, c.temperature)
}

func TestClient_Chat_SendsZeroTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"temperature":0,`)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	zero := 0.0
	c, err := New(Config{BaseURL: srv.URL, Model: "m", Temperature: &zero})
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")

	_, err = New(Config{Model: "m", BaseURL: "localhost:1234"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "http")
}

// ---------------------------------------------------------------------------
// Client.Chat
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(
		Config{BaseURL: srv.URL, Model: "local-model"},
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestClient_Chat_RoundTrip(t *testing.T) {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleUser, Content: "open amazon"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var got chatRequest
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, "local-model", got.Model)
		require.Equal(t, messages, got.Messages)
		require.Equal(t, 0.7, got.Temperature)
		require.Equal(t, -1, got.MaxTokens)
		require.Contains(t, string(raw), `"stream":false`)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello from LM Studio"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Chat(context.Background(), messages)
	require.NoError(t, err)
	require.Equal(t, "Hello from LM Studio", out.Content)
	require.Equal(t, domain.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}, out.Usage)
}

func TestClient_Chat_UsageOptional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Chat(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", out.Content)
	require.Zero(t, out.Usage.TotalTokens)
}

func TestClient_Chat_Non2xxIsConnectionError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
		}))

		_, err := newTestClient(t, srv).Chat(context.Background(), nil)
		srv.Close()

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		require.Equal(t, status, connErr.HTTPStatusCode())
		require.Contains(t, err.Error(), "model not loaded")
	}
}

func TestClient_Chat_UnreachableIsConnectionError(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", Model: "m"}, WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), nil)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Zero(t, connErr.StatusCode)
	require.Contains(t, err.Error(), "cannot reach")
}

func TestClient_Chat_TimeoutIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Chat(context.Background(), nil)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestClient_Chat_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv).Chat(ctx, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_Chat_ProtocolErrors(t *testing.T) {
	cases := map[string]string{
		"not json":       `not-a-json`,
		"no choices":     `{"choices":[]}`,
		"no message":     `{"choices":[{"index":0}]}`,
		"message string": `{"choices":[{"message":"hi"}]}`,
		"content number": `{"choices":[{"message":{"content":42}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Chat(context.Background(), nil)
			var protoErr *ProtocolError
			require.ErrorAs(t, err, &protoErr)
		})
	}
}

// ---------------------------------------------------------------------------
// Client.TestConnection / Models
// ---------------------------------------------------------------------------

func TestClient_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"data":[{"id":"qwen2.5-7b-instruct"},{"id":"deepseek-coder-v2-lite-instruct"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ok, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"qwen2.5-7b-instruct", "deepseek-coder-v2-lite-instruct"}, models)
}

func TestClient_TestConnection_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ok, err := newTestClient(t, srv).TestConnection(context.Background())
	require.False(t, ok)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, http.StatusServiceUnavailable, connErr.StatusCode)
}
