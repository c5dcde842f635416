package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"little-giant/internal/dispatch"
	"little-giant/internal/domain"
)

// fakeModelServer answers every chat request with content.
func fakeModelServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			_, _ = io.WriteString(w, `{"data":[{"id":"test-model"}]}`)
		case "/v1/chat/completions":
			body, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
				"usage":   map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
			})
			_, _ = w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv map[string]string

func (e testEnv) get(k string) string { return e[k] }

func newTestEnv(t *testing.T, baseURL string) testEnv {
	dir := t.TempDir()
	return testEnv{
		"LM_BASE_URL":   baseURL,
		"LM_MODEL":      "test-model",
		"HISTORY_PATH":  filepath.Join(dir, "history.db"),
		"SETTINGS_FILE": filepath.Join(dir, "settings.yaml"),
	}
}

func run(t *testing.T, env testEnv, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(Dependencies{
		Getenv: env.get,
		Stdout: &out,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	cmd.SetOut(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassify(t *testing.T) {
	srv := fakeModelServer(t, `{"action":"navigate","url":"https://www.amazon.com","target":null,"value":null,"reasoning":"shopping site"}`)

	out, err := run(t, newTestEnv(t, srv.URL), "classify", "open", "amazon")
	require.NoError(t, err)

	var in domain.Intent
	require.NoError(t, json.Unmarshal([]byte(out), &in))
	require.Equal(t, domain.ActionNavigate, in.Action)
	require.Equal(t, "https://www.amazon.com", in.URLString())
}

func TestClassify_ModelDownFallsBackToChat(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")

	out, err := run(t, env, "classify", "tell me a joke")
	require.NoError(t, err)

	var in domain.Intent
	require.NoError(t, json.Unmarshal([]byte(out), &in))
	require.Equal(t, domain.ActionChat, in.Action)
}

func TestTurn_ChatReply(t *testing.T) {
	srv := fakeModelServer(t, `{"action":"chat","url":null,"target":null,"value":null,"reasoning":"small talk"}`)

	out, err := run(t, newTestEnv(t, srv.URL), "turn", "--conversation", "conv-1", "hello there")
	require.NoError(t, err)

	var ev dispatch.Event
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	require.Equal(t, dispatch.EventChatReply, ev.Kind)
	require.NotEmpty(t, ev.Reply)
}

func TestTurn_EmptyMessage(t *testing.T) {
	srv := fakeModelServer(t, "unused")

	_, err := run(t, newTestEnv(t, srv.URL), "turn", "   ")
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := fakeModelServer(t, "unused")

	out, err := run(t, newTestEnv(t, srv.URL), "ping")
	require.NoError(t, err)
	require.Contains(t, out, "Connected to LM Studio")
	require.Contains(t, out, srv.URL)
	require.Contains(t, out, "test-model")
}

func TestPing_Unreachable(t *testing.T) {
	_, err := run(t, newTestEnv(t, "http://127.0.0.1:1"), "ping")
	require.Error(t, err)
}

func TestSettings_SetThenShow(t *testing.T) {
	env := newTestEnv(t, "")
	delete(env, "LM_BASE_URL")
	delete(env, "LM_MODEL")

	out, err := run(t, env, "settings", "set", "--model", "qwen2.5-7b-instruct", "--temperature", "0.2", "--base-url", "http://10.0.0.5:1234")
	require.NoError(t, err)
	require.Contains(t, out, env["SETTINGS_FILE"])

	out, err = run(t, env, "settings", "show")
	require.NoError(t, err)
	require.Contains(t, out, "model: qwen2.5-7b-instruct")
	require.Contains(t, out, "temperature: 0.2")
	require.Contains(t, out, "base_url: http://10.0.0.5:1234")

	// Unchanged flags keep what the file already holds.
	_, err = run(t, env, "settings", "set", "--max-tokens", "512")
	require.NoError(t, err)
	out, err = run(t, env, "settings", "show")
	require.NoError(t, err)
	require.Contains(t, out, "model: qwen2.5-7b-instruct")
	require.Contains(t, out, "max_tokens: 512")
}

func TestSettings_ShowAppliesEnvironment(t *testing.T) {
	env := newTestEnv(t, "http://192.168.1.2:1234")

	out, err := run(t, env, "settings", "show")
	require.NoError(t, err)
	require.Contains(t, out, "base_url: http://192.168.1.2:1234")
	require.Contains(t, out, "model: test-model")
}

func TestSettings_SetRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := run(t, env, "settings", "set", "--base-url", "localhost:1234")
	require.Error(t, err)
	require.Contains(t, err.Error(), "http")
}

func TestLoadEnv_FlagsOverrideEnvironment(t *testing.T) {
	srv := fakeModelServer(t, "unused")
	env := newTestEnv(t, srv.URL)

	_, err := run(t, env, "--history-driver", "dynamodb", "ping")
	require.Error(t, err)
	require.Contains(t, err.Error(), "STATE_TABLE")

	env["HISTORY_DRIVER"] = "postgres"
	_, err = run(t, env, "ping")
	require.Error(t, err)

	alt := filepath.Join(t.TempDir(), "other.db")
	_, err = run(t, env, "--history-driver", "sqlite", "--history-path", alt, "ping")
	require.NoError(t, err)
}

func TestResolvePath(t *testing.T) {
	require.Equal(t, "/abs/x.db", resolvePath("/abs/x.db"))
	require.Equal(t, ":memory:", resolvePath(":memory:"))
	require.Equal(t, "", resolvePath(""))
	require.True(t, strings.HasSuffix(resolvePath("little-giant/history.db"), filepath.Join("little-giant", "history.db")))
}
