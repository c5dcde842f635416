package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"little-giant/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(newTestRouter(t, deps), nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Message(t *testing.T) {
	srv := newTestServer(t, Deps{})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/message", strings.NewReader(`{"type":"DEBUG_TEST"}`))
	require.NoError(t, err)
	req.Header.Set("X-Correlation-Id", "corr-9")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-9", resp.Header.Get("X-Correlation-Id"))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func postMessage(t *testing.T, srv *httptest.Server, body, origin, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/message", strings.NewReader(body))
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_MessageRefusesForeignOrigin(t *testing.T) {
	const openURL = `{"type":"OPEN_URL","url":"https://attacker.example/phish"}`
	for _, contentType := range []string{"text/plain", "application/json"} {
		b := &stubBrowser{}
		srv := newTestServer(t, Deps{Browser: b})

		resp := postMessage(t, srv, openURL, "https://evil.example", contentType)
		require.Equal(t, http.StatusForbidden, resp.StatusCode, contentType)
		require.Empty(t, b.opened, contentType)
	}
}

func TestServer_MessageRequiresJSON(t *testing.T) {
	b := &stubBrowser{}
	srv := newTestServer(t, Deps{Browser: b})

	for _, contentType := range []string{"", "text/plain", "application/x-www-form-urlencoded"} {
		resp := postMessage(t, srv, `{"type":"OPEN_URL","url":"https://github.com"}`, "chrome-extension://abc", contentType)
		require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode, contentType)
	}
	require.Empty(t, b.opened)

	resp := postMessage(t, srv, `{"type":"OPEN_URL","url":"https://github.com"}`, "chrome-extension://abc", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://github.com", b.opened)
}

func TestServer_MessageRejectsGet(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/message")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-Id"))
}

func dialWS(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func TestWebSocket_RoundTrip(t *testing.T) {
	c := &stubClassifier{intent: domain.Intent{Action: domain.ActionScroll, Target: domain.StringPtr("down")}}
	srv := newTestServer(t, Deps{Classifier: c})
	conn := dialWS(t, srv, "chrome-extension://abcdef")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{Type: TypeClassifyIntent, ID: "r1", Message: "scroll down"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "r1", resp.ID)
	require.True(t, resp.Success)
	require.Equal(t, domain.ActionScroll, resp.Intent.Action)
}

func TestWebSocket_InvalidMessageKeepsConnection(t *testing.T) {
	srv := newTestServer(t, Deps{})
	conn := dialWS(t, srv, "")
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not-json")))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "INVALID_INPUT", resp.Code)

	require.NoError(t, conn.WriteJSON(Request{Type: "BOGUS", ID: "r2"}))
	resp = Response{}
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "r2", resp.ID)
	require.Equal(t, "Unknown message type", resp.Error)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, Deps{})

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAllowedOrigin(t *testing.T) {
	cases := map[string]bool{
		"":                         true,
		"chrome-extension://abc":   true,
		"moz-extension://abc":      true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:8787":    true,
		"https://example.com":      false,
		"file:///tmp/x.html":       false,
		"http://localhost.evil.io": false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		require.Equal(t, want, allowedOrigin(r), origin)
	}
}
