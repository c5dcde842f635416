package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/require"

	"little-giant/internal/domain"
	"little-giant/internal/pageaction"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPickActive(t *testing.T) {
	ids := []proto.TargetTargetID{"a", "b", "c"}

	require.Equal(t, 2, pickActive(ids, []bool{true, false, false}, "c"))
	require.Equal(t, 1, pickActive(ids, []bool{false, true, false}, "gone"))
	require.Equal(t, 1, pickActive(ids, []bool{false, true, true}, ""))
	require.Equal(t, 0, pickActive(ids, []bool{false, false, false}, ""))
}

func TestTabError(t *testing.T) {
	require.NoError(t, tabError(nil))

	gone := tabError(fmt.Errorf("eval: %w", &cdp.Error{Code: -32000, Message: "No target with given id found"}))
	require.ErrorIs(t, gone, pageaction.ErrNoActiveTab)

	other := &cdp.Error{Code: -32000, Message: "Cannot navigate to invalid URL"}
	require.False(t, errors.Is(tabError(other), pageaction.ErrNoActiveTab))

	plain := errors.New("boom")
	require.Equal(t, plain, tabError(plain))
}

func TestOpenURL_RejectsNonHTTP(t *testing.T) {
	c := New(Config{DebuggerURL: "ws://127.0.0.1:1/devtools"}, nil, discardLogger())
	for _, raw := range []string{"javascript:alert(1)", "file:///etc/passwd", "https://", "not a url"} {
		_, err := c.OpenURL(context.Background(), raw)
		require.Error(t, err, raw)
		require.Contains(t, err.Error(), "refusing to open")
	}
}

func TestCloseWithoutStart(t *testing.T) {
	c := New(Config{}, nil, nil)
	require.NoError(t, c.Close())
	require.Equal(t, defaultNavigationTimeout, c.cfg.NavigationTimeout)
}

// TestLiveTab drives a real Chrome. Set LITTLE_GIANT_CHROME_URL to a
// DevTools websocket URL to run it.
func TestLiveTab(t *testing.T) {
	control := os.Getenv("LITTLE_GIANT_CHROME_URL")
	if control == "" {
		t.Skip("LITTLE_GIANT_CHROME_URL not set")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><title>Fixture</title></head><body>
			<h1>Fixture page</h1>
			<input placeholder="Your name">
			<button onclick="document.title='clicked'">Submit Order</button>
		</body></html>`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := New(Config{DebuggerURL: control}, pageaction.NewExecutor(pageaction.WithSettleDelay(0)), discardLogger())
	defer c.Close()

	tab, err := c.OpenURL(ctx, srv.URL)
	require.NoError(t, err)
	require.NotEmpty(t, tab.ID)

	res, err := c.Perform(ctx, domain.Intent{Action: domain.ActionType, Target: domain.StringPtr("name"), Value: domain.StringPtr("Ada")})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	res, err = c.Perform(ctx, domain.Intent{Action: domain.ActionClick, Target: domain.StringPtr("submit")})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, "clicked", info.Title)

	outline, err := c.Outline(ctx)
	require.NoError(t, err)
	require.Equal(t, "Fixture page", outline.Headings[0].Text)
}
