// Package browser drives a Chrome tab over the DevTools protocol. It is the
// URL-open collaborator and the live Document for page actions.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"little-giant/internal/domain"
	"little-giant/internal/pageaction"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	maxPageText              = 12000
)

// Config controls how the controller reaches Chrome.
type Config struct {
	// DebuggerURL is a DevTools websocket URL. When empty a local Chrome is
	// launched.
	DebuggerURL       string
	Headless          bool
	NavigationTimeout time.Duration
}

// Controller owns the browser connection and remembers the active tab.
type Controller struct {
	cfg      Config
	logger   *slog.Logger
	executor *pageaction.Executor

	mu      sync.Mutex
	browser *rod.Browser
	active  proto.TargetTargetID
}

func New(cfg Config, executor *pageaction.Executor, logger *slog.Logger) *Controller {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = pageaction.NewExecutor(pageaction.WithLogger(logger))
	}
	return &Controller{cfg: cfg, logger: logger, executor: executor}
}

// Start connects to Chrome. It is called lazily by every operation.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Controller) startLocked(ctx context.Context) error {
	if c.browser != nil {
		return nil
	}
	controlURL := c.cfg.DebuggerURL
	if controlURL == "" {
		u, err := launcher.New().Headless(c.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("browser: launch chrome: %w", err)
		}
		controlURL = u
	}
	// The connection outlives the request that opened it.
	b := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect to chrome: %w", err)
	}
	c.browser = b
	c.logger.Info("browser connected", "control_url", controlURL)
	return nil
}

// Close disconnects from Chrome. A launched Chrome is closed with it.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	b := c.browser
	c.browser = nil
	c.active = ""
	if c.cfg.DebuggerURL != "" {
		return nil
	}
	return b.Close()
}

// OpenURL loads rawURL in the active tab, or in a new tab when none exists.
func (c *Controller) OpenURL(ctx context.Context, rawURL string) (domain.TabHandle, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.TabHandle{}, fmt.Errorf("browser: refusing to open %q", rawURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.startLocked(ctx); err != nil {
		return domain.TabHandle{}, err
	}

	page, err := c.activePageLocked(ctx)
	switch {
	case errors.Is(err, pageaction.ErrNoActiveTab):
		page, err = c.browser.Page(proto.TargetCreateTarget{URL: rawURL})
		if err != nil {
			return domain.TabHandle{}, fmt.Errorf("browser: create tab: %w", err)
		}
	case err != nil:
		return domain.TabHandle{}, err
	default:
		if err := page.Context(ctx).Timeout(c.cfg.NavigationTimeout).Navigate(rawURL); err != nil {
			return domain.TabHandle{}, fmt.Errorf("browser: navigate: %w", err)
		}
	}
	c.active = page.TargetID
	if _, err := page.Activate(); err != nil {
		c.logger.Debug("activate tab", "err", err)
	}
	return domain.TabHandle{ID: string(page.TargetID), URL: rawURL}, nil
}

// Perform runs a page action against the active tab.
func (c *Controller) Perform(ctx context.Context, in domain.Intent) (domain.PageActionResult, error) {
	doc, err := c.ActiveDocument(ctx)
	if err != nil {
		if errors.Is(err, pageaction.ErrNoActiveTab) {
			return domain.ActionFailed(pageaction.NoActiveTabMessage), nil
		}
		return domain.PageActionResult{}, err
	}
	return c.executor.Perform(ctx, doc, in), nil
}

// ActiveDocument returns the live document of the active tab.
func (c *Controller) ActiveDocument(ctx context.Context) (*Document, error) {
	page, err := c.activePage(ctx)
	if err != nil {
		return nil, err
	}
	return &Document{page: page}, nil
}

// Info describes the active tab.
func (c *Controller) Info(ctx context.Context) (domain.PageInfo, error) {
	page, err := c.activePage(ctx)
	if err != nil {
		return domain.PageInfo{}, err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return domain.PageInfo{}, fmt.Errorf("browser: tab info: %w", err)
	}
	host := ""
	if u, err := url.Parse(info.URL); err == nil {
		host = u.Hostname()
	}
	return domain.PageInfo{
		URL:       info.URL,
		Title:     info.Title,
		Domain:    host,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Snapshot captures the active tab's current DOM as a static document.
func (c *Controller) Snapshot(ctx context.Context) (*pageaction.Snapshot, error) {
	page, err := c.activePage(ctx)
	if err != nil {
		return nil, err
	}
	p := page.Context(ctx)
	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read page html: %w", err)
	}
	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("browser: tab info: %w", err)
	}
	return pageaction.ParseSnapshot(html, pageaction.WithPageURL(info.URL))
}

// Outline summarises the structure of the active tab.
func (c *Controller) Outline(ctx context.Context) (domain.PageOutline, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return domain.PageOutline{}, err
	}
	return snap.Outline(ctx)
}

// Text returns the visible text of the active tab, truncated.
func (c *Controller) Text(ctx context.Context) (string, error) {
	page, err := c.activePage(ctx)
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Eval(`() => (document.body && document.body.innerText) || ""`)
	if err != nil {
		return "", fmt.Errorf("browser: read page text: %w", err)
	}
	text := strings.TrimSpace(res.Value.String())
	if r := []rune(text); len(r) > maxPageText {
		text = string(r[:maxPageText])
	}
	return text, nil
}

func (c *Controller) activePage(ctx context.Context) (*rod.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.startLocked(ctx); err != nil {
		return nil, err
	}
	return c.activePageLocked(ctx)
}

// activePageLocked prefers the tab we last navigated, then the first
// visible tab, then the first tab.
func (c *Controller) activePageLocked(ctx context.Context) (*rod.Page, error) {
	pages, err := c.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list tabs: %w", err)
	}
	if len(pages) == 0 {
		c.active = ""
		return nil, pageaction.ErrNoActiveTab
	}
	ids := make([]proto.TargetTargetID, len(pages))
	visible := make([]bool, len(pages))
	for i, p := range pages {
		ids[i] = p.TargetID
		res, err := p.Context(ctx).Eval(`() => document.visibilityState`)
		visible[i] = err == nil && res.Value.String() == "visible"
	}
	i := pickActive(ids, visible, c.active)
	c.active = ids[i]
	return pages[i], nil
}

func pickActive(ids []proto.TargetTargetID, visible []bool, remembered proto.TargetTargetID) int {
	if remembered != "" {
		for i, id := range ids {
			if id == remembered {
				return i
			}
		}
	}
	for i, v := range visible {
		if v {
			return i
		}
	}
	return 0
}
