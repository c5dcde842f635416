// Package provider holds the current model client. A settings change builds
// a new client and swaps it in; calls already in flight keep the client they
// loaded.
package provider

import (
	"context"
	"errors"
	"sync/atomic"

	"little-giant/internal/domain"
	"little-giant/internal/integrations/lmstudio"
)

// ErrNoProvider is returned when no client has been configured yet.
var ErrNoProvider = errors.New("provider: no model client configured")

// Client is the model client surface used by the classifier and chat paths.
type Client interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (lmstudio.Completion, error)
	TestConnection(ctx context.Context) (bool, error)
}

// Holder is safe for concurrent use.
type Holder struct {
	current atomic.Pointer[entry]
}

type entry struct {
	client Client
	cfg    lmstudio.Config
}

// NewHolder returns a Holder with c installed; c may be nil.
func NewHolder(c Client) *Holder {
	h := &Holder{}
	if c != nil {
		h.current.Store(&entry{client: c})
	}
	return h
}

// Current returns the installed client or ErrNoProvider.
func (h *Holder) Current() (Client, error) {
	e := h.current.Load()
	if e == nil || e.client == nil {
		return nil, ErrNoProvider
	}
	return e.client, nil
}

// Config returns the settings the current client was built from.
func (h *Holder) Config() lmstudio.Config {
	if e := h.current.Load(); e != nil {
		return e.cfg
	}
	return lmstudio.Config{}
}

// Reconfigure builds a new client from cfg and installs it. The previous
// client stays installed when cfg is invalid.
func (h *Holder) Reconfigure(cfg lmstudio.Config, opts ...lmstudio.Option) error {
	c, err := lmstudio.New(cfg, opts...)
	if err != nil {
		return err
	}
	h.current.Store(&entry{client: c, cfg: cfg})
	return nil
}

// Chat delegates to the client installed at call time.
func (h *Holder) Chat(ctx context.Context, messages []domain.ChatMessage) (lmstudio.Completion, error) {
	c, err := h.Current()
	if err != nil {
		return lmstudio.Completion{}, err
	}
	return c.Chat(ctx, messages)
}

// TestConnection delegates to the client installed at call time.
func (h *Holder) TestConnection(ctx context.Context) (bool, error) {
	c, err := h.Current()
	if err != nil {
		return false, err
	}
	return c.TestConnection(ctx)
}
