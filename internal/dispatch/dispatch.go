// Package dispatch routes a classified intent to the collaborator that
// carries it out.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"little-giant/internal/domain"
	"little-giant/internal/pageaction"
)

// URLOpener loads a URL in the active tab.
type URLOpener interface {
	OpenURL(ctx context.Context, url string) (domain.TabHandle, error)
}

// PageActor performs a page action in the active tab.
type PageActor interface {
	Perform(ctx context.Context, in domain.Intent) (domain.PageActionResult, error)
}

// Chatter answers open-ended chat.
type Chatter interface {
	Chat(ctx context.Context, message string) (string, error)
}

// ChatFunc adapts a function to Chatter.
type ChatFunc func(ctx context.Context, message string) (string, error)

func (f ChatFunc) Chat(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

type EventKind string

const (
	EventURLOpened  EventKind = "url_opened"
	EventPageAction EventKind = "page_action"
	EventChatReply  EventKind = "chat_reply"
	EventError      EventKind = "error"
)

// Event is the visible outcome of one dispatched turn.
type Event struct {
	Kind   EventKind                `json:"kind"`
	Intent domain.Intent            `json:"intent"`
	Tab    *domain.TabHandle        `json:"tab,omitempty"`
	Result *domain.PageActionResult `json:"result,omitempty"`
	Reply  string                   `json:"reply,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

type route func(ctx context.Context, in domain.Intent, message string) Event

// Dispatcher is a stateless routing table from action to handler.
type Dispatcher struct {
	routes map[domain.Action]route
	opener URLOpener
	actor  PageActor
	chat   Chatter
	logger *slog.Logger
}

func New(opener URLOpener, actor PageActor, chat Chatter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{opener: opener, actor: actor, chat: chat, logger: logger}
	d.routes = map[domain.Action]route{
		domain.ActionNavigate:  d.openURL,
		domain.ActionWebSearch: d.openURL,
		domain.ActionImages:    d.openURL,
		domain.ActionVideos:    d.openURL,
		domain.ActionClick:     d.pageAction,
		domain.ActionType:      d.pageAction,
		domain.ActionSearch:    d.pageAction,
		domain.ActionScroll:    d.pageAction,
		domain.ActionChat:      d.chatReply,
	}
	return d
}

// Dispatch carries out one intent. Unrecognised actions fall through to
// chat with the original message.
func (d *Dispatcher) Dispatch(ctx context.Context, in domain.Intent, message string) Event {
	r, ok := d.routes[in.Action]
	if !ok {
		r = d.chatReply
	}
	d.logger.Info("dispatch", "action", in.Action, "routed", ok)
	return r(ctx, in, message)
}

func (d *Dispatcher) openURL(ctx context.Context, in domain.Intent, _ string) Event {
	u := in.URLString()
	if u == "" {
		return Event{Kind: EventError, Intent: in, Error: "no url to open"}
	}
	if d.opener == nil {
		return Event{Kind: EventError, Intent: in, Error: pageaction.NoActiveTabMessage}
	}
	tab, err := d.opener.OpenURL(ctx, u)
	if err != nil {
		d.logger.Warn("open url failed", "url", u, "err", err)
		return Event{Kind: EventError, Intent: in, Error: visible(err)}
	}
	return Event{Kind: EventURLOpened, Intent: in, Tab: &tab}
}

func (d *Dispatcher) pageAction(ctx context.Context, in domain.Intent, _ string) Event {
	var res domain.PageActionResult
	if d.actor == nil {
		res = domain.ActionFailed(pageaction.NoActiveTabMessage)
	} else {
		var err error
		res, err = d.actor.Perform(ctx, in)
		if err != nil {
			d.logger.Warn("page action failed", "action", in.Action, "err", err)
			res = domain.ActionFailed(visible(err))
		}
	}
	return Event{Kind: EventPageAction, Intent: in, Result: &res}
}

func (d *Dispatcher) chatReply(ctx context.Context, in domain.Intent, message string) Event {
	if d.chat == nil {
		return Event{Kind: EventError, Intent: in, Error: "chat is not configured"}
	}
	reply, err := d.chat.Chat(ctx, message)
	if err != nil {
		d.logger.Warn("chat failed", "err", err)
		return Event{Kind: EventError, Intent: in, Error: err.Error()}
	}
	return Event{Kind: EventChatReply, Intent: in, Reply: reply}
}

func visible(err error) string {
	if errors.Is(err, pageaction.ErrNoActiveTab) {
		return pageaction.NoActiveTabMessage
	}
	return err.Error()
}
