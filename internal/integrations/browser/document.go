package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"little-giant/internal/pageaction"
)

const (
	clickableSelector = `button, a, [role="button"], input[type="button"], input[type="submit"], input[type="reset"]`
	textInputSelector = `textarea, [contenteditable=""], [contenteditable="true"], input:not([type]), ` +
		`input[type="text"], input[type="search"], input[type="email"], input[type="url"], ` +
		`input[type="tel"], input[type="password"], input[type="number"]`
	textBlockSelector = `h1, h2, h3, h4, h5, h6, p, li, a, button, label, td, th, dt, dd, blockquote, figcaption, summary`
)

var errHidden = errors.New("element is not rendered")

const describeJS = `() => {
	const el = this;
	const rendered = !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	let label = "";
	if (el.labels && el.labels.length) label = el.labels[0].innerText;
	else if (el.closest && el.closest("label")) label = el.closest("label").innerText;
	let text = (el.innerText || "").trim();
	if (!text && el.tagName === "INPUT" && ["button", "submit", "reset"].includes(el.type)) text = el.value || "";
	return {
		tag: el.tagName.toLowerCase(),
		text: text,
		ariaLabel: el.getAttribute("aria-label") || "",
		title: el.getAttribute("title") || "",
		placeholder: el.getAttribute("placeholder") || "",
		label: (label || "").trim(),
		rendered: rendered,
	};
}`

const setValueJS = `(value) => {
	this.focus();
	if ("value" in this) this.value = value; else this.textContent = value;
	this.dispatchEvent(new Event("input", { bubbles: true }));
	this.dispatchEvent(new Event("change", { bubbles: true }));
}`

const submitJS = `() => {
	const form = this.form || (this.closest && this.closest("form"));
	if (!form) return false;
	if (form.requestSubmit) form.requestSubmit(); else form.submit();
	return true;
}`

const viewportJS = `() => ({
	scrollY: window.scrollY,
	height: window.innerHeight,
	documentHeight: Math.max(document.documentElement.scrollHeight, document.body ? document.body.scrollHeight : 0),
})`

// Document is a pageaction.Document over a live tab.
type Document struct {
	page *rod.Page
}

var _ pageaction.Document = (*Document)(nil)

func (d *Document) Clickables(ctx context.Context) ([]pageaction.Element, error) {
	return d.query(ctx, clickableSelector)
}

func (d *Document) TextInputs(ctx context.Context) ([]pageaction.Element, error) {
	return d.query(ctx, textInputSelector)
}

func (d *Document) TextBlocks(ctx context.Context) ([]pageaction.Element, error) {
	return d.query(ctx, textBlockSelector)
}

func (d *Document) Viewport(ctx context.Context) (pageaction.Viewport, error) {
	res, err := d.page.Context(ctx).Eval(viewportJS)
	if err != nil {
		return pageaction.Viewport{}, tabError(err)
	}
	var vp struct {
		ScrollY        float64 `json:"scrollY"`
		Height         float64 `json:"height"`
		DocumentHeight float64 `json:"documentHeight"`
	}
	if err := decode(res, &vp); err != nil {
		return pageaction.Viewport{}, err
	}
	return pageaction.Viewport{ScrollY: vp.ScrollY, Height: vp.Height, DocumentHeight: vp.DocumentHeight}, nil
}

func (d *Document) ScrollTo(ctx context.Context, top float64) error {
	_, err := d.page.Context(ctx).Eval(`(top) => window.scrollTo({ top: top, behavior: "smooth" })`, top)
	return tabError(err)
}

func (d *Document) query(ctx context.Context, selector string) ([]pageaction.Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, tabError(err)
	}
	out := make([]pageaction.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out, nil
}

type element struct {
	el *rod.Element
}

func (e *element) Describe(ctx context.Context) (pageaction.ElementInfo, error) {
	res, err := e.el.Context(ctx).Eval(describeJS)
	if err != nil {
		return pageaction.ElementInfo{}, tabError(err)
	}
	var info struct {
		Tag         string `json:"tag"`
		Text        string `json:"text"`
		AriaLabel   string `json:"ariaLabel"`
		Title       string `json:"title"`
		Placeholder string `json:"placeholder"`
		Label       string `json:"label"`
		Rendered    bool   `json:"rendered"`
	}
	if err := decode(res, &info); err != nil {
		return pageaction.ElementInfo{}, err
	}
	if !info.Rendered {
		return pageaction.ElementInfo{}, errHidden
	}
	return pageaction.ElementInfo{
		Tag:         info.Tag,
		Text:        info.Text,
		AriaLabel:   info.AriaLabel,
		Title:       info.Title,
		Placeholder: info.Placeholder,
		Label:       info.Label,
	}, nil
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return tabError(e.el.Context(ctx).ScrollIntoView())
}

func (e *element) Click(ctx context.Context) error {
	return tabError(e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (e *element) SetValue(ctx context.Context, value string) error {
	_, err := e.el.Context(ctx).Eval(setValueJS, value)
	return tabError(err)
}

func (e *element) Submit(ctx context.Context) error {
	el := e.el.Context(ctx)
	res, err := el.Eval(submitJS)
	if err != nil {
		return tabError(err)
	}
	if res.Value.Bool() {
		return nil
	}
	return tabError(el.Type(input.Enter))
}

func decode(res *proto.RuntimeRemoteObject, v any) error {
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("browser: marshal eval result: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("browser: decode eval result: %w", err)
	}
	return nil
}

// tabError maps errors from a closed or detached target to ErrNoActiveTab.
func tabError(err error) error {
	if err == nil {
		return nil
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) && targetGone(cdpErr.Message) {
		return fmt.Errorf("%w: %s", pageaction.ErrNoActiveTab, cdpErr.Message)
	}
	return err
}

func targetGone(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"no target with given id", "session with given id not found", "target closed", "cannot find context with specified id"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
