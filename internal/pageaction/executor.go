package pageaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"little-giant/internal/domain"
)

const (
	defaultSettleDelay = 150 * time.Millisecond
	pageStep           = 0.9
)

// Executor interprets an Intent against a Document. It never undoes an
// action that was already applied.
type Executor struct {
	settle time.Duration
	logger *slog.Logger
}

type ExecutorOption func(*Executor)

// WithSettleDelay sets how long scrolling waits for the document to settle.
func WithSettleDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.settle = d
	}
}

func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{settle: defaultSettleDelay, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Perform runs the intent and reports the outcome. Errors are reported in
// the result, never returned.
func (e *Executor) Perform(ctx context.Context, doc Document, in domain.Intent) domain.PageActionResult {
	if doc == nil {
		return domain.ActionFailed(NoActiveTabMessage)
	}
	msg, err := e.perform(ctx, doc, in)
	if err != nil {
		e.logger.Info("page action failed", "action", in.Action, "target", in.TargetString(), "err", err)
		if errors.Is(err, ErrNoActiveTab) {
			return domain.ActionFailed(NoActiveTabMessage)
		}
		return domain.ActionFailed(err.Error())
	}
	return domain.ActionSucceeded(msg)
}

func (e *Executor) perform(ctx context.Context, doc Document, in domain.Intent) (string, error) {
	switch domain.ParseAction(string(in.Action)) {
	case domain.ActionClick:
		return click(ctx, doc, in.TargetString())
	case domain.ActionType:
		return typeText(ctx, doc, in.TargetString(), in.ValueString(), false)
	case domain.ActionSearch:
		return typeText(ctx, doc, in.TargetString(), in.ValueString(), true)
	case domain.ActionScroll:
		if err := sleepCtx(ctx, e.settle); err != nil {
			return "", err
		}
		return scroll(ctx, doc, firstNonEmpty(in.ValueString(), in.TargetString()))
	default:
		return "nothing to do on the page", nil
	}
}

func click(ctx context.Context, doc Document, target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("%w: click needs a target", ErrActionNotFound)
	}
	els, err := doc.Clickables(ctx)
	if err != nil {
		return "", fmt.Errorf("list clickable elements: %w", err)
	}
	el, info, err := firstMatch(ctx, els, target, func(i ElementInfo) []string {
		return []string{i.Text, i.AriaLabel, i.Title}
	})
	if err != nil {
		return "", err
	}
	if el == nil {
		return "", fmt.Errorf("%w: %q", ErrActionNotFound, target)
	}
	if err := el.ScrollIntoView(ctx); err != nil {
		return "", fmt.Errorf("scroll element into view: %w", err)
	}
	if err := el.Click(ctx); err != nil {
		return "", fmt.Errorf("click element: %w", err)
	}
	return fmt.Sprintf("Clicked %q", displayName(info, target)), nil
}

func typeText(ctx context.Context, doc Document, target, value string, submit bool) (string, error) {
	if value == "" {
		return "", errors.New("no text to type")
	}
	els, err := doc.TextInputs(ctx)
	if err != nil {
		return "", fmt.Errorf("list text inputs: %w", err)
	}
	var el Element
	if strings.TrimSpace(target) != "" {
		el, _, err = firstMatch(ctx, els, target, func(i ElementInfo) []string {
			return []string{i.Placeholder, i.Label, i.AriaLabel}
		})
		if err != nil {
			return "", err
		}
	}
	if el == nil {
		if len(els) == 0 {
			return "", fmt.Errorf("%w: no text input on the page", ErrActionNotFound)
		}
		el = els[0]
	}
	if err := el.SetValue(ctx, value); err != nil {
		return "", fmt.Errorf("set input value: %w", err)
	}
	if submit || strings.Contains(strings.ToLower(target), "search") {
		if err := el.Submit(ctx); err != nil {
			return "", fmt.Errorf("submit search: %w", err)
		}
		return fmt.Sprintf("Searched for %q", value), nil
	}
	return fmt.Sprintf("Typed %q", value), nil
}

func scroll(ctx context.Context, doc Document, phrase string) (string, error) {
	vp, err := doc.Viewport(ctx)
	if err != nil {
		return "", fmt.Errorf("read viewport: %w", err)
	}
	switch direction := scrollDirection(phrase); direction {
	case "top":
		return "Scrolled to top", doc.ScrollTo(ctx, 0)
	case "bottom":
		return "Scrolled to bottom", doc.ScrollTo(ctx, vp.DocumentHeight)
	case "up":
		return "Scrolled up", doc.ScrollTo(ctx, max(0, vp.ScrollY-pageStep*vp.Height))
	case "down":
		return "Scrolled down", doc.ScrollTo(ctx, vp.ScrollY+pageStep*vp.Height)
	default:
		if direction != "" {
			els, err := doc.TextBlocks(ctx)
			if err != nil {
				return "", fmt.Errorf("list text blocks: %w", err)
			}
			el, _, err := firstMatch(ctx, els, direction, func(i ElementInfo) []string {
				return []string{i.Text}
			})
			if err != nil {
				return "", err
			}
			if el != nil {
				if err := el.ScrollIntoView(ctx); err != nil {
					return "", fmt.Errorf("scroll element into view: %w", err)
				}
				return fmt.Sprintf("Scrolled to %q", phrase), nil
			}
		}
		return "Scrolled to bottom", doc.ScrollTo(ctx, vp.DocumentHeight)
	}
}

var scrollFiller = map[string]struct{}{
	"to": {}, "the": {}, "of": {}, "page": {}, "scroll": {}, "a": {}, "bit": {},
}

// scrollDirection reduces a scroll phrase to top, bottom, up, down or the
// remaining search text.
func scrollDirection(phrase string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(phrase)) {
		if _, filler := scrollFiller[w]; !filler {
			words = append(words, w)
		}
	}
	rest := strings.Join(words, " ")
	switch rest {
	case "top", "start", "beginning":
		return "top"
	case "bottom", "end":
		return "bottom"
	case "up":
		return "up"
	case "down":
		return "down"
	}
	return rest
}

// firstMatch returns the first element whose fields contain needle,
// case-insensitively. Elements that cannot be described are skipped.
func firstMatch(ctx context.Context, els []Element, needle string, fields func(ElementInfo) []string) (Element, ElementInfo, error) {
	needle = normalizeText(needle)
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return nil, ElementInfo{}, err
		}
		info, err := el.Describe(ctx)
		if err != nil {
			continue
		}
		for _, f := range fields(info) {
			if f != "" && strings.Contains(normalizeText(f), needle) {
				return el, info, nil
			}
		}
	}
	return nil, ElementInfo{}, nil
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func displayName(info ElementInfo, fallback string) string {
	for _, s := range []string{info.Text, info.AriaLabel, info.Title} {
		if s = strings.TrimSpace(s); s != "" {
			return truncate(strings.Join(strings.Fields(s), " "), 60)
		}
	}
	return fallback
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
