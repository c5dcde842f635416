// Package pageaction carries out structured intents (click, type, search,
// scroll) against the live document of the active tab.
package pageaction

import (
	"context"
	"errors"

	"little-giant/internal/domain"
)

var (
	// ErrActionNotFound is returned when no element matches a click or type target.
	ErrActionNotFound = errors.New("element not found")
	// ErrNoActiveTab is returned when there is no page to act on.
	ErrNoActiveTab = errors.New("no active tab")
)

// NoActiveTabMessage is the user-visible error for ErrNoActiveTab.
const NoActiveTabMessage = "No active tab"

// ElementInfo is what matching needs to know about an element.
type ElementInfo struct {
	Tag         string
	Text        string
	AriaLabel   string
	Title       string
	Placeholder string
	Label       string
}

// Element is a handle to one element of a Document.
type Element interface {
	Describe(ctx context.Context) (ElementInfo, error)
	ScrollIntoView(ctx context.Context) error
	Click(ctx context.Context) error
	// SetValue replaces the element's value and emits input and change
	// notifications so page scripts observe it.
	SetValue(ctx context.Context, value string) error
	// Submit submits the enclosing form, or presses Enter when there is none.
	Submit(ctx context.Context) error
}

// Viewport is the scroll state of a Document.
type Viewport struct {
	ScrollY        float64
	Height         float64
	DocumentHeight float64
}

// Document is the page surface the executor works against. Element lists
// are in document order.
type Document interface {
	Clickables(ctx context.Context) ([]Element, error)
	TextInputs(ctx context.Context) ([]Element, error)
	TextBlocks(ctx context.Context) ([]Element, error)
	Viewport(ctx context.Context) (Viewport, error)
	// ScrollTo scrolls smoothly so that top is the first visible pixel.
	ScrollTo(ctx context.Context, top float64) error
}

// Outliner is implemented by documents that can describe themselves.
type Outliner interface {
	Info(ctx context.Context) (domain.PageInfo, error)
	Outline(ctx context.Context) (domain.PageOutline, error)
}
