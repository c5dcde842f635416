package pageaction

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"little-giant/internal/domain"
)

const (
	snapshotLineHeight     = 40.0
	snapshotViewportHeight = 800.0
)

// SnapshotEvent records one effect the executor had on a Snapshot.
type SnapshotEvent struct {
	Kind   string // click, input, change, submit, keypress, scroll
	Tag    string
	Text   string
	Value  string
	Offset float64
}

// Snapshot is a Document backed by parsed HTML. It applies no scripts; it
// records every effect so a dry run can report what would happen. Each block
// element is laid out one line below the previous one.
type Snapshot struct {
	mu       sync.Mutex
	root     *html.Node
	pageURL  string
	viewport float64
	height   float64
	scrollY  float64
	offsets  map[*html.Node]float64
	labels   map[string]string
	values   map[*html.Node]string
	events   []SnapshotEvent
}

type SnapshotOption func(*Snapshot)

// WithViewportHeight sets the visible height in pixels.
func WithViewportHeight(h float64) SnapshotOption {
	return func(s *Snapshot) {
		s.viewport = h
	}
}

// WithDocumentHeight overrides the laid-out document height.
func WithDocumentHeight(h float64) SnapshotOption {
	return func(s *Snapshot) {
		s.height = h
	}
}

// WithPageURL sets the URL the snapshot was taken from.
func WithPageURL(u string) SnapshotOption {
	return func(s *Snapshot) {
		s.pageURL = u
	}
}

// NewSnapshot parses an HTML document.
func NewSnapshot(r io.Reader, opts ...SnapshotOption) (*Snapshot, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("pageaction: parse html: %w", err)
	}
	s := &Snapshot{
		root:     root,
		viewport: snapshotViewportHeight,
		offsets:  make(map[*html.Node]float64),
		labels:   make(map[string]string),
		values:   make(map[*html.Node]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.layout()
	return s, nil
}

// ParseSnapshot is NewSnapshot over a string.
func ParseSnapshot(doc string, opts ...SnapshotOption) (*Snapshot, error) {
	return NewSnapshot(strings.NewReader(doc), opts...)
}

func (s *Snapshot) layout() {
	line := 0
	walk(s.root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		s.offsets[n] = float64(line) * snapshotLineHeight
		if isBlock(n) {
			line++
		}
		if n.DataAtom == atom.Label {
			if id := attr(n, "for"); id != "" {
				s.labels[id] = textContent(n)
			}
		}
	})
	if s.height == 0 {
		s.height = max(float64(line)*snapshotLineHeight, s.viewport)
	}
}

// Events returns a copy of the recorded effects.
func (s *Snapshot) Events() []SnapshotEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SnapshotEvent(nil), s.events...)
}

// Value returns the current value of the first text input, in document
// order, whose label, placeholder or aria-label contains needle.
func (s *Snapshot) Value(needle string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle = normalizeText(needle)
	var (
		value string
		found bool
	)
	walk(s.root, func(n *html.Node) {
		if found || n.Type != html.ElementNode || !isTextInput(n) || isHidden(n) {
			return
		}
		info := s.describe(n)
		for _, f := range []string{info.Label, info.Placeholder, info.AriaLabel} {
			if f != "" && strings.Contains(normalizeText(f), needle) {
				value, found = s.values[n], true
				return
			}
		}
	})
	return value
}

func (s *Snapshot) record(ev SnapshotEvent) {
	s.events = append(s.events, ev)
}

func (s *Snapshot) Clickables(context.Context) ([]Element, error) {
	return s.collect(isClickable), nil
}

func (s *Snapshot) TextInputs(context.Context) ([]Element, error) {
	return s.collect(isTextInput), nil
}

func (s *Snapshot) TextBlocks(context.Context) ([]Element, error) {
	return s.collect(isTextBlock), nil
}

func (s *Snapshot) Viewport(context.Context) (Viewport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Viewport{ScrollY: s.scrollY, Height: s.viewport, DocumentHeight: s.height}, nil
}

// ScrollTo clamps like a browser does: the last reachable position shows the
// final viewport of the document.
func (s *Snapshot) ScrollTo(_ context.Context, top float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollTo(top)
	return nil
}

func (s *Snapshot) scrollTo(top float64) {
	s.scrollY = min(max(0, top), max(0, s.height-s.viewport))
	s.record(SnapshotEvent{Kind: "scroll", Offset: s.scrollY})
}

func (s *Snapshot) Info(context.Context) (domain.PageInfo, error) {
	host := ""
	if u, err := url.Parse(s.pageURL); err == nil {
		host = u.Hostname()
	}
	return domain.PageInfo{
		URL:       s.pageURL,
		Title:     s.title(),
		Domain:    host,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

func (s *Snapshot) Outline(context.Context) (domain.PageOutline, error) {
	out := domain.PageOutline{
		URL:       s.pageURL,
		Title:     s.title(),
		Timestamp: time.Now().UnixMilli(),
	}
	walk(s.root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3:
			out.Headings = append(out.Headings, domain.Heading{Level: strings.ToUpper(n.Data), Text: textContent(n)})
		case atom.A:
			if href, ok := attrOK(n, "href"); ok {
				out.Links = append(out.Links, domain.Link{Text: textContent(n), Href: s.resolve(href)})
			}
		case atom.Form:
			out.FormCount++
		case atom.Img:
			out.ImageCount++
		}
	})
	return BoundOutline(out), nil
}

func (s *Snapshot) resolve(href string) string {
	base, err := url.Parse(s.pageURL)
	if err != nil || s.pageURL == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func (s *Snapshot) title() string {
	var title string
	walk(s.root, func(n *html.Node) {
		if title == "" && n.Type == html.ElementNode && n.DataAtom == atom.Title {
			title = textContent(n)
		}
	})
	return title
}

func (s *Snapshot) collect(keep func(*html.Node) bool) []Element {
	var out []Element
	walk(s.root, func(n *html.Node) {
		if n.Type == html.ElementNode && keep(n) && !isHidden(n) {
			out = append(out, &snapshotElement{doc: s, node: n})
		}
	})
	return out
}

func (s *Snapshot) describe(n *html.Node) ElementInfo {
	info := ElementInfo{
		Tag:         n.Data,
		Text:        textContent(n),
		AriaLabel:   attr(n, "aria-label"),
		Title:       attr(n, "title"),
		Placeholder: attr(n, "placeholder"),
	}
	if n.DataAtom == atom.Input && info.Text == "" {
		switch strings.ToLower(attr(n, "type")) {
		case "button", "submit", "reset":
			info.Text = attr(n, "value")
		}
	}
	if id := attr(n, "id"); id != "" {
		info.Label = s.labels[id]
	}
	if info.Label == "" {
		for p := n.Parent; p != nil; p = p.Parent {
			if p.Type == html.ElementNode && p.DataAtom == atom.Label {
				info.Label = textContent(p)
				break
			}
		}
	}
	return info
}

type snapshotElement struct {
	doc  *Snapshot
	node *html.Node
}

func (e *snapshotElement) Describe(context.Context) (ElementInfo, error) {
	return e.doc.describe(e.node), nil
}

func (e *snapshotElement) ScrollIntoView(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.scrollTo(e.doc.offsets[e.node] - e.doc.viewport/2)
	return nil
}

func (e *snapshotElement) Click(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.record(SnapshotEvent{Kind: "click", Tag: e.node.Data, Text: e.doc.describe(e.node).Text, Offset: e.doc.offsets[e.node]})
	return nil
}

func (e *snapshotElement) SetValue(_ context.Context, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.values[e.node] = value
	e.doc.record(SnapshotEvent{Kind: "input", Tag: e.node.Data, Value: value})
	e.doc.record(SnapshotEvent{Kind: "change", Tag: e.node.Data, Value: value})
	return nil
}

func (e *snapshotElement) Submit(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Form {
			e.doc.record(SnapshotEvent{Kind: "submit", Tag: "form", Value: e.doc.values[e.node]})
			return nil
		}
	}
	e.doc.record(SnapshotEvent{Kind: "keypress", Tag: e.node.Data, Value: "Enter"})
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode && !insideInvisible(c, n) {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func insideInvisible(c, stop *html.Node) bool {
	for p := c.Parent; p != nil && p != stop.Parent; p = p.Parent {
		if p.Type == html.ElementNode && (p.DataAtom == atom.Script || p.DataAtom == atom.Style || p.DataAtom == atom.Noscript) {
			return true
		}
	}
	return false
}

func isHidden(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if _, ok := attrOK(p, "hidden"); ok {
			return true
		}
		if strings.EqualFold(attr(p, "aria-hidden"), "true") {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(attr(p, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func isClickable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Button, atom.A:
		return true
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "button", "submit", "reset":
			return true
		}
	}
	return strings.EqualFold(attr(n, "role"), "button")
}

var textInputTypes = map[string]bool{
	"": true, "text": true, "search": true, "email": true, "url": true, "tel": true, "password": true, "number": true,
}

func isTextInput(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		return textInputTypes[strings.ToLower(attr(n, "type"))]
	}
	if ce, ok := attrOK(n, "contenteditable"); ok {
		return ce == "" || strings.EqualFold(ce, "true")
	}
	return false
}

func isTextBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.P, atom.Li, atom.A, atom.Button, atom.Label, atom.Td, atom.Th,
		atom.Dt, atom.Dd, atom.Blockquote, atom.Figcaption, atom.Summary:
		return true
	}
	return false
}

func isBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Nav, atom.Main, atom.Aside,
		atom.Form, atom.Table, atom.Tr, atom.Ul, atom.Ol, atom.Pre, atom.Hr, atom.Img, atom.Input, atom.Textarea:
		return true
	}
	return isTextBlock(n) && n.DataAtom != atom.A && n.DataAtom != atom.Button && n.DataAtom != atom.Label
}
