package pageaction

import "little-giant/internal/domain"

const (
	maxOutlineHeadings = 10
	maxHeadingText     = 100
	maxOutlineLinks    = 20
	maxLinkText        = 50
)

// BoundOutline trims an outline to the sizes reported to the side panel.
func BoundOutline(o domain.PageOutline) domain.PageOutline {
	if len(o.Headings) > maxOutlineHeadings {
		o.Headings = o.Headings[:maxOutlineHeadings]
	}
	for i := range o.Headings {
		o.Headings[i].Text = truncate(o.Headings[i].Text, maxHeadingText)
	}
	if len(o.Links) > maxOutlineLinks {
		o.Links = o.Links[:maxOutlineLinks]
	}
	for i := range o.Links {
		o.Links[i].Text = truncate(o.Links[i].Text, maxLinkText)
	}
	if o.Headings == nil {
		o.Headings = []domain.Heading{}
	}
	if o.Links == nil {
		o.Links = []domain.Link{}
	}
	return o
}
