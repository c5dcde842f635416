package usecase

import (
	"context"
	"errors"
	"strings"

	"little-giant/internal/domain"
	"little-giant/internal/pageaction"
)

// PageReader exposes the active tab to use cases.
type PageReader interface {
	Outline(ctx context.Context) (domain.PageOutline, error)
	Text(ctx context.Context) (string, error)
}

// SummarizeService asks the model to summarise the active page from its
// outline and visible text.
type SummarizeService struct {
	model ModelClient
	page  PageReader
}

type SummaryOutput struct {
	Summary string
	Outline domain.PageOutline
	Usage   domain.Usage
}

func NewSummarizeService(model ModelClient, page PageReader) (*SummarizeService, error) {
	if model == nil {
		return nil, errors.New("usecase: model client must not be nil")
	}
	if page == nil {
		return nil, errors.New("usecase: page reader must not be nil")
	}
	return &SummarizeService{model: model, page: page}, nil
}

func (s *SummarizeService) Summarize(ctx context.Context) (SummaryOutput, error) {
	outline, err := s.page.Outline(ctx)
	if err != nil {
		return SummaryOutput{}, pageError("page_outline_error", err)
	}
	text, err := s.page.Text(ctx)
	if err != nil {
		return SummaryOutput{}, pageError("page_text_error", err)
	}
	completion, err := s.model.Chat(ctx, buildSummaryMessages(outline, text))
	if err != nil {
		return SummaryOutput{}, modelError(err)
	}
	return SummaryOutput{
		Summary: strings.TrimSpace(completion.Content),
		Outline: outline,
		Usage:   completion.Usage,
	}, nil
}

func pageError(reason string, err error) *Error {
	if errors.Is(err, pageaction.ErrNoActiveTab) {
		return newError(ErrorNoActiveTab, "no_active_tab", err)
	}
	return newError(ErrorInternal, reason, err)
}
