package intent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"little-giant/internal/domain"
	"little-giant/internal/integrations/lmstudio"
)

// FallbackReasoning is the reasoning of the intent returned when
// classification fails for any reason.
const FallbackReasoning = "classification failed, defaulting to chat"

// ModelClient is the model surface the classifier needs.
type ModelClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (lmstudio.Completion, error)
}

// Classifier turns free text into an Intent. Classify never fails: chat is
// the fallback for every error.
type Classifier struct {
	client ModelClient
	logger *slog.Logger
}

func NewClassifier(client ModelClient, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{client: client, logger: logger}
}

// Fallback returns the intent used when classification fails.
func Fallback() domain.Intent {
	return domain.ChatIntent(FallbackReasoning)
}

func (c *Classifier) Classify(ctx context.Context, userMessage string) domain.Intent {
	message := strings.TrimSpace(userMessage)
	if message == "" {
		return domain.ChatIntent("empty message")
	}
	if c.client == nil {
		c.logger.Warn("intent classification skipped", "reason", "no model client")
		return Fallback()
	}

	completion, err := c.client.Chat(ctx, buildClassificationMessages(message))
	if err != nil {
		c.logger.Warn("intent classification failed", "stage", "model", "err", err)
		return Fallback()
	}
	in, err := ExtractIntent(completion.Content)
	if err != nil {
		c.logger.Warn("intent classification failed", "stage", "extract", "err", err)
		return Fallback()
	}

	out := Normalize(in)
	c.logger.Debug("intent classified", "action", out.Action, "url", out.URLString(), "target", out.TargetString())
	return out
}

var errUnopenableURL = errors.New("url is not an absolute http(s) URL")

// Normalize bounds a model-produced intent: URL actions get a usable http(s)
// URL or become chat, and chat never carries a URL.
func Normalize(in domain.Intent) domain.Intent {
	in.Action = domain.ParseAction(string(in.Action))
	switch {
	case in.Action.OpensURL():
		resolved, err := resolveURL(in)
		if err != nil {
			reason := "unusable url for " + string(in.Action)
			if in.Reasoning != "" {
				reason += ": " + in.Reasoning
			}
			return domain.ChatIntent(reason)
		}
		in.URL = &resolved
	default:
		in.URL = nil
	}
	return in
}

func resolveURL(in domain.Intent) (string, error) {
	raw := strings.TrimSpace(in.URLString())
	if raw == "" {
		switch in.Action {
		case domain.ActionNavigate:
			raw = SiteURL(firstNonEmpty(in.TargetString(), in.ValueString()))
		default:
			raw, _ = SearchURL(in.Action, firstNonEmpty(in.ValueString(), in.TargetString()))
		}
	} else if !strings.Contains(raw, "://") {
		raw = SiteURL(raw)
	}
	if !isOpenableURL(raw) {
		return "", errUnopenableURL
	}
	return raw, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
