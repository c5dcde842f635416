package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"little-giant/internal/dispatch"
	"little-giant/internal/domain"
)

type Classifier interface {
	Classify(ctx context.Context, userMessage string) domain.Intent
}

// Assistant runs one user turn: classify the text, then dispatch the intent.
type Assistant struct {
	classifier Classifier
	chat       *ChatService
	opener     dispatch.URLOpener
	actor      dispatch.PageActor
	logger     *slog.Logger
}

type TurnInput struct {
	Message        string
	ConversationID string
}

type TurnOutput struct {
	Event          dispatch.Event
	ConversationID string
	Usage          domain.Usage
}

func NewAssistant(classifier Classifier, chat *ChatService, opener dispatch.URLOpener, actor dispatch.PageActor, logger *slog.Logger) (*Assistant, error) {
	if classifier == nil {
		return nil, errors.New("usecase: classifier must not be nil")
	}
	if chat == nil {
		return nil, errors.New("usecase: chat service must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{classifier: classifier, chat: chat, opener: opener, actor: actor, logger: logger}, nil
}

func (a *Assistant) Turn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	message, err := a.chat.validMessage(in.Message)
	if err != nil {
		return TurnOutput{}, err
	}
	out := TurnOutput{ConversationID: strings.TrimSpace(in.ConversationID)}

	intent := a.classifier.Classify(ctx, message)
	a.logger.Info("turn classified", "action", intent.Action, "reasoning", intent.Reasoning)

	// Chat replies share the turn's conversation so history stays threaded.
	chatter := dispatch.ChatFunc(func(ctx context.Context, m string) (string, error) {
		reply, err := a.chat.Reply(ctx, ChatInput{Message: m, ConversationID: out.ConversationID})
		if err != nil {
			return "", err
		}
		out.ConversationID = reply.ConversationID
		out.Usage = reply.Usage
		return reply.Reply, nil
	})
	out.Event = dispatch.New(a.opener, a.actor, chatter, a.logger).Dispatch(ctx, intent, message)
	return out, nil
}
