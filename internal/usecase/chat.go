package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"little-giant/internal/domain"
	"little-giant/internal/integrations/lmstudio"
	"little-giant/internal/provider"
)

const (
	defaultMaxContext    = 20
	defaultMaxMessage    = 4000
	maxConversationTurns = 100
	// A conversation never holds more than a question and an answer per turn.
	maxHistoryLimit = 2 * maxConversationTurns
)

type ModelClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (lmstudio.Completion, error)
}

type HistoryStore interface {
	Append(ctx context.Context, msgs ...domain.HistoryMessage) error
	History(ctx context.Context, conversationID string, limit int) ([]domain.HistoryMessage, error)
	Clear(ctx context.Context, conversationID string) error
	TurnCount(ctx context.Context, conversationID string) (int, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService answers open-ended chat with the conversation so far as
// context.
type ChatService struct {
	model           ModelClient
	history         HistoryStore
	maxContextItems int
	maxMessageLen   int
	now             func() time.Time
}

type ChatInput struct {
	Message        string
	ConversationID string
}

type ChatOutput struct {
	Reply          string
	Usage          domain.Usage
	ConversationID string
}

type HistoryOutput struct {
	ConversationID string
	Messages       []domain.HistoryMessage
	Turns          int
}

func NewChatService(model ModelClient, history HistoryStore, maxContextItems, maxMessageLen int) (*ChatService, error) {
	if model == nil {
		return nil, errors.New("usecase: model client must not be nil")
	}
	if history == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if maxContextItems <= 0 {
		maxContextItems = defaultMaxContext
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	return &ChatService{
		model:           model,
		history:         history,
		maxContextItems: maxContextItems,
		maxMessageLen:   maxMessageLen,
		now:             time.Now,
	}, nil
}

func (s *ChatService) Reply(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message, err := s.validMessage(in.Message)
	if err != nil {
		return ChatOutput{}, err
	}
	convID := strings.TrimSpace(in.ConversationID)
	resumed := convID != ""
	if !resumed {
		convID = newUUID()
	}

	var history []domain.HistoryMessage
	if resumed {
		turns, err := s.history.TurnCount(ctx, convID)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "history_turn_count_error", err)
		}
		if turns >= maxConversationTurns {
			return ChatOutput{}, newError(ErrorInvalidInput, "conversation_turn_limit", nil)
		}
		history, err = s.history.History(ctx, convID, s.maxContextItems)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "history_read_error", err)
		}
	}

	askedAt := s.now()
	completion, err := s.model.Chat(ctx, buildChatMessages(history, message))
	if err != nil {
		return ChatOutput{}, modelError(err)
	}
	reply := strings.TrimSpace(completion.Content)

	answeredAt := s.now()
	if !answeredAt.After(askedAt) {
		answeredAt = askedAt.Add(time.Microsecond)
	}
	if err := s.history.Append(ctx,
		domain.HistoryMessage{ConversationID: convID, Role: domain.RoleUser, Content: message, CreatedAt: askedAt},
		domain.HistoryMessage{ConversationID: convID, Role: domain.RoleAssistant, Content: reply, CreatedAt: answeredAt},
	); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "history_write_error", err)
	}

	return ChatOutput{
		Reply:          reply,
		Usage:          completion.Usage,
		ConversationID: convID,
	}, nil
}

// History returns up to limit messages of a conversation, oldest first.
// limit is capped at the most messages a conversation can hold.
func (s *ChatService) History(ctx context.Context, conversationID string, limit int) (HistoryOutput, error) {
	convID := strings.TrimSpace(conversationID)
	if convID == "" {
		return HistoryOutput{}, newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	if limit <= 0 {
		limit = s.maxContextItems
	}
	limit = min(limit, maxHistoryLimit)
	msgs, err := s.history.History(ctx, convID, limit)
	if err != nil {
		return HistoryOutput{}, newError(ErrorInternal, "history_read_error", err)
	}
	turns, err := s.history.TurnCount(ctx, convID)
	if err != nil {
		return HistoryOutput{}, newError(ErrorInternal, "history_turn_count_error", err)
	}
	if msgs == nil {
		msgs = []domain.HistoryMessage{}
	}
	return HistoryOutput{ConversationID: convID, Messages: msgs, Turns: turns}, nil
}

func (s *ChatService) ClearHistory(ctx context.Context, conversationID string) error {
	convID := strings.TrimSpace(conversationID)
	if convID == "" {
		return newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	if err := s.history.Clear(ctx, convID); err != nil {
		return newError(ErrorInternal, "history_clear_error", err)
	}
	return nil
}

func (s *ChatService) validMessage(raw string) (string, error) {
	message := strings.TrimSpace(raw)
	if message == "" {
		return "", newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return "", newError(ErrorInvalidInput, "message_too_long", nil)
	}
	return message, nil
}

func modelError(err error) *Error {
	if errors.Is(err, provider.ErrNoProvider) {
		return newError(ErrorUpstream, "model_not_configured", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "model_rate_limited", err)
	}
	var protoErr *lmstudio.ProtocolError
	if errors.As(err, &protoErr) {
		return newError(ErrorUpstream, "model_malformed_response", err)
	}
	return newError(ErrorUpstream, "model_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	code := statusErr.HTTPStatusCode()
	return code, code != 0
}

var newUUID = func() string {
	return uuid.NewString()
}
