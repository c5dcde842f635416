package usecase

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"little-giant/internal/domain"
	"little-giant/internal/integrations/lmstudio"
	"little-giant/internal/provider"
)

type mockModel struct {
	content  string
	usage    domain.Usage
	err      error
	calls    int
	captured []domain.ChatMessage
}

func (m *mockModel) Chat(_ context.Context, msgs []domain.ChatMessage) (lmstudio.Completion, error) {
	m.calls++
	m.captured = msgs
	if m.err != nil {
		return lmstudio.Completion{}, m.err
	}
	return lmstudio.Completion{Content: m.content, Usage: m.usage}, nil
}

type mockHistory struct {
	history      []domain.HistoryMessage
	turns        int
	historyErr   error
	turnCountErr error
	appendErr    error
	clearErr     error
	appended     []domain.HistoryMessage
	cleared      string
	limit        int
}

func (m *mockHistory) Append(_ context.Context, msgs ...domain.HistoryMessage) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, msgs...)
	return nil
}

func (m *mockHistory) History(_ context.Context, _ string, limit int) ([]domain.HistoryMessage, error) {
	m.limit = limit
	return m.history, m.historyErr
}

func (m *mockHistory) Clear(_ context.Context, id string) error {
	m.cleared = id
	return m.clearErr
}

func (m *mockHistory) TurnCount(context.Context, string) (int, error) {
	return m.turns, m.turnCountErr
}

func newTestChat(t *testing.T, model ModelClient, h HistoryStore) *ChatService {
	t.Helper()
	svc, err := NewChatService(model, h, 20, 300)
	require.NoError(t, err)
	return svc
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, &mockHistory{}, 0, 0)
	require.Error(t, err)
	_, err = NewChatService(&mockModel{}, nil, 0, 0)
	require.Error(t, err)

	svc, err := NewChatService(&mockModel{}, &mockHistory{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, defaultMaxContext, svc.maxContextItems)
	require.Equal(t, defaultMaxMessage, svc.maxMessageLen)
}

func TestReply_HappyPathPersistsBothTurns(t *testing.T) {
	h := &mockHistory{}
	model := &mockModel{content: "  Hi there!  ", usage: domain.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}}
	svc := newTestChat(t, model, h)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return base }

	out, err := svc.Reply(context.Background(), ChatInput{Message: " hello ", ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Equal(t, "Hi there!", out.Reply)
	require.Equal(t, "conv-1", out.ConversationID)
	require.Equal(t, 5, out.Usage.TotalTokens)

	require.Len(t, h.appended, 2)
	require.Equal(t, domain.HistoryMessage{ConversationID: "conv-1", Role: domain.RoleUser, Content: "hello", CreatedAt: base}, h.appended[0])
	require.Equal(t, domain.RoleAssistant, h.appended[1].Role)
	require.Equal(t, "Hi there!", h.appended[1].Content)
	require.True(t, h.appended[1].CreatedAt.After(h.appended[0].CreatedAt))
}

func TestReply_NewConversationSkipsHistory(t *testing.T) {
	old := newUUID
	newUUID = func() string { return "generated-id" }
	t.Cleanup(func() { newUUID = old })

	h := &mockHistory{history: []domain.HistoryMessage{{Role: domain.RoleUser, Content: "stale"}}}
	model := &mockModel{content: "ok"}
	out, err := newTestChat(t, model, h).Reply(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "generated-id", out.ConversationID)
	require.Len(t, model.captured, 2)
	require.Zero(t, h.limit)
}

func TestReply_ReplaysHistoryInOrder(t *testing.T) {
	h := &mockHistory{history: []domain.HistoryMessage{
		{Role: domain.RoleUser, Content: "What is Go?"},
		{Role: domain.RoleAssistant, Content: "A programming language."},
		{Role: domain.RoleSystem, Content: "never replayed"},
		{Role: domain.RoleUser, Content: "   "},
	}}
	model := &mockModel{content: "ok"}
	_, err := newTestChat(t, model, h).Reply(context.Background(), ChatInput{Message: "Who made it?", ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Equal(t, 20, h.limit)

	require.Len(t, model.captured, 4)
	require.Equal(t, domain.RoleSystem, model.captured[0].Role)
	require.Contains(t, model.captured[0].Content, "Behavior Rules:")
	require.Equal(t, "What is Go?", model.captured[1].Content)
	require.Equal(t, "A programming language.", model.captured[2].Content)
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "Who made it?"}, model.captured[3])
}

func TestReply_ValidationErrors(t *testing.T) {
	model := &mockModel{content: "ok"}
	svc := newTestChat(t, model, &mockHistory{})

	_, err := svc.Reply(context.Background(), ChatInput{Message: "  "})
	expectError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Reply(context.Background(), ChatInput{Message: strings.Repeat("é", 301)})
	expectError(t, err, ErrorInvalidInput, "message_too_long")
	require.Zero(t, model.calls)

	_, err = svc.Reply(context.Background(), ChatInput{Message: strings.Repeat("é", 300)})
	require.NoError(t, err)
}

func TestReply_TurnLimit(t *testing.T) {
	model := &mockModel{content: "ok"}
	h := &mockHistory{turns: maxConversationTurns}
	_, err := newTestChat(t, model, h).Reply(context.Background(), ChatInput{Message: "hi", ConversationID: "conv-1"})
	expectError(t, err, ErrorInvalidInput, "conversation_turn_limit")
	require.Zero(t, model.calls)
	require.Empty(t, h.appended)
}

func TestReply_ModelErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   ErrorCode
		reason string
	}{
		{"unreachable", &lmstudio.ConnectionError{URL: "http://localhost:1234", Err: errors.New("refused")}, ErrorUpstream, "model_error"},
		{"rate limited", &lmstudio.ConnectionError{StatusCode: http.StatusTooManyRequests}, ErrorRateLimited, "model_rate_limited"},
		{"server error", &lmstudio.ConnectionError{StatusCode: http.StatusInternalServerError}, ErrorUpstream, "model_error"},
		{"malformed", &lmstudio.ProtocolError{Reason: "missing choices"}, ErrorUpstream, "model_malformed_response"},
		{"no provider", provider.ErrNoProvider, ErrorUpstream, "model_not_configured"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &mockHistory{}
			_, err := newTestChat(t, &mockModel{err: tc.err}, h).Reply(context.Background(), ChatInput{Message: "hi"})
			expectError(t, err, tc.code, tc.reason)
			require.Empty(t, h.appended)
		})
	}
}

func TestReply_HistoryErrors(t *testing.T) {
	model := &mockModel{content: "ok"}

	_, err := newTestChat(t, model, &mockHistory{historyErr: errors.New("db down")}).Reply(context.Background(), ChatInput{Message: "hi", ConversationID: "c"})
	expectError(t, err, ErrorInternal, "history_read_error")

	_, err = newTestChat(t, model, &mockHistory{turnCountErr: errors.New("db down")}).Reply(context.Background(), ChatInput{Message: "hi", ConversationID: "c"})
	expectError(t, err, ErrorInternal, "history_turn_count_error")

	_, err = newTestChat(t, model, &mockHistory{appendErr: errors.New("write failed")}).Reply(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorInternal, "history_write_error")
}

func TestHistoryAndClear(t *testing.T) {
	h := &mockHistory{turns: 2, history: []domain.HistoryMessage{{Role: domain.RoleUser, Content: "a"}}}
	svc := newTestChat(t, &mockModel{}, h)

	out, err := svc.History(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Equal(t, 2, out.Turns)
	require.Len(t, out.Messages, 1)
	require.Equal(t, 20, h.limit)

	empty, err := newTestChat(t, &mockModel{}, &mockHistory{}).History(context.Background(), "conv-2", 5)
	require.NoError(t, err)
	require.NotNil(t, empty.Messages)

	_, err = svc.History(context.Background(), " ", 5)
	expectError(t, err, ErrorInvalidInput, "missing_conversation_id")

	require.NoError(t, svc.ClearHistory(context.Background(), "conv-1"))
	require.Equal(t, "conv-1", h.cleared)

	h.clearErr = errors.New("boom")
	expectError(t, svc.ClearHistory(context.Background(), "conv-1"), ErrorInternal, "history_clear_error")
	expectError(t, svc.ClearHistory(context.Background(), ""), ErrorInvalidInput, "missing_conversation_id")
}

func TestHistory_CapsLimit(t *testing.T) {
	h := &mockHistory{}
	svc := newTestChat(t, &mockModel{}, h)

	_, err := svc.History(context.Background(), "conv-1", math.MaxInt)
	require.NoError(t, err)
	require.Equal(t, maxHistoryLimit, h.limit)

	_, err = svc.History(context.Background(), "conv-1", 7)
	require.NoError(t, err)
	require.Equal(t, 7, h.limit)
}

func TestError_Format(t *testing.T) {
	require.Equal(t, "usecase: INVALID_INPUT (empty_message)", newError(ErrorInvalidInput, "empty_message", nil).Error())
	err := newError(ErrorUpstream, "model_error", errors.New("refused"))
	require.Equal(t, "usecase: UPSTREAM_ERROR (model_error): refused", err.Error())
	require.EqualError(t, errors.Unwrap(err), "refused")
}
