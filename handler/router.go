// Package handler routes side-panel messages to the coordinator's use cases
// and serves them over HTTP, WebSocket and API Gateway.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"little-giant/internal/dispatch"
	"little-giant/internal/domain"
	"little-giant/internal/pageaction"
	"little-giant/internal/usecase"
)

// Message types understood by the router.
const (
	TypeClassifyIntent    = "CLASSIFY_INTENT"
	TypePerformAction     = "PERFORM_ACTION"
	TypePerformPageAction = "PERFORM_PAGE_ACTION"
	TypeOpenURL           = "OPEN_URL"
	TypeUserTurn          = "USER_TURN"
	TypeChat              = "CHAT"
	TypeTestConnection    = "TEST_CONNECTION"
	TypeDebugTest         = "DEBUG_TEST"
	TypeGetPageInfo       = "GET_PAGE_INFO"
	TypeAnalyzePage       = "ANALYZE_PAGE"
	TypeSummarizePage     = "SUMMARIZE_PAGE"
	TypeGetHistory        = "GET_HISTORY"
	TypeClearHistory      = "CLEAR_HISTORY"
)

const unknownTypeMessage = "Unknown message type"

type Classifier interface {
	Classify(ctx context.Context, userMessage string) domain.Intent
}

// Browser is the active-tab surface.
type Browser interface {
	OpenURL(ctx context.Context, url string) (domain.TabHandle, error)
	Perform(ctx context.Context, in domain.Intent) (domain.PageActionResult, error)
	Info(ctx context.Context) (domain.PageInfo, error)
	Outline(ctx context.Context) (domain.PageOutline, error)
}

type ChatUseCase interface {
	Reply(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	History(ctx context.Context, conversationID string, limit int) (usecase.HistoryOutput, error)
	ClearHistory(ctx context.Context, conversationID string) error
}

type TurnUseCase interface {
	Turn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

type SummarizeUseCase interface {
	Summarize(ctx context.Context) (usecase.SummaryOutput, error)
}

type ConnectionTester interface {
	TestConnection(ctx context.Context) (bool, error)
}

// Deps are the router's collaborators. Only Classifier is required; a
// message whose collaborator is missing fails with a visible error.
type Deps struct {
	Classifier Classifier
	Browser    Browser
	Chat       ChatUseCase
	Assistant  TurnUseCase
	Summarizer SummarizeUseCase
	Connection ConnectionTester
}

// Request is one side-panel message. Data carries the older
// {type, data: {message}} shape.
type Request struct {
	Type           string         `json:"type"`
	ID             string         `json:"id,omitempty"`
	Message        string         `json:"message,omitempty"`
	Intent         *domain.Intent `json:"intent,omitempty"`
	URL            string         `json:"url,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	Data           *requestData   `json:"data,omitempty"`
}

type requestData struct {
	Message string `json:"message"`
}

func (r Request) text() string {
	if strings.TrimSpace(r.Message) == "" && r.Data != nil {
		return r.Data.Message
	}
	return r.Message
}

// Response is the reply to one Request. Fields not relevant to the message
// type are omitted.
type Response struct {
	ID             string                  `json:"id,omitempty"`
	Success        bool                    `json:"success"`
	Message        string                  `json:"message,omitempty"`
	Error          string                  `json:"error,omitempty"`
	Code           string                  `json:"code,omitempty"`
	Intent         *domain.Intent          `json:"intent,omitempty"`
	Tab            *domain.TabHandle       `json:"tab,omitempty"`
	Event          *dispatch.Event         `json:"event,omitempty"`
	ConversationID string                  `json:"conversationId,omitempty"`
	Usage          *domain.Usage           `json:"usage,omitempty"`
	Provider       string                  `json:"provider,omitempty"`
	Page           *domain.PageInfo        `json:"page,omitempty"`
	Outline        *domain.PageOutline     `json:"outline,omitempty"`
	History        []domain.HistoryMessage `json:"history,omitempty"`
	Turns          int                     `json:"turns,omitempty"`
}

type route func(ctx context.Context, req Request) (Response, int)

// Router maps message types to use cases.
type Router struct {
	deps   Deps
	routes map[string]route
	logger *slog.Logger
}

func NewRouter(deps Deps, logger *slog.Logger) (*Router, error) {
	if deps.Classifier == nil {
		return nil, errors.New("handler: classifier must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{deps: deps, logger: logger}
	r.routes = map[string]route{
		TypeClassifyIntent:    r.classify,
		TypePerformAction:     r.performAction,
		TypePerformPageAction: r.performAction,
		TypeOpenURL:           r.openURL,
		TypeUserTurn:          r.userTurn,
		TypeChat:              r.chat,
		TypeTestConnection:    r.testConnection,
		TypeDebugTest:         r.debugTest,
		TypeGetPageInfo:       r.pageInfo,
		TypeAnalyzePage:       r.analyzePage,
		TypeSummarizePage:     r.summarizePage,
		TypeGetHistory:        r.history,
		TypeClearHistory:      r.clearHistory,
	}
	return r, nil
}

// Route answers one request with a response and the HTTP status that goes
// with it.
func (r *Router) Route(ctx context.Context, req Request) (Response, int) {
	h, ok := r.routes[strings.ToUpper(strings.TrimSpace(req.Type))]
	if !ok {
		return Response{ID: req.ID, Error: unknownTypeMessage, Code: string(usecase.ErrorInvalidInput)}, http.StatusBadRequest
	}
	resp, status := h(ctx, req)
	resp.ID = req.ID
	return resp, status
}

// RouteJSON decodes body and routes it. Malformed bodies are INVALID_INPUT.
func (r *Router) RouteJSON(ctx context.Context, body []byte) (Response, int) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Response{Error: "invalid request body", Code: string(usecase.ErrorInvalidInput)}, http.StatusBadRequest
	}
	return r.Route(ctx, req)
}

func (r *Router) classify(ctx context.Context, req Request) (Response, int) {
	in := r.deps.Classifier.Classify(ctx, req.text())
	return Response{Success: true, Intent: &in}, http.StatusOK
}

func (r *Router) performAction(ctx context.Context, req Request) (Response, int) {
	if req.Intent == nil {
		return Response{Error: "intent is required", Code: string(usecase.ErrorInvalidInput)}, http.StatusBadRequest
	}
	if r.deps.Browser == nil {
		return noActiveTab()
	}
	res, err := r.deps.Browser.Perform(ctx, *req.Intent)
	if err != nil {
		return r.failure(ctx, "perform action", err)
	}
	return Response{Success: res.Success, Message: res.Message, Error: res.Error}, http.StatusOK
}

func (r *Router) openURL(ctx context.Context, req Request) (Response, int) {
	u := strings.TrimSpace(req.URL)
	if u == "" {
		return Response{Error: "url is required", Code: string(usecase.ErrorInvalidInput)}, http.StatusBadRequest
	}
	if r.deps.Browser == nil {
		return noActiveTab()
	}
	tab, err := r.deps.Browser.OpenURL(ctx, u)
	if err != nil {
		return r.failure(ctx, "open url", err)
	}
	return Response{Success: true, Tab: &tab}, http.StatusOK
}

func (r *Router) userTurn(ctx context.Context, req Request) (Response, int) {
	if r.deps.Assistant == nil {
		return unavailable("assistant")
	}
	out, err := r.deps.Assistant.Turn(ctx, usecase.TurnInput{Message: req.text(), ConversationID: req.ConversationID})
	if err != nil {
		return r.failure(ctx, "user turn", err)
	}
	resp := Response{
		Success:        out.Event.Kind != dispatch.EventError,
		Error:          out.Event.Error,
		Event:          &out.Event,
		ConversationID: out.ConversationID,
	}
	if out.Usage != (domain.Usage{}) {
		resp.Usage = &out.Usage
	}
	return resp, http.StatusOK
}

func (r *Router) chat(ctx context.Context, req Request) (Response, int) {
	if r.deps.Chat == nil {
		return unavailable("chat")
	}
	out, err := r.deps.Chat.Reply(ctx, usecase.ChatInput{Message: req.text(), ConversationID: req.ConversationID})
	if err != nil {
		return r.failure(ctx, "chat", err)
	}
	return Response{
		Success:        true,
		Message:        out.Reply,
		ConversationID: out.ConversationID,
		Usage:          &out.Usage,
		Provider:       "local",
	}, http.StatusOK
}

func (r *Router) testConnection(ctx context.Context, _ Request) (Response, int) {
	if r.deps.Connection == nil {
		return unavailable("model provider")
	}
	if _, err := r.deps.Connection.TestConnection(ctx); err != nil {
		r.logger.WarnContext(ctx, "connection test failed", "err", err, "correlation_id", CorrelationID(ctx))
		return Response{Error: err.Error(), Code: string(usecase.ErrorUpstream)}, http.StatusBadGateway
	}
	return Response{Success: true, Message: "Connected to LM Studio", Provider: "local"}, http.StatusOK
}

func (r *Router) debugTest(context.Context, Request) (Response, int) {
	return Response{Success: true, Message: "Coordinator responding!"}, http.StatusOK
}

func (r *Router) pageInfo(ctx context.Context, _ Request) (Response, int) {
	if r.deps.Browser == nil {
		return noActiveTab()
	}
	info, err := r.deps.Browser.Info(ctx)
	if err != nil {
		return r.failure(ctx, "page info", err)
	}
	return Response{Success: true, Page: &info}, http.StatusOK
}

func (r *Router) analyzePage(ctx context.Context, _ Request) (Response, int) {
	if r.deps.Browser == nil {
		return noActiveTab()
	}
	outline, err := r.deps.Browser.Outline(ctx)
	if err != nil {
		return r.failure(ctx, "analyze page", err)
	}
	return Response{Success: true, Outline: &outline}, http.StatusOK
}

func (r *Router) summarizePage(ctx context.Context, _ Request) (Response, int) {
	if r.deps.Summarizer == nil {
		return unavailable("summarizer")
	}
	out, err := r.deps.Summarizer.Summarize(ctx)
	if err != nil {
		return r.failure(ctx, "summarize page", err)
	}
	return Response{Success: true, Message: out.Summary, Outline: &out.Outline, Usage: &out.Usage}, http.StatusOK
}

func (r *Router) history(ctx context.Context, req Request) (Response, int) {
	if r.deps.Chat == nil {
		return unavailable("history")
	}
	out, err := r.deps.Chat.History(ctx, req.ConversationID, req.Limit)
	if err != nil {
		return r.failure(ctx, "get history", err)
	}
	return Response{Success: true, ConversationID: out.ConversationID, History: out.Messages, Turns: out.Turns}, http.StatusOK
}

func (r *Router) clearHistory(ctx context.Context, req Request) (Response, int) {
	if r.deps.Chat == nil {
		return unavailable("history")
	}
	if err := r.deps.Chat.ClearHistory(ctx, req.ConversationID); err != nil {
		return r.failure(ctx, "clear history", err)
	}
	return Response{Success: true, ConversationID: strings.TrimSpace(req.ConversationID)}, http.StatusOK
}

// failure maps an error to a coded response. Use case errors keep their
// code; a missing tab is NO_ACTIVE_TAB; anything else is INTERNAL_ERROR.
func (r *Router) failure(ctx context.Context, op string, err error) (Response, int) {
	code := usecase.ErrorInternal
	msg := "internal error"
	var ucErr *usecase.Error
	switch {
	case errors.As(err, &ucErr):
		code = ucErr.Code
		msg = visibleMessage(ucErr)
	case errors.Is(err, pageaction.ErrNoActiveTab):
		code = usecase.ErrorNoActiveTab
		msg = pageaction.NoActiveTabMessage
	}
	r.logger.WarnContext(ctx, "request failed", "op", op, "code", code, "err", err, "correlation_id", CorrelationID(ctx))
	return Response{Error: msg, Code: string(code)}, statusFor(code)
}

func visibleMessage(err *usecase.Error) string {
	switch err.Code {
	case usecase.ErrorNoActiveTab:
		return pageaction.NoActiveTabMessage
	case usecase.ErrorInternal:
		return "internal error"
	}
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Reason
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	case usecase.ErrorNoActiveTab:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func noActiveTab() (Response, int) {
	return Response{Error: pageaction.NoActiveTabMessage, Code: string(usecase.ErrorNoActiveTab)}, http.StatusConflict
}

func unavailable(what string) (Response, int) {
	return Response{Error: what + " is not available", Code: string(usecase.ErrorInternal)}, http.StatusServiceUnavailable
}
