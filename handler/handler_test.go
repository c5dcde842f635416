package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"little-giant/internal/usecase"
)

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/message",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, deps Deps) *Handler {
	t.Helper()
	h, err := NewHandler(newTestRouter(t, deps), nil)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	c := &stubChat{out: usecase.ChatOutput{Reply: "hello", ConversationID: "conv-1"}}
	h := newTestHandler(t, Deps{Chat: c})

	resp, err := h.Handle(context.Background(), makeEvent(`{"type":"CHAT","message":"What can you do?","conversationId":"conv-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ChatInput{Message: "What can you do?", ConversationID: "conv-1"}, c.in)

	out := parseBody[Response](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, "hello", out.Message)
	require.Equal(t, "conv-1", out.ConversationID)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_InvalidBody(t *testing.T) {
	h := newTestHandler(t, Deps{})

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[Response](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Code)
}

func TestHandle_UnknownType(t *testing.T) {
	h := newTestHandler(t, Deps{})

	resp, err := h.Handle(context.Background(), makeEvent(`{"type":"WHATEVER"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `{"success":false,"error":"Unknown message type","code":"INVALID_INPUT"}`, resp.Body)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, Deps{})

	event := makeEvent(`{"type":"DEBUG_TEST"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
