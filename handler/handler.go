package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// Handler adapts the Router to API Gateway proxy events.
type Handler struct {
	router *Router
	logger *slog.Logger
}

func NewHandler(router *Router, logger *slog.Logger) (*Handler, error) {
	if router == nil {
		return nil, errors.New("handler: router must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{router: router, logger: logger}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	ctx = withCorrelationID(ctx, corrID)

	resp, status := h.router.RouteJSON(ctx, []byte(req.Body))
	body, err := json.Marshal(resp)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode response", "err", err, "correlation_id", corrID)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"internal error","code":"INTERNAL_ERROR"}`)
	}
	h.logger.InfoContext(ctx, "lambda request", "status", status, "correlation_id", corrID)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}, nil
}
