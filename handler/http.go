package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"little-giant/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Server exposes the Router on a local HTTP listener.
type Server struct {
	router *Router
	ws     *wsServer
	logger *slog.Logger
}

func NewServer(router *Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: router, ws: newWSServer(router, logger), logger: logger}
}

// Handler returns the mux: POST /message, GET /ws and GET /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /message", s.handleMessage)
	mux.Handle("GET /ws", s.ws)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s.correlate(mux)
}

// handleMessage applies the WebSocket origin policy and requires a JSON
// content type, so browsers preflight cross-origin posts.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !allowedOrigin(r) {
		s.logger.Warn("message from foreign origin refused", "origin", r.Header.Get("Origin"), "correlation_id", CorrelationID(r.Context()))
		writeJSON(w, http.StatusForbidden, Response{Error: "origin not allowed", Code: string(usecase.ErrorInvalidInput)})
		return
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, Response{Error: "content type must be application/json", Code: string(usecase.ErrorInvalidInput)})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "invalid request body", Code: string(usecase.ErrorInvalidInput)})
		return
	}
	resp, status := s.router.RouteJSON(r.Context(), body)
	writeJSON(w, status, resp)
}

func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = newCorrelationID()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(withCorrelationID(r.Context(), id)))
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start), "correlation_id", id)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
