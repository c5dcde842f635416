package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"little-giant/internal/usecase"
)

const (
	pingInterval = 15 * time.Second
	writeWait    = 5 * time.Second
)

type wsServer struct {
	router   *Router
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func newWSServer(router *Router, logger *slog.Logger) *wsServer {
	return &wsServer{
		router:   router,
		upgrader: websocket.Upgrader{CheckOrigin: allowedOrigin},
		logger:   logger,
	}
}

// allowedOrigin admits the extension itself and local pages.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "chrome-extension", "moz-extension":
		return true
	case "http", "https":
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	}
	return false
}

type wsSender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSender) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSender) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corrID := CorrelationID(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, http.Header{correlationHeader: []string{corrID}})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	sender := &wsSender{conn: conn}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		keepAlive(ctx, sender)
	}()

	s.logger.Info("websocket connected", "remote", r.RemoteAddr, "correlation_id", corrID)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "err", err, "correlation_id", corrID)
			}
			break
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = sender.send(Response{Error: "invalid request body", Code: string(usecase.ErrorInvalidInput)})
			continue
		}
		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			resp, _ := s.router.Route(ctx, req)
			if err := sender.send(resp); err != nil {
				s.logger.Warn("websocket write failed", "type", req.Type, "err", err, "correlation_id", corrID)
			}
		}(req)
	}
	cancel()
	wg.Wait()
	s.logger.Info("websocket disconnected", "remote", r.RemoteAddr, "correlation_id", corrID)
}

func keepAlive(ctx context.Context, sender *wsSender) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sender.ping(); err != nil {
				return
			}
		}
	}
}
