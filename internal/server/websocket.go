package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/gh-activity-agent/internal/observability"
	"github.com/lexiqai/gh-activity-agent/internal/stream"
)

const (
	wsRequestTimeout = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

// wsSink writes each line as one JSON text frame
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Emit(l stream.Line) error {
	b, err := json.Marshal(l)
	if err != nil {
		return &stream.EncodeError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// originAllowed accepts requests without an Origin header (non-browser clients)
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket returns the WebSocket chat handler. The client sends one
// chat request as a JSON text frame and receives the same lines the POST
// endpoint streams, one per frame, followed by a close frame.
func (s *ChatService) HandleWebSocket(allowedOrigins []string) http.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		logger := s.requestLogger(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		conn.SetReadLimit(MaxRequestBytes)
		_ = conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Warn().Err(err).Msg("No chat request received on WebSocket")
			return
		}

		req, err := DecodeChatRequest(bytes.NewReader(data))
		if err != nil {
			logger.Warn().Err(err).Msg("Rejected chat request")
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			closeWS(conn, websocket.ClosePolicyViolation, "invalid request")
			return
		}
		sessionID := req.ResolveSessionID()
		logger = logger.With().Str("session_id", sessionID).Logger()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// A read error means the client went away; stop the run.
		_ = conn.SetReadDeadline(time.Time{})
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		metrics := observability.NewChatMetrics("websocket")
		logger.Info().Int("messages", len(req.Messages)).Msg("Chat stream started")

		sum, err := s.Serve(ctx, req, sessionID, &wsSink{conn: conn})
		outcome := finishOutcome(sum, err)
		metrics.End(outcome)
		logChatEnd(logger, sum, err, outcome)

		if err == nil {
			closeWS(conn, websocket.CloseNormalClosure, outcome)
		}
	}
}

func closeWS(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
