// Package server exposes the agent over HTTP: a streaming NDJSON endpoint,
// a WebSocket endpoint carrying the same lines, and the tool catalog.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/lexiqai/gh-activity-agent/internal/agent"
	"github.com/lexiqai/gh-activity-agent/internal/observability"
	"github.com/lexiqai/gh-activity-agent/internal/stream"
	"github.com/lexiqai/gh-activity-agent/internal/tools"
)

const (
	contentTypeNDJSON = "application/x-ndjson"
	contentTypeSSE    = "text/event-stream"
)

// Agent starts a run over a conversation.
type Agent interface {
	Stream(ctx context.Context, thread agent.Thread) *agent.Stream
}

// ChatService runs one agent conversation per request and streams the
// translated lines to a sink.
type ChatService struct {
	agent      Agent
	translator *stream.Translator
	logger     zerolog.Logger
}

// NewChatService creates a chat service
func NewChatService(a Agent, translator *stream.Translator, logger zerolog.Logger) *ChatService {
	return &ChatService{agent: a, translator: translator, logger: logger}
}

// Serve runs the agent for req and writes lines to sink until the final
// answer, an upstream failure, a sink failure or cancellation of ctx.
// The agent goroutine is stopped before Serve returns.
func (s *ChatService) Serve(ctx context.Context, req *ChatRequest, sessionID string, sink stream.Sink) (stream.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := s.agent.Stream(ctx, req.Thread(sessionID))
	return s.translator.WithSteps(req.ShowIntermediateSteps).Run(ctx, run, sink)
}

// HandleAnalyze returns the POST handler streaming NDJSON lines
func (s *ChatService) HandleAnalyze() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := s.requestLogger(r)

		req, err := DecodeChatRequest(r.Body)
		if err != nil {
			logger.Warn().Err(err).Msg("Rejected chat request")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sessionID := req.ResolveSessionID()
		logger = logger.With().Str("session_id", sessionID).Logger()

		contentType := contentTypeNDJSON
		if strings.Contains(r.Header.Get("Accept"), contentTypeSSE) {
			contentType = contentTypeSSE
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.Header().Set("X-Session-ID", sessionID)
		w.WriteHeader(http.StatusOK)

		metrics := observability.NewChatMetrics("http")
		logger.Info().
			Int("messages", len(req.Messages)).
			Bool("show_intermediate_steps", req.ShowIntermediateSteps).
			Msg("Chat stream started")

		sum, err := s.Serve(r.Context(), req, sessionID, stream.NewNDJSONSink(w))
		outcome := finishOutcome(sum, err)
		metrics.End(outcome)
		logChatEnd(logger, sum, err, outcome)
	}
}

// requestLogger carries the correlation id and the access log request id
func (s *ChatService) requestLogger(r *http.Request) zerolog.Logger {
	logger := observability.WithCorrelationID(s.logger, r.Header.Get("X-Correlation-ID"))
	if id, ok := hlog.IDFromRequest(r); ok {
		logger = logger.With().Str("request_id", id.String()).Logger()
	}
	return logger
}

func finishOutcome(sum stream.Summary, err error) string {
	if err != nil {
		return "disconnected"
	}
	return sum.Outcome()
}

func logChatEnd(logger zerolog.Logger, sum stream.Summary, err error, outcome string) {
	event := logger.Info()
	if err != nil && !errors.Is(err, context.Canceled) {
		event = logger.Warn().Err(err)
	}
	event.
		Str("outcome", outcome).
		Int("tool_calls", sum.ToolCalls).
		Int("tool_results", sum.ToolResults).
		Int("skipped", sum.Skipped).
		Msg("Chat stream finished")
}

// Catalog lists the tools the agent can call.
type Catalog interface {
	Definitions() []tools.Definition
}

// HandleTools returns the tool catalog handler
func HandleTools(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"tools": catalog.Definitions()})
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
