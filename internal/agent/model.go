package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/gh-activity-agent/internal/config"
	"github.com/lexiqai/gh-activity-agent/internal/observability"
	"github.com/lexiqai/gh-activity-agent/internal/resilience"
	"github.com/lexiqai/gh-activity-agent/internal/tools"
)

// Request is one chat completion request.
type Request struct {
	System   string
	Messages []Message
	Tools    []tools.Definition
}

// Reply is the model's answer to a Request.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// ChatModel is a tool-calling chat completion backend.
type ChatModel interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
	Provider() string
}

// ProviderError is a non-2xx answer from a model API. Body holds the raw
// JSON document the provider returned.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryableModelError reports whether a failed model call may succeed
// when repeated.
func IsRetryableModelError(err error) bool {
	if err == nil || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode == 429 || perr.StatusCode == 408 || perr.StatusCode >= 500
	}
	return resilience.IsRetryableNetworkError(err)
}

// IsProviderOutage reports whether a failed model call points at the
// provider rather than at the request. Client rejections such as a 400
// tool_use_failed mean the provider is up and must not open the circuit.
func IsProviderOutage(err error) bool {
	if err == nil {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode == 429 || perr.StatusCode == 408 || perr.StatusCode >= 500
	}
	return true
}

// ResilientModel guards a ChatModel with a circuit breaker and retries.
type ResilientModel struct {
	model   ChatModel
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  zerolog.Logger
}

// NewResilientModel wraps model.
func NewResilientModel(model ChatModel, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, logger zerolog.Logger) *ResilientModel {
	logger = logger.With().Str("component", "model").Str("provider", model.Provider()).Logger()
	breaker.SetFailureFilter(IsProviderOutage)
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger.Warn().Str("breaker", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	})
	return &ResilientModel{
		model:   model,
		breaker: breaker,
		retry:   retry,
		logger:  logger,
	}
}

// Provider returns the wrapped provider name.
func (m *ResilientModel) Provider() string { return m.model.Provider() }

// Breaker exposes the circuit breaker for readiness checks.
func (m *ResilientModel) Breaker() *resilience.CircuitBreaker { return m.breaker }

// Complete calls the wrapped model.
func (m *ResilientModel) Complete(ctx context.Context, req Request) (*Reply, error) {
	var reply *Reply
	attempt := 0

	err := resilience.Retry(ctx, func(ctx context.Context) error {
		attempt++
		err := m.breaker.Call(ctx, func(ctx context.Context) error {
			start := time.Now()
			r, err := m.model.Complete(ctx, req)
			observability.RecordModelRequest(m.model.Provider(), err == nil, time.Since(start))
			if err != nil {
				return err
			}
			reply = r
			return nil
		})
		switch {
		case err == nil, errors.Is(err, resilience.ErrCircuitOpen), ctx.Err() != nil:
		case m.breaker.CountsAsFailure(err):
			observability.IncrementCircuitBreakerFailures(m.breaker.Name())
			m.logger.Warn().Err(err).Int("attempt", attempt).Msg("Model request failed")
		default:
			m.logger.Info().Err(err).Int("attempt", attempt).Msg("Model rejected request")
		}
		return err
	}, m.retry, IsRetryableModelError)

	if err != nil {
		return nil, err
	}
	return reply, nil
}

// NewChatModel builds the model configured in cfg, wrapped with the
// configured breaker and retry policy.
func NewChatModel(cfg *config.Config, logger zerolog.Logger) (*ResilientModel, error) {
	var model ChatModel
	switch cfg.ModelProvider {
	case config.ProviderGroq, config.ProviderOpenAI:
		model = NewOpenAIModel(OpenAIOptions{
			Provider:    cfg.ModelProvider,
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.BaseURL(),
			Model:       cfg.ModelName,
			Temperature: cfg.ModelTemperature,
			MaxTokens:   cfg.ModelMaxTokens,
		})
	case config.ProviderAnthropic:
		model = NewAnthropicModel(AnthropicOptions{
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.ModelBaseURL,
			Model:       cfg.ModelName,
			Temperature: cfg.ModelTemperature,
			MaxTokens:   cfg.ModelMaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.ModelProvider)
	}

	breaker := resilience.NewCircuitBreaker("model", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout)
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryInitialBackoff,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	return NewResilientModel(model, breaker, retry, logger), nil
}
