// Package app assembles the agent from configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/gh-activity-agent/internal/agent"
	"github.com/lexiqai/gh-activity-agent/internal/config"
	"github.com/lexiqai/gh-activity-agent/internal/ghcli"
	"github.com/lexiqai/gh-activity-agent/internal/observability"
	"github.com/lexiqai/gh-activity-agent/internal/resilience"
	"github.com/lexiqai/gh-activity-agent/internal/stream"
	"github.com/lexiqai/gh-activity-agent/internal/tools"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Runner     ghcli.Runner
	Tools      *tools.Registry
	Model      *agent.ResilientModel
	Agent      *agent.Agent
	Translator *stream.Translator
}

// New wires the runner, tools, model, agent and translator from cfg
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	runner := ghcli.NewExecRunner(cfg.GHBinary)
	registry := tools.NewGitHubRegistry(runner, tools.Settings{
		Org:         cfg.GitHubOrg,
		DefaultRepo: cfg.GitHubDefaultRepo,
		Binary:      cfg.GHBinary,
	}, logger)

	model, err := agent.NewChatModel(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	a := agent.New(model, registry, logger, agent.Options{MaxSteps: cfg.AgentMaxSteps})
	translator := stream.New(logger, stream.Options{
		ResultPrefixes: cfg.ToolResultPrefixes,
		RequiredParams: registry.Required,
	})

	logger.Info().
		Strs("tools", registry.Names()).
		Str("provider", model.Provider()).
		Str("model", cfg.ModelName).
		Msg("Agent initialized")

	return &App{
		Config:     cfg,
		Runner:     runner,
		Tools:      registry,
		Model:      model,
		Agent:      a,
		Translator: translator,
	}, nil
}

// Checks returns the readiness checks: the gh binary answers, the model
// credential is set and the model circuit is not open.
func (a *App) Checks() map[string]observability.HealthCheckFunc {
	return map[string]observability.HealthCheckFunc{
		"gh": func(ctx context.Context) (bool, error) {
			if _, err := ghcli.Version(ctx, a.Runner); err != nil {
				return false, err
			}
			return true, nil
		},
		"model_credentials": func(ctx context.Context) (bool, error) {
			if a.Config.APIKey() == "" {
				return false, fmt.Errorf("%s is not set", a.Config.APIKeyEnv())
			}
			return true, nil
		},
		"model_circuit": func(ctx context.Context) (bool, error) {
			if a.Model.Breaker().GetState() == resilience.StateOpen {
				return false, errors.New("model circuit breaker is open")
			}
			return true, nil
		},
	}
}
