// Command ghask asks the GitHub activity agent a question from the terminal.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/gh-activity-agent/internal/app"
	"github.com/lexiqai/gh-activity-agent/internal/config"
	"github.com/lexiqai/gh-activity-agent/internal/observability"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ghask",
	Short: "Ask questions about GitHub pull request activity",
	Long: `ghask runs the GitHub activity agent locally. It uses the gh CLI for
data and the configured chat model, and streams the same NDJSON lines the
HTTP endpoint serves.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes to stderr so stdout carries only the stream.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := "error"
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(os.Stderr, level, cfg.LogPretty)
}

func loadApp() (*app.App, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg)
	a, err := app.New(cfg, logger)
	return a, logger, err
}
