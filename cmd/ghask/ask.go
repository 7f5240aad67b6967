package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexiqai/gh-activity-agent/internal/server"
	"github.com/lexiqai/gh-activity-agent/internal/stream"
)

var (
	askSteps   bool
	askSession string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and stream the answer as NDJSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, logger, err := loadApp()
		if err != nil {
			return err
		}

		content, err := json.Marshal(strings.Join(args, " "))
		if err != nil {
			return err
		}
		req := &server.ChatRequest{
			Messages:              []server.ChatMessage{{Role: "user", Content: content}},
			SessionID:             askSession,
			ShowIntermediateSteps: askSteps,
		}
		if err := req.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		chat := server.NewChatService(a.Agent, a.Translator, logger)
		sum, err := chat.Serve(ctx, req, req.ResolveSessionID(), stream.NewNDJSONSink(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		if sum.Failed {
			return errors.New("agent run failed")
		}
		if !sum.Answered {
			return fmt.Errorf("no answer after %d tool calls", sum.ToolCalls)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askSteps, "steps", false, "Stream tool calls and results before the answer")
	askCmd.Flags().StringVar(&askSession, "session", "", "Session id (generated if unset)")
}
