package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"little-giant/internal/usecase"
)

func newClassifyCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Print the intent a message classifies to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, flags, buildOptions{}, func(ctx context.Context, a *app) error {
				in := a.classifier.Classify(ctx, strings.Join(args, " "))
				return printJSON(deps.Stdout, in)
			})
		},
	}
}

func newTurnCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "turn <text>",
		Short: "Run one user turn: classify, then open, act or chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, flags, buildOptions{withBrowser: true}, func(ctx context.Context, a *app) error {
				out, err := a.assistant.Turn(ctx, usecase.TurnInput{
					Message:        strings.Join(args, " "),
					ConversationID: conversationID,
				})
				if err != nil {
					return err
				}
				return printJSON(deps.Stdout, out.Event)
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id to thread history through")
	return cmd
}

func newPingCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the model server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, deps, flags, buildOptions{}, func(ctx context.Context, a *app) error {
				if _, err := a.holder.TestConnection(ctx); err != nil {
					return fmt.Errorf("ping: %w", err)
				}
				cfg := a.holder.Config()
				_, err := fmt.Fprintf(deps.Stdout, "Connected to LM Studio at %s (model %s)\n", cfg.BaseURL, cfg.Model)
				return err
			})
		},
	}
}

func withApp(cmd *cobra.Command, deps Dependencies, flags *rootFlags, opts buildOptions, run func(ctx context.Context, a *app) error) error {
	env, err := loadEnv(cmd, deps, flags)
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), env, deps.Getenv, deps.Logger, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
