// Package commands provides the little-giant CLI.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"little-giant/internal/config"
)

// Dependencies are the process surfaces the commands touch.
type Dependencies struct {
	Getenv func(string) string
	Stdout io.Writer
	Logger *slog.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

type rootFlags struct {
	settings      string
	historyDriver string
	historyPath   string
}

// NewRootCommand builds the command tree.
func NewRootCommand(deps Dependencies) *cobra.Command {
	deps = deps.withDefaults()
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "little-giant",
		Short: "Browser assistant coordinator backed by a local model",
		Long: `little-giant turns side-panel messages into intents, opens URLs and
acts on the active tab, and answers everything else through a local
OpenAI-compatible model server such as LM Studio.

Examples:
  little-giant serve                      Serve the side panel on 127.0.0.1:8787
  little-giant classify "open amazon"     Print the intent for a message
  little-giant turn "scroll down"         Run one full turn against Chrome
  little-giant settings set --model qwen2.5-7b-instruct`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.settings, "settings", "", "Settings YAML file (default $SETTINGS_FILE or <config dir>/little-giant/settings.yaml)")
	root.PersistentFlags().StringVar(&flags.historyDriver, "history-driver", "", "History backend: sqlite or dynamodb")
	root.PersistentFlags().StringVar(&flags.historyPath, "history-path", "", "SQLite history file")

	root.AddCommand(
		newServeCommand(deps, flags),
		newLambdaCommand(deps, flags),
		newClassifyCommand(deps, flags),
		newTurnCommand(deps, flags),
		newPingCommand(deps, flags),
		newSettingsCommand(deps, flags),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, deps Dependencies) int {
	cmd := NewRootCommand(deps)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// loadEnv reads the environment and applies flag overrides.
func loadEnv(cmd *cobra.Command, deps Dependencies, flags *rootFlags) (config.Env, error) {
	getenv := deps.Getenv
	if cmd.Flags().Changed("history-driver") {
		getenv = overlay(getenv, "HISTORY_DRIVER", flags.historyDriver)
	}
	env, err := config.FromEnv(getenv)
	if err != nil {
		return config.Env{}, err
	}
	if cmd.Flags().Changed("history-path") {
		env.HistoryPath = flags.historyPath
	}
	if cmd.Flags().Changed("settings") {
		env.SettingsFile = flags.settings
	}
	if env.SettingsFile == "" {
		env.SettingsFile = defaultSettingsPath()
	}
	env.SettingsFile = resolvePath(env.SettingsFile)
	env.HistoryPath = resolvePath(env.HistoryPath)
	return env, nil
}

func overlay(getenv func(string) string, key, value string) func(string) string {
	return func(k string) string {
		if k == key {
			return value
		}
		return getenv(k)
	}
}
