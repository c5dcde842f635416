package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"little-giant/internal/config"
	"little-giant/internal/integrations/lmstudio"
)

type settingsView struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	File           string        `yaml:"file"`
}

func newSettingsCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change model settings",
	}
	cmd.AddCommand(newSettingsShowCommand(deps, flags), newSettingsSetCommand(deps, flags))
	return cmd
}

func newSettingsShowCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(cmd, deps, flags)
			if err != nil {
				return err
			}
			// Parameter Store is only consulted by serve and lambda.
			s, err := config.Loader{File: env.SettingsFile, Getenv: deps.Getenv}.Load(cmd.Context())
			if err != nil {
				return err
			}
			raw, err := yaml.Marshal(settingsView{
				BaseURL:        s.BaseURL,
				Model:          s.Model,
				Temperature:    s.Temperature,
				MaxTokens:      s.MaxTokens,
				RequestTimeout: s.RequestTimeout,
				File:           env.SettingsFile,
			})
			if err != nil {
				return err
			}
			_, err = deps.Stdout.Write(raw)
			return err
		},
	}
}

func newSettingsSetCommand(deps Dependencies, flags *rootFlags) *cobra.Command {
	var (
		baseURL     string
		model       string
		temperature float64
		maxTokens   int
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Write settings to the settings file",
		Long: `Write settings to the settings file. A running serve picks the change up
without a restart. Only the flags given are changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(cmd, deps, flags)
			if err != nil {
				return err
			}
			// Start from the file alone so environment overrides are not persisted.
			s, err := config.Loader{File: env.SettingsFile}.Load(cmd.Context())
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("base-url") {
				s.BaseURL = baseURL
			}
			if f.Changed("model") {
				s.Model = model
			}
			if f.Changed("temperature") {
				s.Temperature = temperature
			}
			if f.Changed("max-tokens") {
				s.MaxTokens = maxTokens
			}
			if f.Changed("request-timeout") {
				s.RequestTimeout = timeout
			}
			if _, err := lmstudio.New(s.ClientConfig()); err != nil {
				return fmt.Errorf("settings: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(env.SettingsFile), 0o755); err != nil {
				return fmt.Errorf("settings: %w", err)
			}
			if err := config.WriteSettingsFile(env.SettingsFile, s); err != nil {
				return err
			}
			_, err = fmt.Fprintf(deps.Stdout, "Saved %s\n", env.SettingsFile)
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Model server root, e.g. http://localhost:1234")
	cmd.Flags().StringVar(&model, "model", "", "Model id")
	cmd.Flags().Float64Var(&temperature, "temperature", lmstudio.DefaultTemperature, "Sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", lmstudio.DefaultMaxTokens, "Completion token limit; -1 for no limit")
	cmd.Flags().DurationVar(&timeout, "request-timeout", lmstudio.DefaultTimeout, "Per-request timeout")
	return cmd
}
