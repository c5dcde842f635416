package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"little-giant/internal/integrations/lmstudio"
)

// DefaultModel is used until a settings layer names one.
const DefaultModel = "deepseek-coder-v2-lite-instruct"

// Settings configure the model client.
type Settings struct {
	BaseURL        string
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		BaseURL:        lmstudio.DefaultBaseURL,
		Model:          DefaultModel,
		Temperature:    lmstudio.DefaultTemperature,
		MaxTokens:      lmstudio.DefaultMaxTokens,
		RequestTimeout: lmstudio.DefaultTimeout,
	}
}

// ClientConfig converts s for lmstudio.New.
func (s Settings) ClientConfig() lmstudio.Config {
	temperature := s.Temperature
	return lmstudio.Config{
		BaseURL:     s.BaseURL,
		Model:       s.Model,
		Temperature: &temperature,
		MaxTokens:   s.MaxTokens,
		Timeout:     s.RequestTimeout,
	}
}

// settingsFile is the YAML shape. Pointers tell "absent" from zero.
type settingsFile struct {
	BaseURL        *string        `yaml:"base_url"`
	Model          *string        `yaml:"model"`
	Temperature    *float64       `yaml:"temperature"`
	MaxTokens      *int           `yaml:"max_tokens"`
	RequestTimeout *time.Duration `yaml:"request_timeout"`
}

func (f settingsFile) apply(s *Settings) {
	if f.BaseURL != nil && strings.TrimSpace(*f.BaseURL) != "" {
		s.BaseURL = strings.TrimSpace(*f.BaseURL)
	}
	if f.Model != nil && strings.TrimSpace(*f.Model) != "" {
		s.Model = strings.TrimSpace(*f.Model)
	}
	if f.Temperature != nil {
		s.Temperature = *f.Temperature
	}
	if f.MaxTokens != nil {
		s.MaxTokens = *f.MaxTokens
	}
	if f.RequestTimeout != nil && *f.RequestTimeout > 0 {
		s.RequestTimeout = *f.RequestTimeout
	}
}

// ParamSource lists parameters under a prefix.
type ParamSource interface {
	GetPath(ctx context.Context, prefix string) (map[string]string, error)
}

// Loader layers defaults, the settings file, SSM parameters and the
// environment. Later layers win.
type Loader struct {
	File   string
	Prefix string
	Params ParamSource
	Getenv func(string) string
}

func (l Loader) Load(ctx context.Context) (Settings, error) {
	s := Defaults()

	if l.File != "" {
		f, err := readSettingsFile(l.File)
		if err != nil {
			return Settings{}, err
		}
		f.apply(&s)
	}

	if l.Params != nil && l.Prefix != "" {
		values, err := l.Params.GetPath(ctx, l.Prefix)
		if err != nil {
			return Settings{}, fmt.Errorf("config: load parameters: %w", err)
		}
		f, err := paramsToFile(values)
		if err != nil {
			return Settings{}, err
		}
		f.apply(&s)
	}

	if l.Getenv != nil {
		f := settingsFile{}
		if v := l.Getenv("LM_BASE_URL"); v != "" {
			f.BaseURL = &v
		}
		if v := l.Getenv("LM_MODEL"); v != "" {
			f.Model = &v
		}
		f.apply(&s)
	}
	return s, nil
}

// readSettingsFile treats a missing file as empty.
func readSettingsFile(path string) (settingsFile, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settingsFile{}, nil
	}
	if err != nil {
		return settingsFile{}, fmt.Errorf("config: read settings file: %w", err)
	}
	var f settingsFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return settingsFile{}, fmt.Errorf("config: parse settings file %s: %w", path, err)
	}
	return f, nil
}

func paramsToFile(values map[string]string) (settingsFile, error) {
	var f settingsFile
	if v, ok := values["base_url"]; ok {
		f.BaseURL = &v
	}
	if v, ok := values["model"]; ok {
		f.Model = &v
	}
	if v, ok := values["temperature"]; ok {
		t, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return settingsFile{}, fmt.Errorf("config: parameter temperature: %w", err)
		}
		f.Temperature = &t
	}
	if v, ok := values["max_tokens"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return settingsFile{}, fmt.Errorf("config: parameter max_tokens: %w", err)
		}
		f.MaxTokens = &n
	}
	if v, ok := values["request_timeout"]; ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return settingsFile{}, fmt.Errorf("config: parameter request_timeout: %w", err)
		}
		f.RequestTimeout = &d
	}
	return f, nil
}

// WriteSettingsFile writes s as YAML, replacing path atomically.
func WriteSettingsFile(path string, s Settings) error {
	out := settingsFile{
		BaseURL:        &s.BaseURL,
		Model:          &s.Model,
		Temperature:    &s.Temperature,
		MaxTokens:      &s.MaxTokens,
		RequestTimeout: &s.RequestTimeout,
	}
	raw, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("config: write settings file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: replace settings file: %w", err)
	}
	return nil
}
