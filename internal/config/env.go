// Package config reads process configuration from the environment and model
// settings from a YAML file, SSM and the environment, in that order.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultListenAddr    = "127.0.0.1:8787"
	DefaultHistoryPath   = "little-giant/history.db"
	DefaultMaxContext    = 20
	DefaultMaxMessageLen = 4000

	HistorySQLite   = "sqlite"
	HistoryDynamoDB = "dynamodb"
)

// Env is the process configuration.
type Env struct {
	ListenAddr         string
	HistoryDriver      string
	HistoryPath        string
	StateTable         string
	MaxContextItems    int
	MaxMessageLength   int
	BrowserDebuggerURL string
	BrowserHeadless    bool
	SettingsFile       string
	ParamPrefix        string
}

// FromEnv reads Env through getenv. Unparseable numbers fall back to their
// defaults; an unknown history driver is an error.
func FromEnv(getenv func(string) string) (Env, error) {
	e := Env{
		ListenAddr:         envString(getenv, "LISTEN_ADDR", DefaultListenAddr),
		HistoryDriver:      strings.ToLower(envString(getenv, "HISTORY_DRIVER", HistorySQLite)),
		HistoryPath:        envString(getenv, "HISTORY_PATH", DefaultHistoryPath),
		StateTable:         strings.TrimSpace(getenv("STATE_TABLE")),
		MaxContextItems:    envInt(getenv, "MAX_CONTEXT_ITEMS", DefaultMaxContext),
		MaxMessageLength:   envInt(getenv, "MAX_MESSAGE_LENGTH", DefaultMaxMessageLen),
		BrowserDebuggerURL: strings.TrimSpace(getenv("BROWSER_DEBUGGER_URL")),
		BrowserHeadless:    envBool(getenv, "BROWSER_HEADLESS", false),
		SettingsFile:       strings.TrimSpace(getenv("SETTINGS_FILE")),
		ParamPrefix:        strings.TrimSpace(getenv("PARAM_PREFIX")),
	}
	switch e.HistoryDriver {
	case HistorySQLite:
	case HistoryDynamoDB:
		if e.StateTable == "" {
			return Env{}, fmt.Errorf("config: STATE_TABLE is required for the %s history driver", HistoryDynamoDB)
		}
	default:
		return Env{}, fmt.Errorf("config: unknown HISTORY_DRIVER %q", e.HistoryDriver)
	}
	return e, nil
}

// UsesAWS reports whether any configured component talks to AWS.
func (e Env) UsesAWS() bool {
	return e.HistoryDriver == HistoryDynamoDB || e.ParamPrefix != ""
}

func envString(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(getenv func(string) string, key string, def bool) bool {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
