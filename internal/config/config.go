// Package config loads runtime settings from flags, environment, and
// an optional config file, in that precedence order. Environment
// variables use the REQTRIAGE_ prefix (REQTRIAGE_DATA_DIR, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is everything the server and CLI need to run.
type Config struct {
	// DataDir holds the SQLite database.
	DataDir string

	// OrgID scopes every operation this process performs.
	OrgID string

	// AgentID identifies the automated actor in notifications and
	// decision trails.
	AgentID string

	// ToolTimeout bounds one agent tool call.
	ToolTimeout time.Duration

	// MaxToolCalls caps one pipeline stage run.
	MaxToolCalls int

	// NotifyWebhook, when set, receives lifecycle notifications as
	// JSON POSTs. Empty means log-only notifications.
	NotifyWebhook string

	// TrackerURL and TrackerToken configure the issue-tracker sync
	// endpoint. Empty TrackerURL disables sync.
	TrackerURL   string
	TrackerToken string
}

// Defaults applied when neither flag, env, nor file provides a value.
const (
	DefaultToolTimeout  = 30 * time.Second
	DefaultMaxToolCalls = 32
	DefaultOrgID        = "default"
	DefaultAgentID      = "triage-agent"
)

// Init wires viper's environment handling. Call once before Load,
// after flags are bound.
func Init() {
	viper.SetEnvPrefix("REQTRIAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("data-dir", defaultDataDir())
	viper.SetDefault("org", DefaultOrgID)
	viper.SetDefault("agent-id", DefaultAgentID)
	viper.SetDefault("tool-timeout", DefaultToolTimeout.String())
	viper.SetDefault("max-tool-calls", DefaultMaxToolCalls)
}

// Load materializes the resolved configuration.
func Load() (Config, error) {
	timeout, err := time.ParseDuration(viper.GetString("tool-timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid tool-timeout: %w", err)
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("config: tool-timeout must be positive, got %s", timeout)
	}
	maxCalls := viper.GetInt("max-tool-calls")
	if maxCalls <= 0 {
		return Config{}, fmt.Errorf("config: max-tool-calls must be positive, got %d", maxCalls)
	}

	return Config{
		DataDir:       viper.GetString("data-dir"),
		OrgID:         viper.GetString("org"),
		AgentID:       viper.GetString("agent-id"),
		ToolTimeout:   timeout,
		MaxToolCalls:  maxCalls,
		NotifyWebhook: viper.GetString("notify-webhook"),
		TrackerURL:    viper.GetString("tracker-url"),
		TrackerToken:  viper.GetString("tracker-token"),
	}, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reqtriage"
	}
	return filepath.Join(home, ".reqtriage")
}
