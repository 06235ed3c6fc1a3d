package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	Init()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.OrgID != DefaultOrgID {
		t.Errorf("org = %q, want %q", cfg.OrgID, DefaultOrgID)
	}
	if cfg.ToolTimeout != DefaultToolTimeout {
		t.Errorf("tool timeout = %s, want %s", cfg.ToolTimeout, DefaultToolTimeout)
	}
	if cfg.MaxToolCalls != DefaultMaxToolCalls {
		t.Errorf("max tool calls = %d, want %d", cfg.MaxToolCalls, DefaultMaxToolCalls)
	}
	if cfg.DataDir == "" {
		t.Error("data dir must have a default")
	}
	if cfg.NotifyWebhook != "" || cfg.TrackerURL != "" {
		t.Error("webhooks must default to disabled")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("REQTRIAGE_ORG", "acme")
	t.Setenv("REQTRIAGE_TOOL_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.OrgID != "acme" {
		t.Errorf("org = %q, want acme", cfg.OrgID)
	}
	if cfg.ToolTimeout != 5*time.Second {
		t.Errorf("tool timeout = %s, want 5s", cfg.ToolTimeout)
	}
}

func TestLoad_BadTimeout(t *testing.T) {
	resetViper(t)
	t.Setenv("REQTRIAGE_TOOL_TIMEOUT", "whenever")

	if _, err := Load(); err == nil {
		t.Fatal("invalid duration must fail")
	}
}

func TestLoad_NonPositiveTimeout(t *testing.T) {
	resetViper(t)
	t.Setenv("REQTRIAGE_TOOL_TIMEOUT", "-1s")

	if _, err := Load(); err == nil {
		t.Fatal("negative duration must fail")
	}
}
