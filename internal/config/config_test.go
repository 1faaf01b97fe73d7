package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.TimeoutSeconds != 300 {
		t.Fatalf("expected default session timeout 300, got %d", cfg.Session.TimeoutSeconds)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Capture.SampleRate)
	}
	if cfg.Model.Mode != "stub" {
		t.Fatalf("expected default model mode stub, got %q", cfg.Model.Mode)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4333" {
		t.Fatalf("expected default bus server, got %v", cfg.Bus.Servers)
	}
}

func TestLoadFile(t *testing.T) {
	yaml := `
session:
  timeout_seconds: 30
model:
  mode: exec
  command: "whisper-helper"
  target_path: "/models/ggml-base.en.bin"
  draft_path: "/models/ggml-tiny.en.bin"
  draft_tokens: 4
output:
  mode: clipboard
`
	path := filepath.Join(t.TempDir(), "hyprvoice.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.TimeoutSeconds != 30 {
		t.Fatalf("expected timeout 30, got %d", cfg.Session.TimeoutSeconds)
	}
	if cfg.Model.Mode != "exec" || cfg.Model.DraftTokens != 4 {
		t.Fatalf("unexpected model config: %+v", cfg.Model)
	}
	if cfg.Output.Mode != "clipboard" {
		t.Fatalf("expected output mode clipboard, got %q", cfg.Output.Mode)
	}
	// untouched sections keep defaults
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Capture.SampleRate)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HYPRVOICE_SESSION_TIMEOUT_SECONDS", "45")
	t.Setenv("HYPRVOICE_MODEL_DRAFT_TOKENS", "2")
	t.Setenv("HYPRVOICE_MODEL_PROMPT", "kubectl, systemd, grep")
	t.Setenv("HYPRVOICE_BUS_SERVERS", "nats://one:4333, nats://two:4333")
	t.Setenv("HYPRVOICE_OUTPUT_MODE", "clipboard")
	t.Setenv("HYPRVOICE_STATE_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.TimeoutSeconds != 45 {
		t.Fatalf("expected timeout override 45, got %d", cfg.Session.TimeoutSeconds)
	}
	if cfg.Model.DraftTokens != 2 {
		t.Fatalf("expected draft tokens override 2, got %d", cfg.Model.DraftTokens)
	}
	if cfg.Model.Prompt != "kubectl, systemd, grep" {
		t.Fatalf("expected prompt override, got %q", cfg.Model.Prompt)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Output.Mode != "clipboard" {
		t.Fatalf("expected output mode override")
	}
	if cfg.StateStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.Session.TimeoutSeconds = 0 }},
		{"bad retention", func(c *Config) { c.StateStore.RetentionMode = "forever" }},
		{"bad capture mode", func(c *Config) { c.Capture.Mode = "pipewire" }},
		{"exec without command", func(c *Config) { c.Model.Mode = "exec"; c.Model.Command = "" }},
		{"negative draft tokens", func(c *Config) { c.Model.DraftTokens = -1 }},
		{"bad output mode", func(c *Config) { c.Output.Mode = "paste" }},
		{"buffer shorter than timeout", func(c *Config) { c.Capture.MaxBufferSeconds = 10 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
