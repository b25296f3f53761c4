package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
discord:
  bot_token: test-token
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.Binary != "claude" {
		t.Errorf("agent.binary = %q, want claude", cfg.Agent.Binary)
	}
	if cfg.Agent.MaxRunTime.Std() != 10*time.Minute {
		t.Errorf("max_run_time = %s, want 10m", cfg.Agent.MaxRunTime)
	}
	if cfg.Agent.MaxOutputBytes != 1<<20 {
		t.Errorf("max_output_bytes = %d, want %d", cfg.Agent.MaxOutputBytes, 1<<20)
	}
	if cfg.QuietHours.Start != "23:00" || cfg.QuietHours.End != "06:00" {
		t.Errorf("quiet hours = %s-%s, want 23:00-06:00", cfg.QuietHours.Start, cfg.QuietHours.End)
	}
	if cfg.Reminders.PollInterval.Std() != 30*time.Second {
		t.Errorf("poll_interval = %s, want 30s", cfg.Reminders.PollInterval)
	}
	if cfg.Channels.BufferSize != 10 {
		t.Errorf("buffer_size = %d, want 10", cfg.Channels.BufferSize)
	}
}

func TestLoadMissingToken(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
agent:
  binary: claude
`)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Errorf("expected bot_token error, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
discord:
  bot_token: x
  no_such_field: true
`)

	if _, err := Load(path); err == nil {
		t.Error("expected unknown-field error")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DISCORD_TOKEN", "tok-from-env")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
discord:
  bot_token: ${TEST_DISCORD_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.BotToken != "tok-from-env" {
		t.Errorf("bot_token = %q, want tok-from-env", cfg.Discord.BotToken)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
discord:
  bot_token: base-token
agent:
  model: base-model
`)
	path := writeFile(t, dir, "config.yaml", `
$include: base.yaml
agent:
  model: override-model
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.BotToken != "base-token" {
		t.Errorf("bot_token = %q, want base-token", cfg.Discord.BotToken)
	}
	if cfg.Agent.Model != "override-model" {
		t.Errorf("model = %q, want override-model", cfg.Agent.Model)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("expected cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json5", `{
  // comments are allowed
  discord: {bot_token: "json5-token"},
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.BotToken != "json5-token" {
		t.Errorf("bot_token = %q, want json5-token", cfg.Discord.BotToken)
	}
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "run time over cap",
			mutate: func(c *Config) {
				c.Agent.MaxRunTime = Duration(20 * time.Minute)
				c.Agent.MaxRunTimeCap = Duration(10 * time.Minute)
			},
			wantErr: "exceeds cap",
		},
		{
			name: "poll interval over 30s",
			mutate: func(c *Config) {
				c.Reminders.PollInterval = Duration(2 * time.Minute)
			},
			wantErr: "poll_interval",
		},
		{
			name: "bad quiet timezone",
			mutate: func(c *Config) {
				c.QuietHours.Timezone = "Mars/Olympus"
			},
			wantErr: "timezone",
		},
		{
			name: "bad quiet window",
			mutate: func(c *Config) {
				c.QuietHours.Start = "25:99"
			},
			wantErr: "HH:MM",
		},
		{
			name: "bad sampling rate",
			mutate: func(c *Config) {
				c.Tracing.SamplingRate = 2.0
			},
			wantErr: "sampling_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Discord: DiscordConfig{BotToken: "x"}}
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
discord:
  bot_token: x
agent:
  max_run_time: 5m
  max_run_time_cap: 15m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxRunTime.Std() != 5*time.Minute {
		t.Errorf("max_run_time = %s, want 5m", cfg.Agent.MaxRunTime)
	}
}
