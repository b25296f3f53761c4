// Package config loads and validates the dispatcher configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Discord    DiscordConfig   `yaml:"discord"`
	Agent      AgentConfig     `yaml:"agent"`
	Channels   ChannelsConfig  `yaml:"channels"`
	QuietHours QuietConfig     `yaml:"quiet_hours"`
	Schedule   ScheduleConfig  `yaml:"schedule"`
	Skills     SkillsConfig    `yaml:"skills"`
	Storage    StorageConfig   `yaml:"storage"`
	Reminders  RemindersConfig `yaml:"reminders"`
	Memory     MemoryConfig    `yaml:"memory"`
	Knowledge  KnowledgeConfig `yaml:"knowledge"`
	Identity   IdentityConfig  `yaml:"identity"`
	WhatsApp   WhatsAppConfig  `yaml:"whatsapp"`
	Capture    CaptureConfig   `yaml:"capture"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Tracing    TracingConfig   `yaml:"tracing"`
	Logging    LoggingConfig   `yaml:"logging"`
}

type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	// OperatorChannel receives fatal egress diagnostics. Optional.
	OperatorChannel string `yaml:"operator_channel"`
}

type AgentConfig struct {
	// Binary is the LLM agent CLI path.
	Binary string `yaml:"binary"`
	Model  string `yaml:"model"`
	// WorkDir holds the agent's own operating configuration.
	WorkDir string `yaml:"workdir"`
	// MaxRunTime is the per-request deadline. Callers may shorten it but
	// never extend past MaxRunTimeCap.
	MaxRunTime     Duration `yaml:"max_run_time"`
	MaxRunTimeCap  Duration `yaml:"max_run_time_cap"`
	MaxOutputBytes int64    `yaml:"max_output_bytes"`
}

type ChannelsConfig struct {
	// Aliases map human channel names used in the schedule document to
	// platform channel IDs.
	Aliases map[string]string `yaml:"aliases"`
	// BufferSize bounds the per-channel recent-message buffer.
	BufferSize int `yaml:"buffer_size"`
}

type QuietConfig struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

type ScheduleConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type SkillsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type StorageConfig struct {
	// Path is the SQLite database holding reminders, job history, and
	// captures.
	Path string `yaml:"path"`
}

type RemindersConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	MaxAttempts  int      `yaml:"max_attempts"`
}

type MemoryConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

type KnowledgeConfig struct {
	Path string `yaml:"path"`
}

type IdentityConfig struct {
	Path string `yaml:"path"`
}

type WhatsAppConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StorePath string `yaml:"store_path"`
	QRPath    string `yaml:"qr_path"`
	// Recipients map channel IDs to WhatsApp JIDs for the +whatsapp mirror.
	Recipients map[string]string `yaml:"recipients"`
}

type CaptureConfig struct {
	Enabled bool `yaml:"enabled"`
	// RetentionDays bounds the rolling capture window.
	RetentionDays int `yaml:"retention_days"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate applies defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("discord.bot_token is required")
	}

	if c.Agent.Binary == "" {
		c.Agent.Binary = "claude"
	}
	if c.Agent.MaxRunTime <= 0 {
		c.Agent.MaxRunTime = Duration(10 * time.Minute)
	}
	if c.Agent.MaxRunTimeCap <= 0 {
		c.Agent.MaxRunTimeCap = c.Agent.MaxRunTime
	}
	if c.Agent.MaxRunTime > c.Agent.MaxRunTimeCap {
		return fmt.Errorf("agent.max_run_time %s exceeds cap %s",
			c.Agent.MaxRunTime, c.Agent.MaxRunTimeCap)
	}
	if c.Agent.MaxOutputBytes <= 0 {
		c.Agent.MaxOutputBytes = 1 << 20
	}

	if c.Channels.BufferSize <= 0 {
		c.Channels.BufferSize = 10
	}

	if c.QuietHours.Start == "" {
		c.QuietHours.Start = "23:00"
	}
	if c.QuietHours.End == "" {
		c.QuietHours.End = "06:00"
	}
	if c.QuietHours.Timezone == "" {
		c.QuietHours.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.QuietHours.Timezone); err != nil {
		return fmt.Errorf("quiet_hours.timezone: %w", err)
	}
	for _, v := range []string{c.QuietHours.Start, c.QuietHours.End} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("quiet_hours window %q: want HH:MM", v)
		}
	}

	if c.Schedule.Path == "" {
		c.Schedule.Path = "schedule.md"
	}
	if c.Skills.Dir == "" {
		c.Skills.Dir = "skills"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "donna.db"
	}

	if c.Reminders.PollInterval <= 0 {
		c.Reminders.PollInterval = Duration(30 * time.Second)
	}
	if c.Reminders.PollInterval > Duration(30*time.Second) {
		return fmt.Errorf("reminders.poll_interval %s exceeds 30s maximum",
			c.Reminders.PollInterval)
	}
	if c.Reminders.MaxAttempts <= 0 {
		c.Reminders.MaxAttempts = 3
	}

	if c.Memory.Timeout <= 0 {
		c.Memory.Timeout = Duration(3 * time.Second)
	}

	if c.WhatsApp.Enabled && c.WhatsApp.StorePath == "" {
		c.WhatsApp.StorePath = "whatsapp.db"
	}

	if c.Capture.Enabled && c.Capture.RetentionDays <= 0 {
		c.Capture.RetentionDays = 30
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate %v out of [0,1]", c.Tracing.SamplingRate)
	}

	return nil
}

// Duration is a time.Duration that unmarshals from "10m" style strings or
// integer nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var ns int64
		if err := unmarshal(&ns); err != nil {
			return fmt.Errorf("duration must be a string like \"30s\" or integer nanoseconds")
		}
		*d = Duration(ns)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
