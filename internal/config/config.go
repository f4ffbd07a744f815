// Package config defines gaffer's configuration, loaded through viper
// from a YAML file, environment variables (GAFFER_ prefix), and flags.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete gaffer configuration
type Config struct {
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Lock         LockConfig         `mapstructure:"lock"`
	Retry        RetryConfig        `mapstructure:"retry"`
	GH           GHConfig           `mapstructure:"gh"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Board        BoardConfig        `mapstructure:"board"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// CoordinationConfig locates the shared coordination directory
type CoordinationConfig struct {
	// Dir is the coordination root shared by all workers (default: .gaffer)
	Dir string `mapstructure:"dir"`
}

// LockConfig controls task lock behavior
type LockConfig struct {
	// TimeoutMinutes is the heartbeat age after which a lock is stale (default: 120)
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	// HeartbeatIntervalSeconds is how often a holder refreshes its lock (default: 30)
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
}

// RetryConfig controls the external command retry loop
type RetryConfig struct {
	// MaxAttempts is the total invocation budget per command (default: 3)
	MaxAttempts int `mapstructure:"max_attempts"`
	// BaseDelayMs seeds the exponential backoff (default: 1000)
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	// MaxDelayMs caps any single wait, including server-suggested ones (default: 30000)
	MaxDelayMs int `mapstructure:"max_delay_ms"`
	// JitterMs is the random spread added to each computed delay (default: 500)
	JitterMs int `mapstructure:"jitter_ms"`
}

// GHConfig controls how the gh CLI is invoked
type GHConfig struct {
	// Binary is the gh executable name or path (default: "gh")
	Binary string `mapstructure:"binary"`
	// CallTimeoutSeconds bounds each individual invocation (default: 10)
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds"`
}

// AgentConfig controls the external coding agent invocation
type AgentConfig struct {
	// Command is the agent executable (default: "claude")
	Command string `mapstructure:"command"`
	// TimeoutMinutes bounds one agent run per issue (0 = unlimited)
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// BoardConfig identifies the project board being worked
type BoardConfig struct {
	// Repo is the owner/name repository whose board drives the workflow
	Repo string `mapstructure:"repo"`
	// ReadyLabel marks issues that are actionable (default: "ready")
	ReadyLabel string `mapstructure:"ready_label"`
	// RequireApproval holds each issue for operator approval before work starts
	RequireApproval bool `mapstructure:"require_approval"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: "info")
	Level string `mapstructure:"level"`
}

// SetDefaults registers default values with viper. Called before any
// config file is read so defaults apply even without one.
func SetDefaults() {
	viper.SetDefault("coordination.dir", ".gaffer")

	viper.SetDefault("lock.timeout_minutes", 120)
	viper.SetDefault("lock.heartbeat_interval_seconds", 30)

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay_ms", 1000)
	viper.SetDefault("retry.max_delay_ms", 30000)
	viper.SetDefault("retry.jitter_ms", 500)

	viper.SetDefault("gh.binary", "gh")
	viper.SetDefault("gh.call_timeout_seconds", 10)

	viper.SetDefault("agent.command", "claude")
	viper.SetDefault("agent.timeout_minutes", 0)

	viper.SetDefault("board.ready_label", "ready")
	viper.SetDefault("board.require_approval", false)

	viper.SetDefault("logging.level", "info")
}

// Load unmarshals the current viper state into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigDir returns the directory searched for the config file.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gaffer")
}

// LockTimeout returns the staleness timeout as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutMinutes) * time.Minute
}

// HeartbeatInterval returns the heartbeat refresh interval as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Lock.HeartbeatIntervalSeconds) * time.Second
}

// BaseDelay returns the retry base delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap as a duration.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// Jitter returns the retry jitter as a duration.
func (c *Config) Jitter() time.Duration {
	return time.Duration(c.Retry.JitterMs) * time.Millisecond
}

// CallTimeout returns the per-invocation gh timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.GH.CallTimeoutSeconds) * time.Second
}
