package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestSetDefaultsProduceValidConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config fails validation: %v", errs)
	}

	if cfg.Coordination.Dir != ".gaffer" {
		t.Errorf("coordination.dir = %q, want .gaffer", cfg.Coordination.Dir)
	}
	if cfg.Lock.TimeoutMinutes != 120 {
		t.Errorf("lock.timeout_minutes = %d, want 120", cfg.Lock.TimeoutMinutes)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry.max_attempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.GH.Binary != "gh" {
		t.Errorf("gh.binary = %q, want gh", cfg.GH.Binary)
	}
	if cfg.Board.ReadyLabel != "ready" {
		t.Errorf("board.ready_label = %q, want ready", cfg.Board.ReadyLabel)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{
		Lock:  LockConfig{TimeoutMinutes: 120, HeartbeatIntervalSeconds: 30},
		Retry: RetryConfig{BaseDelayMs: 1000, MaxDelayMs: 30000, JitterMs: 500},
		GH:    GHConfig{CallTimeoutSeconds: 10},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{name: "lock timeout", got: cfg.LockTimeout(), want: 120 * time.Minute},
		{name: "heartbeat interval", got: cfg.HeartbeatInterval(), want: 30 * time.Second},
		{name: "base delay", got: cfg.BaseDelay(), want: time.Second},
		{name: "max delay", got: cfg.MaxDelay(), want: 30 * time.Second},
		{name: "jitter", got: cfg.Jitter(), want: 500 * time.Millisecond},
		{name: "call timeout", got: cfg.CallTimeout(), want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()
	viper.Set("lock.timeout_minutes", 45)
	viper.Set("board.repo", "octo/repo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Lock.TimeoutMinutes != 45 {
		t.Errorf("lock.timeout_minutes = %d, want 45", cfg.Lock.TimeoutMinutes)
	}
	if cfg.Board.Repo != "octo/repo" {
		t.Errorf("board.repo = %q, want octo/repo", cfg.Board.Repo)
	}
}
