package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/gaffer-sh/gaffer/internal/config"
	"github.com/gaffer-sh/gaffer/internal/gate"
	"github.com/gaffer-sh/gaffer/internal/ghexec"
	"github.com/gaffer-sh/gaffer/internal/lockfile"
	"github.com/gaffer-sh/gaffer/internal/logging"
	"github.com/gaffer-sh/gaffer/internal/state"
)

// app bundles the long-lived components a command needs, wired from the
// effective configuration. Commands construct one, use it, and Close it.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	locks  *lockfile.Manager
	gate   *gate.Gate
	store  *state.Store
}

// newApp loads and validates configuration, then wires the coordination
// components against the configured directory.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Coordination.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create coordination directory: %w", err)
	}

	logger, err := logging.New(cfg.Coordination.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		locks: lockfile.NewManager(cfg.Coordination.Dir,
			lockfile.WithTimeout(cfg.LockTimeout()),
			lockfile.WithLogger(logger),
		),
		gate:  gate.New(cfg.Coordination.Dir, gate.WithLogger(logger)),
		store: state.NewStore(cfg.Coordination.Dir, state.WithLogger(logger)),
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// ghRunner builds the retrying executor for the gh CLI from config.
func (a *app) ghRunner() *ghexec.Runner {
	return ghexec.NewRunner(a.cfg.GH.Binary,
		ghexec.WithCallTimeout(a.cfg.CallTimeout()),
		ghexec.WithMaxAttempts(a.cfg.Retry.MaxAttempts),
		ghexec.WithBackoff(a.cfg.BaseDelay(), a.cfg.MaxDelay(), a.cfg.Jitter()),
		ghexec.WithRunnerLogger(a.logger),
	)
}

// agentRunner builds the executor for the coding agent. Agent runs are
// never retried automatically; a failed run is an outcome, not a blip.
func (a *app) agentRunner() *ghexec.Runner {
	timeout := time.Duration(a.cfg.Agent.TimeoutMinutes) * time.Minute
	return ghexec.NewRunner(a.cfg.Agent.Command,
		ghexec.WithCallTimeout(timeout),
		ghexec.WithMaxAttempts(1),
		ghexec.WithRunnerLogger(a.logger),
	)
}

// requireRepo fails fast when a board command runs without a configured
// repository.
func (a *app) requireRepo() error {
	if a.cfg.Board.Repo == "" {
		return fmt.Errorf("no repository configured: set board.repo or GAFFER_BOARD_REPO")
	}
	return nil
}

// newSessionID generates a unique identifier for this worker invocation.
func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d-%d", os.Getpid(), time.Now().UnixNano())
	}
	return fmt.Sprintf("session-%d-%s", os.Getpid(), hex.EncodeToString(b))
}
