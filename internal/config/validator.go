package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.timeout_minutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// repoRegex validates owner/name repository references
var repoRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all
// validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateGH()...)
	errors = append(errors, c.validateBoard()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateLock validates the LockConfig
func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	if c.Lock.TimeoutMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.timeout_minutes",
			Value:   c.Lock.TimeoutMinutes,
			Message: "must be positive",
		})
	}

	// A holder must heartbeat several times within one timeout window or
	// it will look stale while still working.
	if c.Lock.HeartbeatIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.heartbeat_interval_seconds",
			Value:   c.Lock.HeartbeatIntervalSeconds,
			Message: "must be positive",
		})
	} else if c.Lock.TimeoutMinutes > 0 && c.Lock.HeartbeatIntervalSeconds >= c.Lock.TimeoutMinutes*60 {
		errors = append(errors, ValidationError{
			Field:   "lock.heartbeat_interval_seconds",
			Value:   c.Lock.HeartbeatIntervalSeconds,
			Message: fmt.Sprintf("must be shorter than lock.timeout_minutes (%d minutes)", c.Lock.TimeoutMinutes),
		})
	}

	return errors
}

// validateRetry validates the RetryConfig
func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	const maxAttemptsLimit = 10
	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Retry.MaxAttempts > maxAttemptsLimit {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxAttemptsLimit),
		})
	}

	if c.Retry.BaseDelayMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.base_delay_ms",
			Value:   c.Retry.BaseDelayMs,
			Message: "must be positive",
		})
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		errors = append(errors, ValidationError{
			Field:   "retry.max_delay_ms",
			Value:   c.Retry.MaxDelayMs,
			Message: "must be at least retry.base_delay_ms",
		})
	}
	if c.Retry.JitterMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.jitter_ms",
			Value:   c.Retry.JitterMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateGH validates the GHConfig
func (c *Config) validateGH() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.GH.Binary) == "" {
		errors = append(errors, ValidationError{
			Field:   "gh.binary",
			Value:   c.GH.Binary,
			Message: "cannot be empty",
		})
	}

	const maxCallTimeout = 600
	if c.GH.CallTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "gh.call_timeout_seconds",
			Value:   c.GH.CallTimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.GH.CallTimeoutSeconds > maxCallTimeout {
		errors = append(errors, ValidationError{
			Field:   "gh.call_timeout_seconds",
			Value:   c.GH.CallTimeoutSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxCallTimeout),
		})
	}

	return errors
}

// validateBoard validates the BoardConfig
func (c *Config) validateBoard() []ValidationError {
	var errors []ValidationError

	// Repo may be empty for purely local commands (locks, pause); board
	// commands check for it at the call site.
	if c.Board.Repo != "" && !repoRegex.MatchString(c.Board.Repo) {
		errors = append(errors, ValidationError{
			Field:   "board.repo",
			Value:   c.Board.Repo,
			Message: "must be in owner/name form",
		})
	}

	if strings.TrimSpace(c.Board.ReadyLabel) == "" {
		errors = append(errors, ValidationError{
			Field:   "board.ready_label",
			Value:   c.Board.ReadyLabel,
			Message: "cannot be empty",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
