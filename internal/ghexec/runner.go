package ghexec

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os/exec"
	"strings"
	"time"

	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/logging"
)

// Defaults for the retry loop.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultJitter      = 500 * time.Millisecond
	DefaultCallTimeout = 10 * time.Second
)

// Observer is notified before each retry wait with the attempt that just
// failed, its error, and the computed delay. Purely diagnostic.
type Observer func(attempt int, err error, delay time.Duration)

// Runner invokes an external CLI with a per-call timeout and classified
// retry. The zero value is not usable; construct with NewRunner.
type Runner struct {
	binary      string
	callTimeout time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      time.Duration
	observer    Observer
	logger      *logging.Logger

	// Injected for tests: the sleep between attempts and the command
	// invocation itself.
	sleep func(time.Duration)
	run   func(ctx context.Context, binary string, args []string) (string, error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCallTimeout sets the per-invocation timeout.
func WithCallTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.callTimeout = d }
}

// WithMaxAttempts sets the total number of invocation attempts.
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) { r.maxAttempts = n }
}

// WithBackoff sets the exponential backoff parameters.
func WithBackoff(base, max, jitter time.Duration) RunnerOption {
	return func(r *Runner) {
		r.baseDelay = base
		r.maxDelay = max
		r.jitter = jitter
	}
}

// WithObserver registers a diagnostic callback invoked before each wait.
func WithObserver(obs Observer) RunnerOption {
	return func(r *Runner) { r.observer = obs }
}

// WithRunnerLogger sets the logger for retry diagnostics.
func WithRunnerLogger(l *logging.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// withSleep overrides the inter-attempt sleep. Test hook.
func withSleep(sleep func(time.Duration)) RunnerOption {
	return func(r *Runner) { r.sleep = sleep }
}

// withInvoker overrides command invocation. Test hook.
func withInvoker(run func(ctx context.Context, binary string, args []string) (string, error)) RunnerOption {
	return func(r *Runner) { r.run = run }
}

// NewRunner creates a Runner for the given binary (typically "gh").
func NewRunner(binary string, opts ...RunnerOption) *Runner {
	r := &Runner{
		binary:      binary,
		callTimeout: DefaultCallTimeout,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		jitter:      DefaultJitter,
		logger:      logging.Nop(),
		sleep:       time.Sleep,
	}
	r.run = r.invoke
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the command once with the per-call timeout. The captured
// stdout is returned on success; on failure the error text carries stderr
// so classification can see the transport's message.
func (r *Runner) Execute(ctx context.Context, args ...string) (string, error) {
	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	return r.run(callCtx, r.binary, args)
}

// invoke is the real command invocation behind Execute.
func (r *Runner) invoke(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command %s timed out after %s: %w", binary, r.callTimeout, errors.ErrTimeout)
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = strings.TrimSpace(stdout.String())
	}
	if msg == "" {
		return "", fmt.Errorf("command %s failed: %w", binary, err)
	}
	return "", fmt.Errorf("command %s failed: %s: %w", binary, msg, err)
}

// ExecuteWithRetry runs the command, classifying each failure and
// retrying recoverable ones with exponential backoff. A rate-limit
// classification's server-suggested wait takes precedence over computed
// backoff, capped at the maximum delay. Non-recoverable errors and
// exhausted attempts surface immediately as a CommandError carrying the
// classification and attempt count.
func (r *Runner) ExecuteWithRetry(ctx context.Context, args ...string) (string, error) {
	commandName := r.binary + " " + strings.Join(args, " ")

	var lastErr error
	var lastClass Classification
	attemptsMade := 0

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := r.Execute(ctx, args...)
		if err == nil {
			return out, nil
		}

		lastErr = err
		lastClass = Classify(err)
		attemptsMade = attempt

		if !lastClass.Recoverable || attempt == r.maxAttempts {
			break
		}

		delay := r.delayFor(lastClass, attempt)
		if r.observer != nil {
			r.observer(attempt, err, delay)
		}
		r.logger.Warn("command failed, retrying",
			"command", r.binary,
			"attempt", attempt,
			"type", lastClass.Type,
			"delay", delay.String(),
		)
		r.sleep(delay)
	}

	return "", errors.NewCommandError(commandName, lastClass.Type, lastClass.Recoverable, attemptsMade, lastErr)
}

// SafeExecute is ExecuteWithRetry for call sites where the external
// operation is optional: the final exhausted or permanent error is logged
// and swallowed, and an empty output is returned instead.
func (r *Runner) SafeExecute(ctx context.Context, args ...string) string {
	out, err := r.ExecuteWithRetry(ctx, args...)
	if err != nil {
		r.logger.Warn("optional command failed",
			"command", r.binary,
			"error", err,
		)
		return ""
	}
	return out
}

// delayFor computes the wait before the next attempt.
func (r *Runner) delayFor(class Classification, attempt int) time.Duration {
	if class.Type == TypeRateLimit && class.RetryAfter > 0 {
		if class.RetryAfter > r.maxDelay {
			return r.maxDelay
		}
		return class.RetryAfter
	}

	delay := r.baseDelay * (1 << (attempt - 1))
	if r.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(r.jitter)))
	}
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}
