package ghexec

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gaffer-sh/gaffer/internal/errors"
)

// scriptedInvoker returns canned results per attempt and records calls.
type scriptedInvoker struct {
	results []error
	outputs []string
	calls   int
}

func (s *scriptedInvoker) run(ctx context.Context, binary string, args []string) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	if s.results[i] != nil {
		return "", s.results[i]
	}
	if i < len(s.outputs) {
		return s.outputs[i], nil
	}
	return "", nil
}

// sleepRecorder captures the delays the retry loop requested.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.delays = append(s.delays, d)
}

func newTestRunner(inv *scriptedInvoker, rec *sleepRecorder, opts ...RunnerOption) *Runner {
	base := []RunnerOption{
		withInvoker(inv.run),
		withSleep(rec.sleep),
		WithBackoff(time.Millisecond, 100*time.Millisecond, 0),
	}
	return NewRunner("gh", append(base, opts...)...)
}

func TestExecuteWithRetrySuccessFirstTry(t *testing.T) {
	inv := &scriptedInvoker{results: []error{nil}, outputs: []string{"ok"}}
	rec := &sleepRecorder{}
	r := newTestRunner(inv, rec)

	out, err := r.ExecuteWithRetry(context.Background(), "issue", "list")
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if out != "ok" {
		t.Errorf("output = %q, want ok", out)
	}
	if inv.calls != 1 {
		t.Errorf("calls = %d, want 1", inv.calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %d times on immediate success", len(rec.delays))
	}
}

func TestExecuteWithRetryRecoversFromTransientFailures(t *testing.T) {
	inv := &scriptedInvoker{
		results: []error{
			fmt.Errorf("HTTP 503: Service Unavailable"),
			fmt.Errorf("HTTP 502: Bad Gateway"),
			nil,
		},
		outputs: []string{"", "", "done"},
	}
	rec := &sleepRecorder{}
	r := newTestRunner(inv, rec)

	out, err := r.ExecuteWithRetry(context.Background(), "issue", "list")
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if out != "done" {
		t.Errorf("output = %q, want done", out)
	}
	if inv.calls != 3 {
		t.Errorf("calls = %d, want 3", inv.calls)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(rec.delays))
	}
	// Exponential without jitter: base, then 2x base.
	if rec.delays[0] != time.Millisecond || rec.delays[1] != 2*time.Millisecond {
		t.Errorf("delays = %v, want [1ms 2ms]", rec.delays)
	}
}

func TestExecuteWithRetryPermanentFailsImmediately(t *testing.T) {
	inv := &scriptedInvoker{results: []error{fmt.Errorf("HTTP 401: Bad credentials")}}
	rec := &sleepRecorder{}
	r := newTestRunner(inv, rec)

	_, err := r.ExecuteWithRetry(context.Background(), "issue", "list")
	if err == nil {
		t.Fatal("ExecuteWithRetry() expected error, got nil")
	}
	if inv.calls != 1 {
		t.Errorf("calls = %d, want 1 for permanent failure", inv.calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %d times for permanent failure", len(rec.delays))
	}

	var cmdErr *errors.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error %T is not a CommandError", err)
	}
	if cmdErr.Type != TypeAuthError {
		t.Errorf("Type = %q, want auth_error", cmdErr.Type)
	}
	if cmdErr.Recoverable {
		t.Error("Recoverable = true for auth error")
	}
	if cmdErr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", cmdErr.Attempts)
	}
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	inv := &scriptedInvoker{results: []error{fmt.Errorf("HTTP 503: Service Unavailable")}}
	rec := &sleepRecorder{}
	r := newTestRunner(inv, rec, WithMaxAttempts(3))

	_, err := r.ExecuteWithRetry(context.Background(), "issue", "list")
	if err == nil {
		t.Fatal("ExecuteWithRetry() expected error, got nil")
	}
	if inv.calls != 3 {
		t.Errorf("calls = %d, want 3", inv.calls)
	}
	if len(rec.delays) != 2 {
		t.Errorf("slept %d times, want 2 (no sleep after final attempt)", len(rec.delays))
	}

	var cmdErr *errors.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error %T is not a CommandError", err)
	}
	if cmdErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", cmdErr.Attempts)
	}
	if !cmdErr.Recoverable {
		t.Error("Recoverable = false; exhausted server errors stay classified recoverable")
	}
}

func TestExecuteWithRetryHonorsRetryAfter(t *testing.T) {
	inv := &scriptedInvoker{
		results: []error{
			fmt.Errorf("rate limit exceeded, retry after: 5"),
			nil,
		},
		outputs: []string{"", "ok"},
	}
	rec := &sleepRecorder{}
	r := newTestRunner(inv, rec, WithBackoff(time.Millisecond, time.Minute, 0))

	if _, err := r.ExecuteWithRetry(context.Background(), "issue", "list"); err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if len(rec.delays) != 1 {
		t.Fatalf("slept %d times, want 1", len(rec.delays))
	}
	if rec.delays[0] != 5*time.Second {
		t.Errorf("delay = %v, want server-suggested 5s", rec.delays[0])
	}
}

func TestExecuteWithRetryCapsRetryAfterAtMaxDelay(t *testing.T) {
	inv := &scriptedInvoker{
		results: []error{
			fmt.Errorf("rate limit exceeded, retry after: 300"),
			nil,
		},
		outputs: []string{"", "ok"},
	}
	rec := &sleepRecorder{}
	r := newTestRunner(inv, rec, WithBackoff(time.Millisecond, 2*time.Second, 0))

	if _, err := r.ExecuteWithRetry(context.Background(), "issue", "list"); err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if len(rec.delays) != 1 {
		t.Fatalf("slept %d times, want 1", len(rec.delays))
	}
	if rec.delays[0] != 2*time.Second {
		t.Errorf("delay = %v, want capped 2s", rec.delays[0])
	}
}

func TestExecuteWithRetryObserver(t *testing.T) {
	inv := &scriptedInvoker{
		results: []error{fmt.Errorf("HTTP 503: Service Unavailable"), nil},
		outputs: []string{"", "ok"},
	}
	rec := &sleepRecorder{}

	var observed []int
	r := newTestRunner(inv, rec, WithObserver(func(attempt int, err error, delay time.Duration) {
		observed = append(observed, attempt)
	}))

	if _, err := r.ExecuteWithRetry(context.Background(), "issue", "list"); err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if len(observed) != 1 || observed[0] != 1 {
		t.Errorf("observed attempts = %v, want [1]", observed)
	}
}

func TestSafeExecuteSwallowsFailure(t *testing.T) {
	inv := &scriptedInvoker{results: []error{fmt.Errorf("HTTP 404: Not Found")}}
	rec := &sleepRecorder{}
	r := newTestRunner(inv, rec)

	out := r.SafeExecute(context.Background(), "issue", "edit")
	if out != "" {
		t.Errorf("SafeExecute() = %q, want empty on failure", out)
	}
}

func TestExecuteAppliesCallTimeout(t *testing.T) {
	var sawDeadline bool
	r := NewRunner("gh",
		WithCallTimeout(time.Minute),
		withInvoker(func(ctx context.Context, binary string, args []string) (string, error) {
			_, sawDeadline = ctx.Deadline()
			return "", nil
		}),
	)

	if _, err := r.Execute(context.Background(), "auth", "status"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !sawDeadline {
		t.Error("invocation context carried no deadline")
	}
}

func TestDelayForJitterBounds(t *testing.T) {
	r := NewRunner("gh", WithBackoff(10*time.Millisecond, time.Second, 5*time.Millisecond))

	for i := 0; i < 50; i++ {
		d := r.delayFor(Classification{Recoverable: true, Type: TypeServerError}, 1)
		if d < 10*time.Millisecond || d >= 15*time.Millisecond {
			t.Fatalf("delay %v outside [10ms, 15ms)", d)
		}
	}
}
