// Package atomicfile provides crash-safe file writes for gaffer's
// coordination directory. Writes go to a uniquely-named temporary file in
// the same directory as the target, then rename onto it, so concurrent
// readers observe either the fully-old or fully-new content and never a
// partial write.
package atomicfile

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// WriteFile writes data to path atomically. The temporary file is created
// in the same directory as path (rename is only atomic within a single
// filesystem). On any failure the temporary file is removed best-effort
// and the original error is returned; the target file is never touched by
// a failed write.
//
// Two concurrent writers to the same path race safely: each writes its own
// temporary file and the last rename wins. Callers that need exclusivity
// must hold a lock first.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, tempName(filepath.Base(path)))

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Options controls the retry behavior of SafeWriteFile.
type Options struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Zero means a single attempt.
	MaxRetries int
	// RetryDelay is the base delay between attempts. The actual wait is
	// RetryDelay * attempt number (linear backoff).
	RetryDelay time.Duration
}

// DefaultOptions returns the retry options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}
}

// SafeWriteFile wraps WriteFile in a retry loop for transient filesystem
// errors (resource busy, try again, too many open files). Non-transient
// errors and retry exhaustion surface immediately with the final error.
func SafeWriteFile(path string, data []byte, perm os.FileMode, opts Options) error {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		lastErr = WriteFile(path, data, perm)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == opts.MaxRetries+1 {
			return lastErr
		}
		time.Sleep(opts.RetryDelay * time.Duration(attempt))
	}
	return lastErr
}

// IsTransient reports whether err is a filesystem error worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}

// tempName builds a collision-resistant temporary file name so concurrent
// writers never share a temp file: pid + timestamp + random token.
func tempName(base string) string {
	return fmt.Sprintf(".%s.tmp-%d-%d-%s", base, os.Getpid(), time.Now().UnixNano(), randomToken())
}

// randomToken returns a short random hex string. Falls back to a
// timestamp-derived token if the system entropy source fails.
func randomToken() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b)
}
