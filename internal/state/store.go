// Package state persists gaffer's operational files (session stats, task
// metrics, progress) as plain JSON under the coordination directory. Any
// reader or writer, in any language, interoperates as long as it respects
// the atomic-write contract.
//
// Collections load with per-record recovery: these files accrete over
// many runs and tool versions, and one bad record must not make the whole
// history unreadable.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gaffer-sh/gaffer/internal/atomicfile"
	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/logging"
)

// File names within the coordination directory.
const (
	StatsFileName    = "stats.json"
	MetricsFileName  = "metrics.json"
	ProgressFileName = "progress.json"
)

// MetricsVersion is the current metrics container format version.
const MetricsVersion = 1

// DefaultRetentionDays bounds how long task metrics are kept.
const DefaultRetentionDays = 30

// Store reads and writes the operational files for one coordination
// directory.
type Store struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for recovery diagnostics.
func WithLogger(l *logging.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store rooted at the coordination directory.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:    dir,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// writeJSON marshals v and persists it through the atomic write path.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewFileError("mkdir", s.dir, err)
	}
	if err := atomicfile.SafeWriteFile(path, data, 0644, atomicfile.DefaultOptions()); err != nil {
		return errors.NewFileError("write", path, err)
	}
	return nil
}

// readFile loads a file's raw bytes; a missing file returns (nil, nil).
func (s *Store) readFile(name string) ([]byte, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewFileError("read", path, err)
	}
	return data, nil
}

// remap converts generic validated data back into a typed value through a
// JSON round trip.
func remap(from any, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}
