package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gaffer-sh/gaffer/internal/atomicfile"
	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/logging"
	"github.com/gaffer-sh/gaffer/internal/schema"
)

// LocksDirName is the subdirectory of the coordination directory that
// holds one lock file per issue.
const LocksDirName = "locks"

// DefaultTimeout is the heartbeat age beyond which a lock is stale.
const DefaultTimeout = 120 * time.Minute

// Record is the persisted ownership claim for one issue.
type Record struct {
	IssueNumber   int       `json:"issue_number"`
	SessionID     string    `json:"session_id"`
	PID           int       `json:"pid"`
	AcquiredAt    time.Time `json:"acquired_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Age returns how long ago the record's heartbeat was refreshed.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.LastHeartbeat)
}

// AcquireResult reports the outcome of an acquisition attempt. Losing the
// race is a normal negative result, not an error: Acquired is false and
// Holder carries the current owner when it could be read.
type AcquireResult struct {
	Acquired bool
	Holder   *Record
}

// Info describes one lock as seen by List, with staleness computed at
// read time. Corrupt entries are reported as anomalies rather than
// silently hidden.
type Info struct {
	Path     string
	Record   *Record
	Stale    bool
	PIDAlive bool
	Corrupt  bool
	Err      error
}

// Manager coordinates per-issue lock files under one coordination
// directory. All configuration is explicit: no process-wide state, so
// tests can run managers against scratch directories in isolation.
type Manager struct {
	dir     string
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the staleness timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithLogger sets the logger used for lock lifecycle events.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock overrides the time source. Tests use this to age heartbeats
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager rooted at the given coordination directory.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:     dir,
		timeout: DefaultTimeout,
		logger:  logging.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout returns the configured staleness timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// lockPath returns the deterministic lock file path for an issue.
func (m *Manager) lockPath(issueNumber int) string {
	return filepath.Join(m.dir, LocksDirName, fmt.Sprintf("%d.lock", issueNumber))
}

// Acquire attempts to claim the lock for an issue. Creation uses O_EXCL
// semantics so exactly one of any set of racing processes wins; losers
// get Acquired=false immediately (acquisition is try-once, any polling
// policy belongs to the caller).
//
// When force is true and the current holder is stale, the stale record is
// deleted and acquisition is retried once with a fresh create. An
// existing lock that cannot be read or validated is treated as a foreign,
// unreadable lock: not acquired, no holder detail.
func (m *Manager) Acquire(issueNumber int, sessionID string, force bool) (AcquireResult, error) {
	if issueNumber <= 0 {
		return AcquireResult{}, fmt.Errorf("%w: issue number must be positive", errors.ErrInvalidInput)
	}
	if sessionID == "" {
		return AcquireResult{}, fmt.Errorf("%w: session id cannot be empty", errors.ErrInvalidInput)
	}

	path := m.lockPath(issueNumber)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return AcquireResult{}, errors.NewFileError("mkdir", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		return m.writeFreshRecord(f, path, issueNumber, sessionID)
	}
	if !os.IsExist(err) {
		return AcquireResult{}, errors.NewFileError("create", path, err)
	}

	// Another session holds (or held) this issue. Read the record to
	// decide; an unreadable record is reported without guessing at the
	// holder.
	holder, readErr := m.readRecord(path)
	if readErr != nil {
		m.logger.Warn("existing lock is unreadable",
			"issue", issueNumber,
			"path", path,
			"error", readErr,
		)
		return AcquireResult{Acquired: false}, nil
	}

	if force && m.IsStale(holder) {
		m.logger.Warn("evicting stale lock",
			"issue", issueNumber,
			"holder_session", holder.SessionID,
			"heartbeat_age", m.now().Sub(holder.LastHeartbeat).String(),
		)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return AcquireResult{}, errors.NewFileError("delete", path, err)
		}
		return m.acquireFresh(issueNumber, sessionID)
	}

	return AcquireResult{Acquired: false, Holder: holder}, nil
}

// acquireFresh retries creation once after a stale eviction. Another
// process may win the new race; that loss is reported normally.
func (m *Manager) acquireFresh(issueNumber int, sessionID string) (AcquireResult, error) {
	path := m.lockPath(issueNumber)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, readErr := m.readRecord(path)
			if readErr != nil {
				return AcquireResult{Acquired: false}, nil
			}
			return AcquireResult{Acquired: false, Holder: holder}, nil
		}
		return AcquireResult{}, errors.NewFileError("create", path, err)
	}
	return m.writeFreshRecord(f, path, issueNumber, sessionID)
}

// writeFreshRecord fills a just-created lock file with a new record. The
// O_EXCL create is what decides the race; the record itself is written
// through the same atomic path as every other mutation so readers never
// see a half-written claim.
func (m *Manager) writeFreshRecord(f *os.File, path string, issueNumber int, sessionID string) (AcquireResult, error) {
	f.Close()

	now := m.now()
	rec := &Record{
		IssueNumber:   issueNumber,
		SessionID:     sessionID,
		PID:           os.Getpid(),
		AcquiredAt:    now,
		LastHeartbeat: now,
	}

	if err := m.writeRecord(path, rec); err != nil {
		os.Remove(path)
		return AcquireResult{}, err
	}

	m.logger.Info("lock acquired",
		"issue", issueNumber,
		"session_id", sessionID,
		"pid", rec.PID,
	)
	return AcquireResult{Acquired: true, Holder: rec}, nil
}

// Heartbeat refreshes the holder's last_heartbeat timestamp. It returns
// false if no lock exists for the issue or the stored session id does not
// match the caller; a session never heartbeats someone else's lock.
func (m *Manager) Heartbeat(issueNumber int, sessionID string) (bool, error) {
	path := m.lockPath(issueNumber)

	rec, err := m.readRecord(path)
	if err != nil {
		if errors.Is(err, errors.ErrLockNotFound) {
			return false, nil
		}
		return false, err
	}
	if rec.SessionID != sessionID {
		return false, nil
	}

	rec.LastHeartbeat = m.now()
	if rec.LastHeartbeat.Before(rec.AcquiredAt) {
		// A clock that moved backwards must not break the
		// last_heartbeat >= acquired_at invariant.
		rec.LastHeartbeat = rec.AcquiredAt
	}

	if err := m.writeRecord(path, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Release deletes the lock only if the stored session id matches the
// caller. Returns false, leaving the file unchanged, when ownership does
// not match or no lock exists.
func (m *Manager) Release(issueNumber int, sessionID string) (bool, error) {
	path := m.lockPath(issueNumber)

	rec, err := m.readRecord(path)
	if err != nil {
		if errors.Is(err, errors.ErrLockNotFound) {
			return false, nil
		}
		return false, err
	}
	if rec.SessionID != sessionID {
		return false, nil
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewFileError("delete", path, err)
	}

	m.logger.Info("lock released",
		"issue", issueNumber,
		"session_id", sessionID,
	)
	return true, nil
}

// ForceRelease deletes the lock unconditionally, ignoring ownership.
// Intended for administrative stale cleanup.
func (m *Manager) ForceRelease(issueNumber int) (bool, error) {
	path := m.lockPath(issueNumber)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewFileError("delete", path, err)
	}

	m.logger.Warn("lock force-released", "issue", issueNumber)
	return true, nil
}

// IsStale reports whether the record's heartbeat has aged past the
// timeout. Heartbeat age is authoritative; pid liveness never overrides
// it, since a hung-but-alive process must remain evictable.
func (m *Manager) IsStale(rec *Record) bool {
	return m.now().Sub(rec.LastHeartbeat) > m.timeout
}

// List enumerates every lock file in the coordination directory, sorted
// by issue number. Validation runs with recovery disabled: a corrupt lock
// entry is surfaced as an anomaly, never silently repaired.
func (m *Manager) List() ([]Info, error) {
	locksDir := filepath.Join(m.dir, LocksDirName)

	entries, err := os.ReadDir(locksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewFileError("read", locksDir, err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}

		path := filepath.Join(locksDir, entry.Name())
		rec, err := m.readRecord(path)
		if err != nil {
			if errors.Is(err, errors.ErrLockNotFound) {
				continue // deleted between ReadDir and read
			}
			infos = append(infos, Info{Path: path, Corrupt: true, Err: err})
			continue
		}

		infos = append(infos, Info{
			Path:     path,
			Record:   rec,
			Stale:    m.IsStale(rec),
			PIDAlive: isProcessAlive(rec.PID),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		var a, b int
		if infos[i].Record != nil {
			a = infos[i].Record.IssueNumber
		}
		if infos[j].Record != nil {
			b = infos[j].Record.IssueNumber
		}
		return a < b
	})
	return infos, nil
}

// Holder returns the current record for an issue, or nil when no lock
// exists.
func (m *Manager) Holder(issueNumber int) (*Record, error) {
	rec, err := m.readRecord(m.lockPath(issueNumber))
	if err != nil {
		if errors.Is(err, errors.ErrLockNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// sessionIDPattern bounds what a session id may look like on disk.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// recordSchema validates a raw lock record before it is trusted. The lock
// for the exact issue being acquired is a single required record, so
// recovery is never enabled here: silent substitution would undermine the
// mutual-exclusion invariant.
var recordSchema = schema.Schema{
	Name: "lock_record",
	Fields: map[string]schema.Field{
		"issue_number": {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1)},
		"session_id":   {Type: schema.TypeString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(128), Pattern: sessionIDPattern},
		"pid":          {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1)},
		"acquired_at":  {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
		"last_heartbeat": {
			Type: schema.TypeString, Required: true, MinLength: intPtr(1),
		},
	},
}

// readRecord loads and validates one lock record. Missing files map to
// ErrLockNotFound; anything unparsable or schema-invalid maps to a
// RecordError with a sanitized preview.
func (m *Manager) readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrLockNotFound
		}
		return nil, errors.NewFileError("read", path, err)
	}

	obj, err := schema.ParseObject(data)
	if err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}

	res := schema.Validate(obj, recordSchema, schema.Options{})
	if !res.Valid {
		return nil, errors.NewRecordError(path, firstErrorPath(res.Errors),
			fmt.Errorf("lock record failed validation: %s", res.Errors[0].Error()))
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}
	return &rec, nil
}

// writeRecord persists a record through the atomic write path with
// transient-error retries.
func (m *Manager) writeRecord(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock record: %w", err)
	}
	if err := atomicfile.SafeWriteFile(path, data, 0644, atomicfile.DefaultOptions()); err != nil {
		return errors.NewFileError("write", path, err)
	}
	return nil
}

// firstErrorPath extracts the first failing field path for diagnostics.
func firstErrorPath(errs []schema.FieldError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Path
}

// isProcessAlive checks whether a pid still exists by sending signal 0.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// IssueFromPath parses the issue number out of a lock file name. Used by
// administrative commands that operate on paths reported by List.
func IssueFromPath(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), ".lock")
	n, err := strconv.Atoi(base)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
