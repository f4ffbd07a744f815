// Package gate implements operator-controlled holds on the automated
// workflow: a directory-wide pause lock and per-issue approval records.
// Both are plain JSON files under the coordination directory so any
// worker invocation, from any machine sharing the directory, observes
// the same gates.
package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gaffer-sh/gaffer/internal/atomicfile"
	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/logging"
	"github.com/gaffer-sh/gaffer/internal/schema"
)

// PauseFileName is the pause lock within the coordination directory.
const PauseFileName = "pause.lock"

// PauseLock records a directory-wide hold on the workflow.
type PauseLock struct {
	PausedAt time.Time  `json:"paused_at"`
	Reason   string     `json:"reason,omitempty"`
	ResumeAt *time.Time `json:"resume_at,omitempty"`
}

// ApprovalStatus enumerates the states of an approval record.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Approval is one per-issue approval record, persisted as
// approval-<issue>.lock.
type Approval struct {
	IssueNumber int            `json:"issue_number"`
	Status      ApprovalStatus `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// pauseSchema validates the pause lock file.
var pauseSchema = schema.Schema{
	Name: "pause_lock",
	Fields: map[string]schema.Field{
		"paused_at": {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
		"reason":    {Type: schema.TypeString},
		"resume_at": {Type: schema.TypeString},
	},
}

// approvalSchema validates one approval record. Status defaults to
// pending so a record written before a decision field existed still
// loads under recovery.
var approvalSchema = schema.Schema{
	Name: "approval_lock",
	Fields: map[string]schema.Field{
		"issue_number": {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1)},
		"status": {
			Type: schema.TypeString, Required: true,
			Enum:    []string{string(StatusPending), string(StatusApproved), string(StatusRejected)},
			Default: string(StatusPending), HasDefault: true,
		},
		"requested_at": {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
		"decided_at":   {Type: schema.TypeString},
		"reason":       {Type: schema.TypeString},
	},
}

// Gate manages the pause and approval files for one coordination
// directory.
type Gate struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger for gate transitions.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a Gate rooted at the coordination directory.
func New(dir string, opts ...Option) *Gate {
	g := &Gate{
		dir:    dir,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// -----------------------------------------------------------------------------
// Pause lock
// -----------------------------------------------------------------------------

// Pause writes the pause lock. An existing pause is overwritten; pausing
// is idempotent from the operator's point of view.
func (g *Gate) Pause(reason string, resumeAt *time.Time) error {
	lock := PauseLock{
		PausedAt: g.now(),
		Reason:   reason,
		ResumeAt: resumeAt,
	}
	if err := g.writeJSON(PauseFileName, lock); err != nil {
		return err
	}
	g.logger.Info("workflow paused", "reason", reason)
	return nil
}

// Resume removes the pause lock. Safe when none exists.
func (g *Gate) Resume() error {
	path := filepath.Join(g.dir, PauseFileName)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewFileError("delete", path, err)
	}
	g.logger.Info("workflow resumed")
	return nil
}

// PauseState returns the active pause lock, or nil when the workflow is
// running. A pause whose resume_at has elapsed is treated as expired and
// cleaned up best-effort.
func (g *Gate) PauseState() (*PauseLock, error) {
	path := filepath.Join(g.dir, PauseFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewFileError("read", path, err)
	}

	obj, err := schema.ParseObject(data)
	if err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}
	res := schema.Validate(obj, pauseSchema, schema.Options{})
	if !res.Valid {
		return nil, errors.NewRecordError(path, firstPath(res.Errors),
			errors.New("pause lock failed validation"))
	}

	var lock PauseLock
	if err := remap(res.Data, &lock); err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}

	if lock.ResumeAt != nil && g.now().After(*lock.ResumeAt) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("failed to clean expired pause lock", "error", err)
		}
		return nil, nil
	}
	return &lock, nil
}

// CheckReady returns ErrPaused (with the pause reason attached) when the
// workflow is paused.
func (g *Gate) CheckReady() error {
	lock, err := g.PauseState()
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if lock.Reason != "" {
		return fmt.Errorf("%w: %s", errors.ErrPaused, lock.Reason)
	}
	return errors.ErrPaused
}

// -----------------------------------------------------------------------------
// Approval records
// -----------------------------------------------------------------------------

// approvalPath returns the record path for an issue.
func (g *Gate) approvalPath(issueNumber int) string {
	return filepath.Join(g.dir, fmt.Sprintf("approval-%d.lock", issueNumber))
}

// RequestApproval creates a pending approval record for the issue. An
// existing record is returned unchanged so repeated requests do not reset
// a decision already made.
func (g *Gate) RequestApproval(issueNumber int) (*Approval, error) {
	if existing, err := g.ApprovalStatus(issueNumber); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	approval := &Approval{
		IssueNumber: issueNumber,
		Status:      StatusPending,
		RequestedAt: g.now(),
	}
	if err := g.writeJSON(filepath.Base(g.approvalPath(issueNumber)), approval); err != nil {
		return nil, err
	}
	g.logger.Info("approval requested", "issue", issueNumber)
	return approval, nil
}

// Approve marks the issue's approval record approved.
func (g *Gate) Approve(issueNumber int) error {
	return g.decide(issueNumber, StatusApproved, "")
}

// Reject marks the issue's approval record rejected with a reason.
func (g *Gate) Reject(issueNumber int, reason string) error {
	return g.decide(issueNumber, StatusRejected, reason)
}

// decide transitions a pending approval to its final status.
func (g *Gate) decide(issueNumber int, status ApprovalStatus, reason string) error {
	approval, err := g.ApprovalStatus(issueNumber)
	if err != nil {
		return err
	}
	if approval == nil {
		return fmt.Errorf("%w: no approval record for issue %d", errors.ErrInvalidInput, issueNumber)
	}
	if approval.Status != StatusPending {
		return fmt.Errorf("%w: approval for issue %d already %s", errors.ErrInvalidInput, issueNumber, approval.Status)
	}

	now := g.now()
	approval.Status = status
	approval.DecidedAt = &now
	approval.Reason = reason

	if err := g.writeJSON(filepath.Base(g.approvalPath(issueNumber)), approval); err != nil {
		return err
	}
	g.logger.Info("approval decided", "issue", issueNumber, "status", string(status))
	return nil
}

// ApprovalStatus loads the approval record for an issue, or nil when no
// approval has been requested.
func (g *Gate) ApprovalStatus(issueNumber int) (*Approval, error) {
	path := g.approvalPath(issueNumber)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewFileError("read", path, err)
	}
	return g.parseApproval(path, data)
}

// CheckApproved maps an issue's approval state onto the workflow
// sentinels: nil when approved or no approval was ever requested,
// ErrApprovalPending or ErrApprovalRejected otherwise.
func (g *Gate) CheckApproved(issueNumber int) error {
	approval, err := g.ApprovalStatus(issueNumber)
	if err != nil {
		return err
	}
	if approval == nil {
		return nil
	}

	switch approval.Status {
	case StatusApproved:
		return nil
	case StatusRejected:
		if approval.Reason != "" {
			return fmt.Errorf("%w: %s", errors.ErrApprovalRejected, approval.Reason)
		}
		return errors.ErrApprovalRejected
	default:
		return errors.ErrApprovalPending
	}
}

// ClearApproval removes the approval record for an issue. Safe when none
// exists.
func (g *Gate) ClearApproval(issueNumber int) error {
	path := g.approvalPath(issueNumber)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewFileError("delete", path, err)
	}
	return nil
}

// ListApprovals enumerates all approval records in the coordination
// directory. Corrupt records are skipped with a warning; listing is a
// reporting surface, not a correctness one.
func (g *Gate) ListApprovals() ([]Approval, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewFileError("read", g.dir, err)
	}

	var approvals []Approval
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "approval-") || !strings.HasSuffix(name, ".lock") {
			continue
		}

		path := filepath.Join(g.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		approval, err := g.parseApproval(path, data)
		if err != nil {
			g.logger.Warn("skipping corrupt approval record", "path", path, "error", err)
			continue
		}
		approvals = append(approvals, *approval)
	}
	return approvals, nil
}

// parseApproval validates raw bytes as an approval record. Recovery is
// enabled: a missing status defaults to pending, which is the
// conservative reading.
func (g *Gate) parseApproval(path string, data []byte) (*Approval, error) {
	obj, err := schema.ParseObject(data)
	if err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}
	res := schema.Validate(obj, approvalSchema, schema.Options{Recover: true})
	if !res.Valid {
		return nil, errors.NewRecordError(path, firstPath(res.Errors),
			errors.New("approval record failed validation"))
	}

	var approval Approval
	if err := remap(res.Data, &approval); err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}
	return &approval, nil
}

// writeJSON persists a gate file through the atomic write path.
func (g *Gate) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	path := filepath.Join(g.dir, name)
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return errors.NewFileError("mkdir", g.dir, err)
	}
	if err := atomicfile.SafeWriteFile(path, data, 0644, atomicfile.DefaultOptions()); err != nil {
		return errors.NewFileError("write", path, err)
	}
	return nil
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

// firstPath extracts the first failing field path for diagnostics.
func firstPath(errs []schema.FieldError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Path
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
