package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/schema"
)

// Progress tracks the issue currently being worked, so a crashed run can
// be picked up where it stopped.
type Progress struct {
	IssueNumber int       `json:"issue_number"`
	SessionID   string    `json:"session_id"`
	Stage       string    `json:"stage"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Worker stages recorded in the progress file.
const (
	StageClaimed   = "claimed"
	StageAgent     = "agent"
	StageReview    = "review"
	StageFinishing = "finishing"
)

// progressSchema validates the progress file. A single required record:
// no recovery defaults, a corrupt progress file is surfaced, not guessed at.
var progressSchema = schema.Schema{
	Name: "progress",
	Fields: map[string]schema.Field{
		"issue_number": {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1)},
		"session_id":   {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
		"stage": {
			Type: schema.TypeString, Required: true,
			Enum: []string{StageClaimed, StageAgent, StageReview, StageFinishing},
		},
		"updated_at": {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
	},
}

// SaveProgress records the current worker position.
func (s *Store) SaveProgress(p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	return s.writeJSON(ProgressFileName, p)
}

// LoadProgress returns the recorded position, or nil when no run is in
// progress.
func (s *Store) LoadProgress() (*Progress, error) {
	data, err := s.readFile(ProgressFileName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	path := filepath.Join(s.dir, ProgressFileName)
	obj, err := schema.ParseObject(data)
	if err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}

	res := schema.Validate(obj, progressSchema, schema.Options{})
	if !res.Valid {
		return nil, errors.NewRecordError(path, firstPath(res.Errors),
			errors.New("progress record failed validation"))
	}

	var p Progress
	if err := remap(res.Data, &p); err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}
	return &p, nil
}

// ClearProgress removes the progress file. Safe when none exists.
func (s *Store) ClearProgress() error {
	path := filepath.Join(s.dir, ProgressFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewFileError("delete", path, err)
	}
	return nil
}
