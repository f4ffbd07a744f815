package state

import (
	"path/filepath"
	"time"

	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/schema"
)

// SessionStats is one per-session record in the stats file.
type SessionStats struct {
	SessionID       string     `json:"session_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	IssuesCompleted int        `json:"issues_completed"`
	PRsOpened       int        `json:"prs_opened"`
	GigachadMerges  int        `json:"gigachad_merges"`
}

// statsSchema validates one session-stat record. The counters default to
// zero so records written by older versions remain loadable under
// recovery.
var statsSchema = schema.Schema{
	Name: "session_stats",
	Fields: map[string]schema.Field{
		"session_id":       {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
		"started_at":       {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
		"ended_at":         {Type: schema.TypeString},
		"issues_completed": {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(0), Default: float64(0), HasDefault: true},
		"prs_opened":       {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(0), Default: float64(0), HasDefault: true},
		"gigachad_merges":  {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(0), Default: float64(0), HasDefault: true},
	},
}

// StatsSchema exposes the record schema for validation-focused callers.
func StatsSchema() schema.Schema {
	return statsSchema
}

// LoadStats reads the stats file and validates every record. Under
// recovery, records with recoverable field problems are repaired from
// defaults and unrecoverable records are dropped with a warning; without
// recovery any bad record fails the load.
func (s *Store) LoadStats(recover bool) ([]SessionStats, error) {
	data, err := s.readFile(StatsFileName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	path := filepath.Join(s.dir, StatsFileName)
	items, err := schema.ParseArray(data)
	if err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}

	res := schema.ValidateArray(items, statsSchema, schema.Options{Recover: recover})
	if !res.Valid {
		if !recover {
			return nil, errors.NewRecordError(path, firstPath(res.Errors),
				errors.New("stats record failed validation"))
		}
		s.logger.Warn("dropped invalid session stats records",
			"path", path,
			"kept", len(res.Data),
			"total", len(items),
		)
	}

	var stats []SessionStats
	if err := remap(res.Data, &stats); err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}
	return stats, nil
}

// SaveStats replaces the stats file with the given records.
func (s *Store) SaveStats(stats []SessionStats) error {
	if stats == nil {
		stats = []SessionStats{}
	}
	return s.writeJSON(StatsFileName, stats)
}

// AppendStats adds one record. Existing records load with recovery so a
// single historical corruption never blocks new sessions from recording.
func (s *Store) AppendStats(rec SessionStats) error {
	stats, err := s.LoadStats(true)
	if err != nil {
		return err
	}
	return s.SaveStats(append(stats, rec))
}

// UpdateStats rewrites the record with the matching session id, or
// appends it when absent.
func (s *Store) UpdateStats(rec SessionStats) error {
	stats, err := s.LoadStats(true)
	if err != nil {
		return err
	}

	for i := range stats {
		if stats[i].SessionID == rec.SessionID {
			stats[i] = rec
			return s.SaveStats(stats)
		}
	}
	return s.SaveStats(append(stats, rec))
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
