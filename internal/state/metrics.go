package state

import (
	"path/filepath"
	"time"

	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/schema"
)

// TaskMetric records one worked task.
type TaskMetric struct {
	IssueNumber     int       `json:"issue_number"`
	Attempts        int       `json:"attempts"`
	DurationSeconds float64   `json:"duration_seconds"`
	Outcome         string    `json:"outcome"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Task outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// MetricsFile is the persisted metrics container.
type MetricsFile struct {
	Version       int          `json:"version"`
	LastUpdated   time.Time    `json:"last_updated"`
	RetentionDays int          `json:"retention_days"`
	Tasks         []TaskMetric `json:"tasks"`
}

// taskMetricSchema validates one task metric element.
var taskMetricSchema = schema.Schema{
	Name: "task_metric",
	Fields: map[string]schema.Field{
		"issue_number":     {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1)},
		"attempts":         {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1), Default: float64(1), HasDefault: true},
		"duration_seconds": {Type: schema.TypeNumber, Required: true, Min: floatPtr(0), Default: float64(0), HasDefault: true},
		"outcome": {
			Type: schema.TypeString, Required: true,
			Enum: []string{OutcomeCompleted, OutcomeFailed, OutcomeSkipped},
		},
		"recorded_at": {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
	},
}

// metricsSchema validates the container. The tasks field is validated
// per-element separately so one bad task never discards the rest.
var metricsSchema = schema.Schema{
	Name: "metrics_file",
	Fields: map[string]schema.Field{
		"version":        {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1), Default: float64(MetricsVersion), HasDefault: true},
		"last_updated":   {Type: schema.TypeString, Required: true, MinLength: intPtr(1)},
		"retention_days": {Type: schema.TypeNumber, Required: true, Integer: true, Min: floatPtr(1), Default: float64(DefaultRetentionDays), HasDefault: true},
		"tasks":          {Type: schema.TypeArray, Required: true},
	},
}

// TaskMetricSchema exposes the element schema for validation-focused callers.
func TaskMetricSchema() schema.Schema {
	return taskMetricSchema
}

// LoadMetrics reads and validates the metrics container. Under recovery,
// container fields repair from defaults and invalid task elements are
// dropped individually.
func (s *Store) LoadMetrics(recover bool) (*MetricsFile, error) {
	data, err := s.readFile(MetricsFileName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &MetricsFile{
			Version:       MetricsVersion,
			LastUpdated:   s.now(),
			RetentionDays: DefaultRetentionDays,
		}, nil
	}

	path := filepath.Join(s.dir, MetricsFileName)
	obj, err := schema.ParseObject(data)
	if err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}

	res := schema.Validate(obj, metricsSchema, schema.Options{Recover: recover})
	if !res.Valid {
		return nil, errors.NewRecordError(path, firstPath(res.Errors),
			errors.New("metrics container failed validation"))
	}

	rawTasks, _ := res.Data["tasks"].([]any)
	taskRes := schema.ValidateArray(rawTasks, taskMetricSchema, schema.Options{Recover: recover})
	if !taskRes.Valid {
		if !recover {
			return nil, errors.NewRecordError(path, firstPath(taskRes.Errors),
				errors.New("task metric failed validation"))
		}
		s.logger.Warn("dropped invalid task metrics",
			"path", path,
			"kept", len(taskRes.Data),
			"total", len(rawTasks),
		)
	}

	var mf MetricsFile
	res.Data["tasks"] = taskRes.Data
	if err := remap(res.Data, &mf); err != nil {
		return nil, errors.NewRecordError(path, "", err)
	}
	return &mf, nil
}

// SaveMetrics persists the container, refreshing its last_updated stamp.
func (s *Store) SaveMetrics(mf *MetricsFile) error {
	if mf.Version == 0 {
		mf.Version = MetricsVersion
	}
	if mf.RetentionDays == 0 {
		mf.RetentionDays = DefaultRetentionDays
	}
	if mf.Tasks == nil {
		mf.Tasks = []TaskMetric{}
	}
	mf.LastUpdated = s.now()
	return s.writeJSON(MetricsFileName, mf)
}

// RecordTask appends a metric and prunes entries older than the
// container's retention window.
func (s *Store) RecordTask(metric TaskMetric) error {
	mf, err := s.LoadMetrics(true)
	if err != nil {
		return err
	}

	if metric.RecordedAt.IsZero() {
		metric.RecordedAt = s.now()
	}
	mf.Tasks = append(mf.Tasks, metric)
	mf.Tasks = pruneTasks(mf.Tasks, s.now(), mf.RetentionDays)

	return s.SaveMetrics(mf)
}

// pruneTasks drops metrics recorded before the retention cutoff.
func pruneTasks(tasks []TaskMetric, now time.Time, retentionDays int) []TaskMetric {
	cutoff := now.AddDate(0, 0, -retentionDays)

	kept := tasks[:0]
	for _, t := range tasks {
		if t.RecordedAt.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
