// Package internal contains cross-package tests that exercise a full
// worker lifecycle against one shared coordination directory: claiming an
// issue, gating, heartbeating, recording state, and releasing.
package internal

import (
	"testing"
	"time"

	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/gate"
	"github.com/gaffer-sh/gaffer/internal/lockfile"
	"github.com/gaffer-sh/gaffer/internal/state"
)

// TestWorkerLifecycle drives one issue through the full coordination
// flow the way the work command does.
func TestWorkerLifecycle(t *testing.T) {
	dir := t.TempDir()
	locks := lockfile.NewManager(dir)
	g := gate.New(dir)
	store := state.NewStore(dir)

	if err := g.CheckReady(); err != nil {
		t.Fatalf("CheckReady() error = %v", err)
	}

	res, err := locks.Acquire(42, "session-1", false)
	if err != nil || !res.Acquired {
		t.Fatalf("Acquire() = %+v, %v", res, err)
	}

	hb := locks.StartHeartbeat(42, "session-1", 10*time.Millisecond)

	start := time.Now()
	stages := []string{state.StageClaimed, state.StageAgent, state.StageFinishing}
	for _, stage := range stages {
		err := store.SaveProgress(state.Progress{
			IssueNumber: 42,
			SessionID:   "session-1",
			Stage:       stage,
		})
		if err != nil {
			t.Fatalf("SaveProgress(%s) error = %v", stage, err)
		}
	}

	p, err := store.LoadProgress()
	if err != nil {
		t.Fatalf("LoadProgress() error = %v", err)
	}
	if p.Stage != state.StageFinishing {
		t.Errorf("Stage = %q, want finishing", p.Stage)
	}

	err = store.RecordTask(state.TaskMetric{
		IssueNumber:     42,
		Attempts:        1,
		DurationSeconds: time.Since(start).Seconds(),
		Outcome:         state.OutcomeCompleted,
	})
	if err != nil {
		t.Fatalf("RecordTask() error = %v", err)
	}
	if err := store.ClearProgress(); err != nil {
		t.Fatalf("ClearProgress() error = %v", err)
	}

	hb.Stop()
	released, err := locks.Release(42, "session-1")
	if err != nil || !released {
		t.Fatalf("Release() = %v, %v", released, err)
	}

	// The directory is clean for the next worker.
	if res, err := locks.Acquire(42, "session-2", false); err != nil || !res.Acquired {
		t.Fatalf("reacquire = %+v, %v", res, err)
	}
	mf, err := store.LoadMetrics(false)
	if err != nil {
		t.Fatalf("LoadMetrics() error = %v", err)
	}
	if len(mf.Tasks) != 1 || mf.Tasks[0].Outcome != state.OutcomeCompleted {
		t.Errorf("metrics = %+v", mf.Tasks)
	}
}

// TestPauseGatesAcrossComponents confirms a pause written by one Gate is
// observed by a fresh Gate against the same directory, the cross-process
// shape of the coordination contract.
func TestPauseGatesAcrossComponents(t *testing.T) {
	dir := t.TempDir()

	if err := gate.New(dir).Pause("deploy freeze", nil); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	if err := gate.New(dir).CheckReady(); !errors.Is(err, errors.ErrPaused) {
		t.Fatalf("CheckReady() error = %v, want ErrPaused", err)
	}

	if err := gate.New(dir).Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := gate.New(dir).CheckReady(); err != nil {
		t.Errorf("CheckReady() after resume error = %v", err)
	}
}

// TestStaleTakeoverAfterCrash simulates a crashed worker whose heartbeat
// stopped: a second worker force-acquires once the record ages out.
func TestStaleTakeoverAfterCrash(t *testing.T) {
	dir := t.TempDir()

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	locks := lockfile.NewManager(dir, lockfile.WithClock(clock))

	if res, err := locks.Acquire(7, "session-crashed", false); err != nil || !res.Acquired {
		t.Fatalf("Acquire() = %+v, %v", res, err)
	}

	// A fresh manager (separate process in real life) sees the lock as
	// stale once the heartbeat ages past the timeout.
	later := now.Add(3 * time.Hour)
	takeover := lockfile.NewManager(dir, lockfile.WithClock(func() time.Time { return later }))

	res, err := takeover.Acquire(7, "session-new", true)
	if err != nil {
		t.Fatalf("force Acquire() error = %v", err)
	}
	if !res.Acquired {
		t.Fatal("takeover of stale lock failed")
	}
	if res.Holder.SessionID != "session-new" {
		t.Errorf("holder = %q, want session-new", res.Holder.SessionID)
	}
}
