package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gaffer-sh/gaffer/internal/board"
	"github.com/gaffer-sh/gaffer/internal/errors"
	"github.com/gaffer-sh/gaffer/internal/logging"
	"github.com/gaffer-sh/gaffer/internal/state"
	"github.com/spf13/cobra"
)

var (
	workCount int
	workLimit int
)

var workCmd = &cobra.Command{
	Use:   "work [issue-number]",
	Short: "Claim and work ready issues from the board",
	Long: `Work fetches open issues carrying the ready label, claims one via a
task lock, runs the coding agent for it, and records the outcome. The
lock is heartbeated for the duration of the run so concurrent workers
and stale-lock recovery stay accurate.

With an issue number argument only that issue is worked, whether or not
it carries the ready label.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWork,
}

func init() {
	workCmd.Flags().IntVarP(&workCount, "count", "n", 1, "number of issues to work before exiting")
	workCmd.Flags().IntVar(&workLimit, "limit", 10, "number of candidate issues to fetch from the board")
	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireRepo(); err != nil {
		return err
	}

	sessionID := newSessionID()
	logger := a.logger.WithSession(sessionID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.gate.CheckReady(); err != nil {
		if errors.Is(err, errors.ErrPaused) {
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow is paused: %v\n", err)
			return nil
		}
		return err
	}

	client := board.NewClient(a.ghRunner(), a.cfg.Board.Repo, board.WithLogger(logger))

	var issues []board.Issue
	if len(args) == 1 {
		issueNumber, err := parseIssueNumber(args[0])
		if err != nil {
			return err
		}
		issue, err := client.ViewIssue(ctx, issueNumber)
		if err != nil {
			return err
		}
		issues = []board.Issue{*issue}
	} else {
		issues, err = client.NextIssues(ctx, a.cfg.Board.ReadyLabel, workLimit)
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No ready issues on the board.")
			return nil
		}
	}

	w := &worker{app: a, client: client, sessionID: sessionID, logger: logger}

	stats := state.SessionStats{
		SessionID: sessionID,
		StartedAt: time.Now(),
	}
	if err := a.store.AppendStats(stats); err != nil {
		logger.Warn("failed to record session start", "error", err)
	}

	worked := 0
	for _, issue := range issues {
		if worked >= workCount {
			break
		}
		if ctx.Err() != nil {
			break
		}

		// The pause gate is re-checked between issues so an operator
		// pause takes effect without killing the worker.
		if err := a.gate.CheckReady(); err != nil {
			if errors.Is(err, errors.ErrPaused) {
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow paused, stopping: %v\n", err)
				break
			}
			return err
		}

		ok, err := w.workIssue(ctx, issue)
		if err != nil {
			logger.Error("issue run failed", "issue", issue.Number, "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "Issue #%d failed: %v\n", issue.Number, err)
		}
		if ok {
			worked++
			stats.IssuesCompleted++
			fmt.Fprintf(cmd.OutOrStdout(), "Completed issue #%d: %s\n", issue.Number, issue.Title)
		}
	}

	now := time.Now()
	stats.EndedAt = &now
	if err := a.store.UpdateStats(stats); err != nil {
		logger.Warn("failed to record session end", "error", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session %s finished: %d issue(s) completed.\n", sessionID, worked)
	return nil
}

// worker carries the per-session pieces of the work loop.
type worker struct {
	app       *app
	client    *board.Client
	sessionID string
	logger    *logging.Logger
}

// workIssue claims, runs, and settles one issue. The bool reports whether
// the issue was completed; a false with nil error means it was skipped
// (lock held elsewhere, approval pending).
func (w *worker) workIssue(ctx context.Context, issue board.Issue) (bool, error) {
	a := w.app
	start := time.Now()

	// Approval gate first: skipping before locking keeps rejected issues
	// from churning through lock acquisition on every run.
	if a.cfg.Board.RequireApproval {
		if _, err := a.gate.RequestApproval(issue.Number); err != nil {
			return false, err
		}
		if err := a.gate.CheckApproved(issue.Number); err != nil {
			if errors.Is(err, errors.ErrApprovalPending) {
				w.logger.Info("skipping issue awaiting approval", "issue", issue.Number)
				return false, nil
			}
			if errors.Is(err, errors.ErrApprovalRejected) {
				w.logger.Info("skipping rejected issue", "issue", issue.Number)
				w.recordOutcome(issue.Number, 1, start, state.OutcomeSkipped)
				return false, nil
			}
			return false, err
		}
	}

	res, err := a.locks.Acquire(issue.Number, w.sessionID, false)
	if err != nil {
		return false, err
	}
	if !res.Acquired {
		if res.Holder != nil {
			w.logger.Info("issue already claimed",
				"issue", issue.Number,
				"holder", res.Holder.SessionID,
			)
		}
		return false, nil
	}

	hb := a.locks.StartHeartbeat(issue.Number, w.sessionID, a.cfg.HeartbeatInterval())
	defer func() {
		hb.Stop()
		if _, err := a.locks.Release(issue.Number, w.sessionID); err != nil {
			w.logger.Warn("failed to release lock", "issue", issue.Number, "error", err)
		}
	}()

	w.saveProgress(issue.Number, state.StageClaimed)
	if err := w.client.Comment(ctx, issue.Number,
		fmt.Sprintf("🤖 Claimed by session `%s`.", w.sessionID)); err != nil {
		w.logger.Warn("failed to post claim comment", "issue", issue.Number, "error", err)
	}

	w.saveProgress(issue.Number, state.StageAgent)
	if err := w.runAgent(ctx, issue); err != nil {
		w.recordOutcome(issue.Number, 1, start, state.OutcomeFailed)
		w.clearProgress()
		return false, fmt.Errorf("agent run for issue #%d failed: %w", issue.Number, err)
	}

	w.saveProgress(issue.Number, state.StageFinishing)
	if err := w.client.Comment(ctx, issue.Number,
		fmt.Sprintf("✅ Completed by session `%s`.", w.sessionID)); err != nil {
		w.logger.Warn("failed to post completion comment", "issue", issue.Number, "error", err)
	}
	w.client.RemoveLabel(ctx, issue.Number, a.cfg.Board.ReadyLabel)

	w.recordOutcome(issue.Number, 1, start, state.OutcomeCompleted)
	w.clearProgress()
	if a.cfg.Board.RequireApproval {
		if err := a.gate.ClearApproval(issue.Number); err != nil {
			w.logger.Warn("failed to clear approval record", "issue", issue.Number, "error", err)
		}
	}
	return true, nil
}

// runAgent invokes the coding agent for the issue. Output streams into
// the log rather than the terminal; the agent owns its own retries.
func (w *worker) runAgent(ctx context.Context, issue board.Issue) error {
	prompt := fmt.Sprintf(
		"Work GitHub issue #%d in %s: %s\nIssue URL: %s\nImplement the change, run the tests, and open a pull request referencing the issue.",
		issue.Number, w.app.cfg.Board.Repo, issue.Title, issue.URL,
	)

	out, err := w.app.agentRunner().Execute(ctx, "-p", prompt)
	if err != nil {
		return err
	}
	w.logger.Info("agent run finished", "issue", issue.Number, "output_bytes", len(out))
	return nil
}

// saveProgress persists the current stage for crash diagnostics.
func (w *worker) saveProgress(issueNumber int, stage string) {
	err := w.app.store.SaveProgress(state.Progress{
		IssueNumber: issueNumber,
		SessionID:   w.sessionID,
		Stage:       stage,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		w.logger.Warn("failed to save progress", "issue", issueNumber, "error", err)
	}
}

func (w *worker) clearProgress() {
	if err := w.app.store.ClearProgress(); err != nil {
		w.logger.Warn("failed to clear progress", "error", err)
	}
}

// recordOutcome appends a task metric; metric failures never fail a task.
func (w *worker) recordOutcome(issueNumber, attempts int, start time.Time, outcome string) {
	err := w.app.store.RecordTask(state.TaskMetric{
		IssueNumber:     issueNumber,
		Attempts:        attempts,
		DurationSeconds: time.Since(start).Seconds(),
		Outcome:         outcome,
		RecordedAt:      time.Now(),
	})
	if err != nil {
		w.logger.Warn("failed to record task metric", "issue", issueNumber, "error", err)
	}
}
