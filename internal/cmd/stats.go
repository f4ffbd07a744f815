package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gaffer-sh/gaffer/internal/state"
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session statistics and task metrics",
	Long: `Stats summarizes the session history and task metrics recorded in the
coordination directory. Records damaged by interrupted writes are
repaired with defaults where possible and dropped otherwise.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.LoadStats(true)
	if err != nil {
		return err
	}
	metrics, err := a.store.LoadMetrics(true)
	if err != nil {
		return err
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Sessions []state.SessionStats `json:"sessions"`
			Metrics  *state.MetricsFile   `json:"metrics,omitempty"`
		}{Sessions: stats, Metrics: metrics})
	}

	out := cmd.OutOrStdout()

	var completed, prs, merges int
	for _, s := range stats {
		completed += s.IssuesCompleted
		prs += s.PRsOpened
		merges += s.GigachadMerges
	}

	fmt.Fprintln(out, headerStyle.Render("Sessions"))
	fmt.Fprintf(out, "  Total sessions:   %d\n", len(stats))
	fmt.Fprintf(out, "  Issues completed: %d\n", completed)
	fmt.Fprintf(out, "  PRs opened:       %d\n", prs)
	fmt.Fprintf(out, "  Gigachad merges:  %d\n", merges)

	if len(stats) > 0 {
		last := stats[len(stats)-1]
		fmt.Fprintf(out, "  Last session:     %s (started %s)\n",
			last.SessionID, last.StartedAt.Format(time.RFC3339))
	}

	if metrics == nil || len(metrics.Tasks) == 0 {
		fmt.Fprintln(out, dimStyle.Render("\nNo task metrics recorded."))
		return nil
	}

	var done, failed, skipped int
	var totalDur float64
	for _, t := range metrics.Tasks {
		totalDur += t.DurationSeconds
		switch t.Outcome {
		case state.OutcomeCompleted:
			done++
		case state.OutcomeFailed:
			failed++
		case state.OutcomeSkipped:
			skipped++
		}
	}

	fmt.Fprintln(out, headerStyle.Render("\nTasks"))
	fmt.Fprintf(out, "  %s  %s  %s\n",
		activeStyle.Render(fmt.Sprintf("%d completed", done)),
		errorStyle.Render(fmt.Sprintf("%d failed", failed)),
		dimStyle.Render(fmt.Sprintf("%d skipped", skipped)),
	)
	if n := len(metrics.Tasks); n > 0 {
		fmt.Fprintf(out, "  Average duration: %s\n", formatAge(time.Duration(totalDur/float64(n)*float64(time.Second))))
	}
	fmt.Fprintf(out, "  Retention:        %d days\n", metrics.RetentionDays)
	return nil
}
