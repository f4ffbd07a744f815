package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gaffer-sh/gaffer/internal/lockfile"
	"github.com/gaffer-sh/gaffer/internal/util"
	"github.com/spf13/cobra"
)

var (
	locksJSON    bool
	releaseForce bool
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and manage task locks",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all task locks with staleness",
	RunE:  runLocksList,
}

var locksReleaseCmd = &cobra.Command{
	Use:   "release <issue-number>",
	Short: "Release the lock for an issue",
	Long: `Release removes the lock file for an issue. Without --force only the
owning session may release; --force removes the lock regardless of
owner, for recovering from crashed workers.`,
	Args: cobra.ExactArgs(1),
	RunE: runLocksRelease,
}

func init() {
	locksListCmd.Flags().BoolVar(&locksJSON, "json", false, "output as JSON")
	locksReleaseCmd.Flags().BoolVarP(&releaseForce, "force", "f", false, "release regardless of owner")
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksReleaseCmd)
	rootCmd.AddCommand(locksCmd)
}

// lockView is the JSON shape for one listed lock.
type lockView struct {
	IssueNumber  int        `json:"issue_number"`
	SessionID    string     `json:"session_id,omitempty"`
	PID          int        `json:"pid,omitempty"`
	AcquiredAt   *time.Time `json:"acquired_at,omitempty"`
	HeartbeatAge string     `json:"heartbeat_age,omitempty"`
	Stale        bool       `json:"stale"`
	PIDAlive     bool       `json:"pid_alive"`
	Corrupt      bool       `json:"corrupt,omitempty"`
	Path         string     `json:"path"`
}

func runLocksList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.locks.List()
	if err != nil {
		return err
	}

	if locksJSON {
		views := make([]lockView, 0, len(infos))
		for _, info := range infos {
			views = append(views, toLockView(info))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No task locks."))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-8s %-28s %-8s %-12s %s", "ISSUE", "SESSION", "PID", "HEARTBEAT", "STATUS")))
	for _, info := range infos {
		if info.Corrupt {
			issue := "?"
			if n, ok := lockfile.IssueFromPath(info.Path); ok {
				issue = fmt.Sprintf("#%d", n)
			}
			fmt.Fprintf(out, "%-8s %s\n", issue, errorStyle.Render(fmt.Sprintf("corrupt: %v", info.Err)))
			continue
		}

		rec := info.Record
		status := activeStyle.Render("active")
		if info.Stale {
			status = staleStyle.Render("stale")
		}
		alive := ""
		if !info.PIDAlive {
			alive = dimStyle.Render(" (pid dead)")
		}
		fmt.Fprintf(out, "%-8s %-28s %-8d %-12s %s%s\n",
			fmt.Sprintf("#%d", rec.IssueNumber),
			util.TruncateString(rec.SessionID, 28),
			rec.PID,
			formatAge(rec.Age(time.Now())),
			status,
			alive,
		)
	}
	return nil
}

func runLocksRelease(cmd *cobra.Command, args []string) error {
	issueNumber, err := parseIssueNumber(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if releaseForce {
		removed, err := a.locks.ForceRelease(issueNumber)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "No lock held for issue #%d.\n", issueNumber)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Force-released lock for issue #%d.\n", issueNumber)
		return nil
	}

	// Without --force the caller must name the owning session; an
	// interactive operator almost always wants --force instead.
	holder, err := a.locks.Holder(issueNumber)
	if err != nil {
		return err
	}
	if holder == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No lock held for issue #%d.\n", issueNumber)
		return nil
	}
	return fmt.Errorf("lock for issue #%d is held by session %s; use --force to remove it", issueNumber, holder.SessionID)
}

func toLockView(info lockfile.Info) lockView {
	v := lockView{
		Path:     info.Path,
		Stale:    info.Stale,
		PIDAlive: info.PIDAlive,
		Corrupt:  info.Corrupt,
	}
	if info.Record != nil {
		v.IssueNumber = info.Record.IssueNumber
		v.SessionID = info.Record.SessionID
		v.PID = info.Record.PID
		v.AcquiredAt = &info.Record.AcquiredAt
		v.HeartbeatAge = formatAge(info.Record.Age(time.Now()))
	} else if n, ok := lockfile.IssueFromPath(info.Path); ok {
		v.IssueNumber = n
	}
	return v
}

// formatAge renders a duration in coarse human units.
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

// parseIssueNumber parses a positive issue number argument.
func parseIssueNumber(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid issue number %q", arg)
	}
	return n, nil
}
