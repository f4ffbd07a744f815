package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pauseReason string
	pauseFor    time.Duration
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the automated workflow",
	Long: `Pause writes a directory-wide pause lock. Workers refuse to start new
issues while it exists. With --for, the pause expires on its own and
the next worker cleans it up.`,
	RunE: runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the automated workflow",
	RunE:  runResume,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the workflow is paused",
	RunE:  runStatus,
}

func init() {
	pauseCmd.Flags().StringVarP(&pauseReason, "reason", "r", "", "reason shown to workers and operators")
	pauseCmd.Flags().DurationVar(&pauseFor, "for", 0, "auto-resume after this duration (e.g. 2h)")
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
}

func runPause(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var resumeAt *time.Time
	if pauseFor > 0 {
		t := time.Now().Add(pauseFor)
		resumeAt = &t
	}
	if err := a.gate.Pause(pauseReason, resumeAt); err != nil {
		return err
	}

	if resumeAt != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow paused until %s.\n", resumeAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Workflow paused.")
	}
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.gate.Resume(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Workflow resumed.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lock, err := a.gate.PauseState()
	if err != nil {
		return err
	}
	if lock == nil {
		fmt.Fprintln(cmd.OutOrStdout(), activeStyle.Render("Workflow is running."))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, staleStyle.Render("Workflow is paused."))
	fmt.Fprintf(out, "  Since:  %s\n", lock.PausedAt.Format(time.RFC3339))
	if lock.Reason != "" {
		fmt.Fprintf(out, "  Reason: %s\n", lock.Reason)
	}
	if lock.ResumeAt != nil {
		fmt.Fprintf(out, "  Until:  %s\n", lock.ResumeAt.Format(time.RFC3339))
	}
	return nil
}
