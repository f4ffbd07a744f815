package cmd

import (
	"fmt"
	"time"

	"github.com/gaffer-sh/gaffer/internal/gate"
	"github.com/gaffer-sh/gaffer/internal/util"
	"github.com/spf13/cobra"
)

var rejectReason string

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review and decide per-issue approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval records",
	RunE:  runApprovalsList,
}

var approveCmd = &cobra.Command{
	Use:   "approve <issue-number>",
	Short: "Approve a pending issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <issue-number>",
	Short: "Reject a pending issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

func init() {
	rejectCmd.Flags().StringVarP(&rejectReason, "reason", "r", "", "reason recorded with the rejection")
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approveCmd)
	approvalsCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(approvalsCmd)
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	approvals, err := a.gate.ListApprovals()
	if err != nil {
		return err
	}
	if len(approvals) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No approval records."))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-8s %-10s %-22s %s", "ISSUE", "STATUS", "REQUESTED", "REASON")))
	for _, approval := range approvals {
		fmt.Fprintf(out, "%-8s %s %-22s %s\n",
			fmt.Sprintf("#%d", approval.IssueNumber),
			approvalStatusCell(approval.Status, 10),
			approval.RequestedAt.Format(time.RFC3339),
			util.TruncateANSI(dimStyle.Render(approval.Reason), 48),
		)
	}
	return nil
}

// approvalStatusCell renders the status column styled and padded to the
// column width by display width, so the escape sequences the styles emit
// don't skew the table.
func approvalStatusCell(status gate.ApprovalStatus, width int) string {
	style := staleStyle
	switch status {
	case gate.StatusApproved:
		style = activeStyle
	case gate.StatusRejected:
		style = errorStyle
	}
	return util.PadANSI(style.Render(string(status)), width)
}

func runApprove(cmd *cobra.Command, args []string) error {
	issueNumber, err := parseIssueNumber(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.gate.Approve(issueNumber); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Approved issue #%d.\n", issueNumber)
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	issueNumber, err := parseIssueNumber(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.gate.Reject(issueNumber, rejectReason); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rejected issue #%d.\n", issueNumber)
	return nil
}
