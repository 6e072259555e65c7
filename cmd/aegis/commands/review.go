package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/gate"
	"github.com/aegisd/aegis/internal/suspend"
	"github.com/aegisd/aegis/internal/tui"
)

func newApprovalReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <suspension_id>",
		Short: "Review a suspension interactively",
		Long:  `Opens an interactive session to step through every pending call in a suspension, decide each one, pick a decision scope, and resume the batch. Calls left undecided are denied for this batch only.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalReview,
	}
	cmd.Flags().String("by", "", "Reviewer identity recorded in the audit log (required)")
	cmd.MarkFlagRequired("by")
	return cmd
}

func runApprovalReview(cmd *cobra.Command, args []string) error {
	by, _ := cmd.Flags().GetString("by")
	if by == "" {
		return fmt.Errorf("--by is required")
	}

	cfg, workspacePath, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}
	components, err := buildGateComponents(cfg, workspacePath, nil)
	if err != nil {
		return err
	}
	defer components.close()

	rec, err := components.suspensions.Get(args[0])
	if err != nil {
		return err
	}
	if rec.Status != suspend.StatusPending {
		return fmt.Errorf("suspension %s is %s", rec.ID, rec.Status)
	}

	outcome, err := tui.RunReview(rec)
	if err != nil {
		return err
	}
	if !outcome.Submitted {
		fmt.Println("Review aborted. Suspension left pending.")
		return nil
	}

	input := gate.ResumeInput{
		SuspensionID: rec.ID,
		DecidedBy:    by,
		PerCall:      make(map[string]gate.Decision),
	}
	for callID, dec := range outcome.Decisions {
		if !dec.Decided {
			continue
		}
		input.PerCall[callID] = gate.Decision{
			Approved: dec.Approved,
			Scope:    dec.Scope,
			Reason:   dec.Reason,
		}
	}

	result, err := components.gate.Resume(context.Background(), input)
	if err != nil {
		return err
	}

	fmt.Printf("Suspension %s resolved.\n", rec.ID)
	for _, call := range result.Results {
		line := fmt.Sprintf("  %s  %s  %s", call.CallID, call.Tool, call.Disposition)
		if call.Reason != "" {
			line += fmt.Sprintf(" (%s)", call.Reason)
		}
		fmt.Println(line)
	}
	return nil
}
