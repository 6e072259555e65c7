package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/audit"
	"github.com/aegisd/aegis/internal/gate"
	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/render"
	"github.com/aegisd/aegis/internal/suspend"
)

func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Review and resolve suspended batches",
	}

	cmd.AddCommand(
		newApprovalListCmd(),
		newApprovalShowCmd(),
		newApprovalApproveCmd(),
		newApprovalDenyCmd(),
		newApprovalRevokeCmd(),
		newApprovalReviewCmd(),
	)

	return cmd
}

func newApprovalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suspensions awaiting a decision",
		RunE:  runApprovalList,
	}
	cmd.Flags().Bool("all", false, "Include resolved and expired suspensions")
	return cmd
}

func newApprovalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <suspension_id>",
		Short: "Show the full review payload for a suspension",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalShow,
	}
	cmd.Flags().Bool("raw", false, "Print plain markdown without terminal rendering")
	return cmd
}

func newApprovalApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <suspension_id>",
		Short: "Approve all pending calls in a suspension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalDecide(cmd, args[0], true)
		},
	}
	addDecisionFlags(cmd)
	return cmd
}

func newApprovalDenyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deny <suspension_id>",
		Short: "Deny all pending calls in a suspension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalDecide(cmd, args[0], false)
		},
	}
	addDecisionFlags(cmd)
	return cmd
}

func newApprovalRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a cached decision for an operation",
		RunE:  runApprovalRevoke,
	}
	cmd.Flags().String("conversation", "", "Conversation holding the cached decision")
	cmd.Flags().String("principal", "", "Principal holding the cached decision")
	cmd.Flags().String("operation", "", "Operation key to revoke (required)")
	cmd.MarkFlagRequired("operation")
	return cmd
}

func addDecisionFlags(cmd *cobra.Command) {
	cmd.Flags().String("by", "", "Reviewer identity recorded in the audit log (required)")
	cmd.Flags().String("scope", "once", "Decision scope (once|conversation|principal)")
	cmd.Flags().String("reason", "", "Optional note recorded with the decision")
	cmd.Flags().StringSlice("call", nil, "Restrict the decision to specific call ids; unlisted calls are denied for this batch")
	cmd.MarkFlagRequired("by")
}

func runApprovalList(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	_, workspacePath, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}
	svc := suspend.NewService(workspacePath)

	query := suspend.Query{}
	if !all {
		query.Status = suspend.StatusPending
	}
	records, err := svc.List(query)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		if all {
			fmt.Println("No suspensions.")
		} else {
			fmt.Println("No pending suspensions.")
		}
		return nil
	}

	var (
		headerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#8E4EC6")).
				Padding(0, 1).
				MarginBottom(1)

		wID      = 8
		wConv    = 22
		wItems   = 7
		wCreated = 20
		wStatus  = 10

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8E4EC6")).
				Bold(true).
				MarginRight(1)

		idStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(wID).
			MarginRight(1)

		convStyle = lipgloss.NewStyle().
				Width(wConv).
				MarginRight(1)

		itemsStyle = lipgloss.NewStyle().
				Width(wItems).
				MarginRight(1)

		createdStyle = lipgloss.NewStyle().
				Width(wCreated).
				MarginRight(1)

		statusStyleBase = lipgloss.NewStyle().
				Width(wStatus).
				MarginRight(1)

		pendingColor  = lipgloss.Color("#D4A017")
		resolvedColor = lipgloss.Color("#2E8B57")
		expiredColor  = lipgloss.Color("241")
	)

	fmt.Println(headerStyle.Render("Suspensions"))

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wID).Render("ID"),
		colHeaderStyle.Width(wConv).Render("CONVERSATION"),
		colHeaderStyle.Width(wItems).Render("ITEMS"),
		colHeaderStyle.Width(wCreated).Render("CREATED"),
		colHeaderStyle.Width(wStatus).Render("STATUS"),
	)
	fmt.Printf("  %s\n", headers)

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	separator := lipgloss.JoinHorizontal(lipgloss.Top,
		sepStyle.Render(strings.Repeat("─", wID)),
		sepStyle.Render(strings.Repeat("─", wConv)),
		sepStyle.Render(strings.Repeat("─", wItems)),
		sepStyle.Render(strings.Repeat("─", wCreated)),
		sepStyle.Render(strings.Repeat("─", wStatus)),
	)
	fmt.Printf("  %s\n", separator)

	for _, rec := range records {
		sColor := pendingColor
		switch rec.Status {
		case suspend.StatusResolved:
			sColor = resolvedColor
		case suspend.StatusExpired:
			sColor = expiredColor
		}

		row := lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(rec.ID),
			convStyle.Render(truncate(rec.ConversationID, wConv)),
			itemsStyle.Render(fmt.Sprintf("%d", len(rec.Payload.Items))),
			createdStyle.Render(rec.CreatedAt.Format("2006-01-02 15:04:05")),
			statusStyleBase.Foreground(sColor).Render(string(rec.Status)),
		)
		fmt.Printf("  %s\n", row)
	}

	fmt.Println()
	return nil
}

func runApprovalShow(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetBool("raw")

	_, workspacePath, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}
	svc := suspend.NewService(workspacePath)

	rec, err := svc.Get(args[0])
	if err != nil {
		return err
	}

	markdown := render.PayloadMarkdown(rec)
	if raw {
		fmt.Println(markdown)
		return nil
	}

	renderer, err := render.NewTerminalRenderer(100)
	if err != nil {
		// No usable terminal style; plain markdown is still readable.
		fmt.Println(markdown)
		return nil
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		fmt.Println(markdown)
		return nil
	}
	fmt.Print(out)
	return nil
}

func runApprovalDecide(cmd *cobra.Command, id string, approved bool) error {
	by, _ := cmd.Flags().GetString("by")
	scopeFlag, _ := cmd.Flags().GetString("scope")
	reason, _ := cmd.Flags().GetString("reason")
	callIDs, _ := cmd.Flags().GetStringSlice("call")

	if strings.TrimSpace(by) == "" {
		return fmt.Errorf("--by is required")
	}
	scope := policy.Scope(strings.ToLower(strings.TrimSpace(scopeFlag)))
	if !scope.Valid() || scope == policy.ScopeDeployment {
		return fmt.Errorf("invalid scope %q (expected once, conversation, or principal)", scopeFlag)
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

	decision := gate.Decision{Approved: approved, Scope: scope, Reason: reason}
	input := gate.ResumeInput{
		SuspensionID: id,
		DecidedBy:    by,
	}
	if len(callIDs) > 0 {
		input.PerCall = make(map[string]gate.Decision, len(callIDs))
		for _, callID := range callIDs {
			input.PerCall[strings.TrimSpace(callID)] = decision
		}
	} else {
		input.Uniform = &decision
	}

	result, err := components.gate.Resume(context.Background(), input)
	if err != nil {
		return err
	}

	fmt.Printf("Suspension %s resolved.\n", id)
	for _, call := range result.Results {
		line := fmt.Sprintf("  %s  %s  %s", call.CallID, call.Tool, call.Disposition)
		if call.Reason != "" {
			line += fmt.Sprintf(" (%s)", call.Reason)
		}
		fmt.Println(line)
	}
	return nil
}

func runApprovalRevoke(cmd *cobra.Command, args []string) error {
	conversationID, _ := cmd.Flags().GetString("conversation")
	principal, _ := cmd.Flags().GetString("principal")
	opKey, _ := cmd.Flags().GetString("operation")

	if strings.TrimSpace(conversationID) == "" && strings.TrimSpace(principal) == "" {
		return fmt.Errorf("at least one of --conversation or --principal is required")
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

	ctx := context.Background()
	if strings.TrimSpace(conversationID) != "" {
		conv := components.sessions.GetOrCreate(conversationID)
		if err := components.decisions.Revoke(ctx, conv, principal, opKey); err != nil {
			return err
		}
		if err := components.sessions.Save(conv); err != nil {
			return err
		}
	} else {
		if err := components.decisions.Revoke(ctx, nil, principal, opKey); err != nil {
			return err
		}
	}

	writer := audit.NewWriter(workspacePath)
	_ = writer.Append(audit.Event{
		Time:           time.Now().UTC(),
		Type:           audit.TypeRevoked,
		ConversationID: strings.TrimSpace(conversationID),
		Principal:      strings.TrimSpace(principal),
		OperationKey:   opKey,
		Result:         "decision revoked",
	})

	fmt.Printf("Revoked cached decision for %s.\n", opKey)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
