package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/policy"
)

func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <tool> [arguments-json]",
		Short: "Dry-run a tool call against the policy registry",
		Long:  `Classifies one tool call offline: which rule matches, what risk it carries, and which decision scopes a human approval could take. No decision is cached and no suspension is created.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	toolName := args[0]
	arguments := "{}"
	if len(args) > 1 {
		arguments = args[1]
	}
	call := policy.ParseCall(arguments)

	verdict, err := registry.Classify(toolName, call)
	if err != nil {
		fmt.Printf("Tool:      %s\n", toolName)
		fmt.Printf("Verdict:   escalate (tool has no registered policy)\n")
		fmt.Printf("Risk:      %s\n", policy.RiskCritical)
		fmt.Printf("Operation: %s\n", policy.OperationKey(toolName, call))
		return nil
	}

	tool, _ := registry.Get(toolName)

	fmt.Printf("Tool:       %s\n", toolName)
	fmt.Printf("Operation:  %s\n", policy.OperationKey(toolName, call))
	fmt.Printf("Verdict:    %s\n", verdict.Action)
	if verdict.Reason != "" {
		fmt.Printf("Reason:     %s\n", verdict.Reason)
	}
	fmt.Printf("Risk:       %s\n", policy.AssessRisk(tool, call))
	fmt.Printf("Reversible: %t\n", policy.Reversible(tool, call))

	if verdict.Action == policy.ActionRequireApproval {
		scopes := []policy.Scope{policy.ScopeOnce}
		for _, s := range []policy.Scope{policy.ScopeConversation, policy.ScopePrincipal} {
			if tool.SupportsScope(s) {
				scopes = append(scopes, s)
			}
		}
		fmt.Printf("Scopes:     %v\n", scopes)
	}
	return nil
}
