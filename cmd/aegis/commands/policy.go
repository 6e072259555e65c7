package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/policy"
)

func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect registered tool policies",
	}

	cmd.AddCommand(
		newPolicyListCmd(),
		newPolicyShowCmd(),
	)

	return cmd
}

func newPolicyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tool policies",
		RunE:  runPolicyList,
	}
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <tool>",
		Short: "Show one tool policy in detail",
		Args:  cobra.ExactArgs(1),
		RunE:  runPolicyShow,
	}
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	tools := registry.List()
	if len(tools) == 0 {
		fmt.Println("No registered tool policies.")
		return nil
	}

	var (
		headerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#8E4EC6")).
				Padding(0, 1).
				MarginBottom(1)

		wName     = 26
		wRisk     = 10
		wAuth     = 10
		wPatterns = 10
		wScopes   = 28

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8E4EC6")).
				Bold(true).
				MarginRight(1)

		nameStyle = lipgloss.NewStyle().
				Width(wName).
				MarginRight(1)

		riskStyle = lipgloss.NewStyle().
				Width(wRisk).
				MarginRight(1)

		authStyle = lipgloss.NewStyle().
				Width(wAuth).
				MarginRight(1)

		patternsStyle = lipgloss.NewStyle().
				Width(wPatterns).
				MarginRight(1)

		scopesStyle = lipgloss.NewStyle().
				Width(wScopes).
				MarginRight(1)
	)

	fmt.Println(headerStyle.Render("Tool Policies"))

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wName).Render("TOOL"),
		colHeaderStyle.Width(wRisk).Render("RISK"),
		colHeaderStyle.Width(wAuth).Render("AUTH"),
		colHeaderStyle.Width(wPatterns).Render("PATTERNS"),
		colHeaderStyle.Width(wScopes).Render("SCOPES"),
	)
	fmt.Printf("  %s\n", headers)

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	separator := lipgloss.JoinHorizontal(lipgloss.Top,
		sepStyle.Render(strings.Repeat("─", wName)),
		sepStyle.Render(strings.Repeat("─", wRisk)),
		sepStyle.Render(strings.Repeat("─", wAuth)),
		sepStyle.Render(strings.Repeat("─", wPatterns)),
		sepStyle.Render(strings.Repeat("─", wScopes)),
	)
	fmt.Printf("  %s\n", separator)

	for _, tool := range tools {
		auth := "open"
		if tool.RequiresAuth {
			auth = "required"
		}

		row := lipgloss.JoinHorizontal(lipgloss.Top,
			nameStyle.Render(truncate(tool.Name, wName)),
			riskStyle.Render(string(tool.DefaultRisk)),
			authStyle.Render(auth),
			patternsStyle.Render(fmt.Sprintf("%d", len(tool.Patterns))),
			scopesStyle.Render(scopeList(tool)),
		)
		fmt.Printf("  %s\n", row)
	}

	fmt.Println()
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	tool, err := registry.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Tool:        %s\n", tool.Name)
	if tool.Description != "" {
		fmt.Printf("Description: %s\n", tool.Description)
	}
	fmt.Printf("Risk:        %s\n", tool.DefaultRisk)
	fmt.Printf("Auth:        %t\n", tool.RequiresAuth)
	fmt.Printf("Scopes:      %s\n", scopeList(tool))

	if len(tool.Patterns) > 0 {
		fmt.Println("Patterns:")
		for _, p := range tool.Patterns {
			method := p.Method
			if method == "" {
				method = "*"
			}
			path := p.Path
			if path == "" {
				path = "*"
			}
			line := fmt.Sprintf("  %-8s %-40s %s", method, path, p.Action)
			if p.Reason != "" {
				line += fmt.Sprintf("  (%s)", p.Reason)
			}
			fmt.Println(line)
		}
	}
	return nil
}

func scopeList(tool policy.ToolPolicy) string {
	scopes := []string{string(policy.ScopeOnce)}
	for _, s := range tool.Scopes {
		scopes = append(scopes, string(s))
	}
	return strings.Join(scopes, ", ")
}
