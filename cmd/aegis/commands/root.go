package commands

import (
	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/config"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aegis",
		Short: "Aegis - Authorization gate for banking-API agents",
		Long:  `Aegis guards side-effecting tool calls from an autonomous banking-API agent behind policy rules, cached decisions, and human approval.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride, false)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride, cmd.Name() == "review")
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewRunCmd(),
		NewCheckCmd(),
		NewApprovalCmd(),
		NewPolicyCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}
