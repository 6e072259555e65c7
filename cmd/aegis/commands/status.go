package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/config"
	"github.com/aegisd/aegis/internal/metrics"
	"github.com/aegisd/aegis/internal/suspend"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Aegis configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, workspacePath, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}

	fmt.Println("=== Aegis Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'aegis init')")
	}

	fmt.Printf("\nWorkspace: %s\n", workspacePath)
	if _, err := os.Stat(workspacePath); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found")
	}
	workspaceMode := strings.TrimSpace(cfg.Gate.WorkspaceMode)
	if workspaceMode == "" {
		workspaceMode = "default"
	}
	fmt.Printf("  Mode: %s\n", workspaceMode)

	fmt.Println("\nPolicies:")
	registry, err := buildRegistry(cfg)
	if err != nil {
		fmt.Printf("  Status: unavailable (%v)\n", err)
	} else {
		tools := registry.List()
		fmt.Printf("  Registered tools: %d\n", len(tools))
		if strings.TrimSpace(cfg.Policy.File) != "" {
			fmt.Printf("  File: %s\n", cfg.Policy.File)
		}
		fmt.Printf("  Deployment rules: %d\n", len(cfg.Policy.Deployment))
	}

	fmt.Println("\nDecision tiers:")
	if cfg.Redis.Enabled {
		fmt.Printf("  Principal: redis at %s (db %d, ttl %dd)\n", cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.TTLDays)
	} else {
		fmt.Println("  Principal: disabled (conversation scope only)")
	}
	fmt.Println("  Conversation: file-backed sessions")

	fmt.Println("\nNotifications:")
	if cfg.Notify.Telegram.Enabled {
		fmt.Println("  Telegram: enabled")
	} else {
		fmt.Println("  Telegram: disabled")
	}

	fmt.Println("\nGateway:")
	fmt.Printf("  Address: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token != "" {
		fmt.Println("  Auth:    token configured")
	} else {
		fmt.Println("  Auth:    no token (open)")
	}

	fmt.Println("\nSuspensions:")
	svc := suspend.NewService(workspacePath)
	pending, err := svc.List(suspend.Query{Status: suspend.StatusPending})
	if err != nil {
		fmt.Println("  Status: unavailable")
	} else {
		fmt.Printf("  Pending: %d\n", len(pending))
		for _, rec := range pending {
			fmt.Printf("    - %s (%s, %d items)\n", rec.ID, rec.ConversationID, len(rec.Payload.Items))
		}
	}

	fmt.Println("\nGate metrics:")
	snapshot, err := metrics.ReadGateSnapshot(workspacePath)
	if err != nil || !snapshot.HasData() {
		fmt.Println("  No data yet")
		return nil
	}
	fmt.Printf("  Batches: %d total, %d auto-resolved, %d suspended (%.0f%% suspension ratio)\n",
		snapshot.Batches.Total, snapshot.Batches.AutoResolved, snapshot.Batches.Suspended,
		snapshot.Batches.SuspensionRatio()*100)
	fmt.Printf("  Calls:   %d total, %d auto-approved, %d auto-denied, %d escalated, %d human-denied\n",
		snapshot.Calls.Total, snapshot.Calls.AutoApproved, snapshot.Calls.AutoDenied,
		snapshot.Calls.Escalated, snapshot.Calls.HumanDenied)
	fmt.Printf("  Tiers:   %d conversation, %d principal, %d deployment hits, %d principal errors\n",
		snapshot.Tiers.ConversationHits, snapshot.Tiers.PrincipalHits,
		snapshot.Tiers.DeploymentHits, snapshot.Tiers.PrincipalErrors)

	return nil
}
