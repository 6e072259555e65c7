package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/config"
	"github.com/aegisd/aegis/internal/policy"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Aegis configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := config.ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()

	dirs := []string{
		config.ConfigDir(),
		cfg.WorkspacePath(),
		filepath.Join(cfg.WorkspacePath(), "state"),
		filepath.Join(cfg.WorkspacePath(), "conversations"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Write the built-in catalog as an editable starting point.
	policyPath := filepath.Join(config.ConfigDir(), "policies.json")
	cfg.Policy.File = policyPath

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if _, err := os.Stat(policyPath); os.IsNotExist(err) {
		data, err := json.MarshalIndent(policy.DefaultCatalog(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode default policies: %w", err)
		}
		if err := os.WriteFile(policyPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write default policies: %w", err)
		}
	}

	fmt.Printf("Aegis initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Policies: %s\n", policyPath)
	fmt.Printf("Workspace: %s\n", cfg.WorkspacePath())
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Edit %s to tune tool policies\n", policyPath)
	fmt.Printf("2. Run 'aegis run' to start the gate\n")

	return nil
}
