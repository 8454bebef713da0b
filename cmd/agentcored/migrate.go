package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/store"
)

// buildMigrateCmd is a no-op placeholder over internal/store: the current
// filesystem-backed Store needs no schema migration, but the subcommand
// documents the seam for a future SQL-backed Store implementation.
func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply any pending storage migrations (no-op for the filesystem store)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnvPath()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, err := store.New(cfg.ConversationsPath, cfg.WorkspacePath); err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store layout up to date, nothing to migrate")
			return nil
		},
	}
}
