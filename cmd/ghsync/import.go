package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackease/ghsync/internal/config"
	"github.com/trackease/ghsync/internal/mapping"
	"github.com/trackease/ghsync/internal/sync"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import all GitHub issues into YouTrack",
	Long:  "Fetches every issue from the configured repository and creates a YouTrack task for each one that has no mapping yet. Safe to re-run: already imported issues are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		gh, yt, err := buildClients(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := validateCredentials(ctx, gh, yt); err != nil {
			return err
		}

		store, err := mapping.Open(mappingPath(cmd, cfg))
		if err != nil {
			return fmt.Errorf("failed to open mapping file: %w", err)
		}

		engine := sync.New(gh, yt, store)
		res, err := engine.RunImport(ctx)
		if err != nil {
			return err
		}

		fmt.Println("\nImport completed:")
		fmt.Printf("  - Imported: %d\n", res.Imported)
		fmt.Printf("  - Skipped (already imported): %d\n", res.Skipped)
		fmt.Printf("  - Errors: %d\n", res.Errors)
		fmt.Printf("  - Total: %d\n", res.Total)
		fmt.Printf("\nMapping saved to %s\n", store.Path())

		if res.Errors > 0 {
			return fmt.Errorf("%d issues failed to import", res.Errors)
		}
		return nil
	},
}
