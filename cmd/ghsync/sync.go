package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackease/ghsync/internal/config"
	"github.com/trackease/ghsync/internal/mapping"
	"github.com/trackease/ghsync/internal/sync"
)

var continuous bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync updated GitHub issues to their YouTrack tasks",
	Long:  "Runs an incremental pass over issues updated since the last sync, propagating title, state, comments and labels. With --continuous, repeats the pass on the configured interval.",
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

		if !continuous {
			return runSyncPass(ctx, engine)
		}

		log.Printf("Starting continuous sync, interval %s", cfg.SyncInterval)
		if err := runSyncPass(ctx, engine); err != nil {
			log.Printf("Sync pass failed: %v", err)
		}

		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("Shutting down continuous sync")
				return nil
			case <-ticker.C:
				if err := runSyncPass(ctx, engine); err != nil {
					log.Printf("Sync pass failed: %v", err)
				}
			}
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&continuous, "continuous", false, "keep running, repeating the sync on SYNC_INTERVAL_MINUTES")
}

func runSyncPass(ctx context.Context, engine *sync.Engine) error {
	res, err := engine.RunSync(ctx)
	if errors.Is(err, sync.ErrNoMappings) {
		return fmt.Errorf("no mappings found, run import first")
	}
	if err != nil {
		return err
	}

	fmt.Println("\nSync completed:")
	fmt.Printf("  - Updated: %d\n", res.Updated)
	fmt.Printf("  - Unchanged: %d\n", res.Unchanged)
	fmt.Printf("  - Errors: %d\n", res.Errors)
	fmt.Printf("  - Total processed: %d\n", res.Total)
	return nil
}
