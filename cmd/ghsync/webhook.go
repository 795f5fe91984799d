package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/trackease/ghsync/internal/config"
	"github.com/trackease/ghsync/internal/mapping"
	"github.com/trackease/ghsync/internal/sync"
	"github.com/trackease/ghsync/internal/webhook"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Run the webhook server for real-time issue updates",
	Long:  "Starts an HTTP server that receives GitHub webhook deliveries, verifies their signatures and applies each change to YouTrack as it happens.",
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
		handler := webhook.NewHandler(cfg.WebhookSecret, engine, store)

		r := mux.NewRouter()
		r.HandleFunc(cfg.WebhookPath, handler.Handle).Methods(http.MethodPost)
		r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}).Methods(http.MethodGet)

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.WebhookPort),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("Webhook server listening on %s%s", srv.Addr, cfg.WebhookPath)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			log.Println("Shutting down webhook server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}
