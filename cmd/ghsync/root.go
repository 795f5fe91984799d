package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/trackease/ghsync/internal/config"
	"github.com/trackease/ghsync/internal/github"
	"github.com/trackease/ghsync/internal/youtrack"
)

var mappingFile string

var rootCmd = &cobra.Command{
	Use:          "ghsync",
	Short:        "One-way sync of GitHub issues into YouTrack tasks",
	Long:         "ghsync imports GitHub issues into YouTrack and keeps the created tasks up to date, either via periodic sync passes or a webhook server.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&mappingFile, "mapping-file", "", "path to the issue/task mapping file (default \"issue-task-mapping.json\")")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(webhookCmd)
}

// mappingPath resolves the mapping file location: the flag wins over
// the MAPPING_FILE environment setting.
func mappingPath(cmd *cobra.Command, cfg *config.Config) string {
	if cmd.Flags().Changed("mapping-file") {
		return mappingFile
	}
	return cfg.MappingFile
}

// buildClients constructs the GitHub and YouTrack clients from the
// configuration, exchanging App credentials for an installation token
// when no personal access token is set.
func buildClients(cfg *config.Config) (*github.Client, *youtrack.Client, error) {
	token := cfg.GitHubToken
	if token == "" {
		auth := &github.AppAuth{AppID: cfg.GitHubAppID, PrivateKey: cfg.GitHubPrivateKey}
		installToken, err := auth.InstallationToken(cfg.GitHubOwner, cfg.GitHubRepo)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to obtain App installation token: %w", err)
		}
		token = installToken
	}

	gh := github.NewClient(token, cfg.GitHubOwner, cfg.GitHubRepo)
	yt := youtrack.NewClient(cfg.YouTrackURL, cfg.YouTrackToken, cfg.YouTrackProject)
	return gh, yt, nil
}

// validateCredentials checks both tokens before any pass starts, so a
// bad credential fails the whole run instead of every item in it.
func validateCredentials(ctx context.Context, gh *github.Client, yt *youtrack.Client) error {
	log.Println("Validating credentials...")
	if !gh.ValidateToken(ctx) {
		return fmt.Errorf("GitHub token validation failed, check GITHUB_TOKEN or App credentials")
	}
	if !yt.ValidateToken(ctx) {
		return fmt.Errorf("YouTrack token validation failed, check YOUTRACK_TOKEN and YOUTRACK_URL")
	}
	log.Println("Credentials validated")
	return nil
}
