package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all settings for the sync service, loaded from
// environment variables (a .env file is read by the CLI before Load).
type Config struct {
	// GitHub settings. Either a personal access token or App
	// credentials must be present.
	GitHubToken      string
	GitHubAppID      string
	GitHubPrivateKey string
	GitHubOwner      string
	GitHubRepo       string

	// YouTrack settings
	YouTrackURL     string
	YouTrackToken   string
	YouTrackProject string

	// Sync settings
	SyncInterval time.Duration
	MappingFile  string

	// Webhook settings
	WebhookPort   int
	WebhookPath   string
	WebhookSecret string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
		GitHubAppID:      os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey: normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		GitHubOwner:      os.Getenv("GITHUB_OWNER"),
		GitHubRepo:       os.Getenv("GITHUB_REPO"),
		YouTrackURL:      os.Getenv("YOUTRACK_URL"),
		YouTrackToken:    os.Getenv("YOUTRACK_TOKEN"),
		YouTrackProject:  os.Getenv("YOUTRACK_PROJECT_NAME"),
		SyncInterval:     time.Duration(getEnvInt("SYNC_INTERVAL_MINUTES", 60)) * time.Minute,
		MappingFile:      getEnv("MAPPING_FILE", "issue-task-mapping.json"),
		WebhookPort:      getEnvInt("WEBHOOK_PORT", 3000),
		WebhookPath:      getEnv("WEBHOOK_PATH", "/webhook"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	if c.GitHubOwner == "" {
		return fmt.Errorf("GITHUB_OWNER is required")
	}
	if c.GitHubRepo == "" {
		return fmt.Errorf("GITHUB_REPO is required")
	}
	if c.GitHubToken == "" && (c.GitHubAppID == "" || c.GitHubPrivateKey == "") {
		return fmt.Errorf("either GITHUB_TOKEN or GITHUB_APP_ID with GITHUB_PRIVATE_KEY is required")
	}
	if c.YouTrackURL == "" {
		return fmt.Errorf("YOUTRACK_URL is required")
	}
	if c.YouTrackToken == "" {
		return fmt.Errorf("YOUTRACK_TOKEN is required")
	}
	if c.YouTrackProject == "" {
		return fmt.Errorf("YOUTRACK_PROJECT_NAME is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES must be a positive number")
	}
	if c.WebhookPort <= 0 {
		return fmt.Errorf("WEBHOOK_PORT must be a positive number")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required for secure webhook operation")
	}
	return nil
}

// normalizePrivateKey undoes the quoting and escaped newlines that PEM
// keys pick up when stuffed into environment variables.
func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.Trim(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.Trim(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}
	return trimmed
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
