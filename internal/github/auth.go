package github

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppAuth mints installation access tokens for a GitHub App. It is the
// alternative to a personal access token when the sync runs as the same
// App that delivers the webhooks.
type AppAuth struct {
	AppID      string
	PrivateKey string

	// BaseURL overrides the API endpoint in tests. Empty means api.github.com.
	BaseURL string
}

const defaultAPIBaseURL = "https://api.github.com"

func (a *AppAuth) apiBaseURL() string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	return defaultAPIBaseURL
}

// generateJWT signs a short-lived App JWT with the RSA private key.
func (a *AppAuth) generateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// InstallationToken returns an access token for the App installation
// covering owner/repo. Tokens last about an hour; one per process start
// covers any pass this tool runs.
func (a *AppAuth) InstallationToken(owner, repo string) (string, error) {
	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", err
	}

	installationID, err := a.installationID(jwtToken, owner, repo)
	if err != nil {
		return "", err
	}

	return a.accessToken(jwtToken, installationID)
}

func (a *AppAuth) installationID(jwtToken, owner, repo string) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/installation", a.apiBaseURL(), owner, repo)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	setAppHeaders(req, jwtToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to get installation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.ID, nil
}

func (a *AppAuth) accessToken(jwtToken string, installationID int64) (string, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiBaseURL(), installationID)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	setAppHeaders(req, jwtToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Token, nil
}

func setAppHeaders(req *http.Request, jwtToken string) {
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}
