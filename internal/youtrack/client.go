package youtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// taskFields selects everything the sync engine reads back from a task,
// including comment texts for the dedup scan.
const taskFields = "id,idReadable,summary,description,created,updated,resolved," +
	"customFields(name,value),comments(id,text,created,updated,author(login,fullName))"

// Client talks to the YouTrack REST API for a single project.
type Client struct {
	baseURL     string
	token       string
	projectName string
	projectID   string // resolved lazily on first create
	http        *http.Client
}

// NewClient creates a client for the given YouTrack instance URL and
// permanent token. projectName is resolved to a project id on first use.
func NewClient(baseURL, token, projectName string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		projectName: projectName,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// ValidateToken checks that the configured token can reach the API.
func (c *Client) ValidateToken(ctx context.Context) bool {
	var me struct {
		Login string `json:"login"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &me); err != nil {
		log.Printf("YouTrack token validation failed: %v", err)
		return false
	}
	return true
}

// ProjectID resolves the configured project name to its internal id.
// The result is cached for the lifetime of the client.
func (c *Client) ProjectID(ctx context.Context) (string, error) {
	if c.projectID != "" {
		return c.projectID, nil
	}

	var projects []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	query := url.Values{"fields": {"id,name"}}
	if err := c.do(ctx, http.MethodGet, "/admin/projects", query, nil, &projects); err != nil {
		return "", fmt.Errorf("failed to list projects: %w", err)
	}

	for _, p := range projects {
		if p.Name == c.projectName {
			c.projectID = p.ID
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("project %q not found", c.projectName)
}

// CreateTask creates a new task in the configured project.
func (c *Client) CreateTask(ctx context.Context, task TaskCreate) (*Task, error) {
	projectID, err := c.ProjectID(ctx)
	if err != nil {
		return nil, err
	}
	task.Type = "Issue"
	task.Project = ProjectRef{ID: projectID, Type: "Project"}

	var created Task
	if err := c.do(ctx, http.MethodPost, "/issues", nil, task, &created); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &created, nil
}

// UpdateTask applies an update to an existing task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) error {
	update.Type = "Issue"
	if err := c.do(ctx, http.MethodPost, "/issues/"+taskID, nil, update, nil); err != nil {
		return fmt.Errorf("failed to update task %s: %w", taskID, err)
	}
	return nil
}

// GetTask fetches a task with its comments.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	query := url.Values{"fields": {taskFields}}
	if err := c.do(ctx, http.MethodGet, "/issues/"+taskID, query, nil, &task); err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return &task, nil
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, taskID, text string) (*Comment, error) {
	payload := map[string]any{
		"$type": "IssueComment",
		"text":  text,
		"issue": map[string]string{"id": taskID, "$type": "Issue"},
	}

	var comment Comment
	if err := c.do(ctx, http.MethodPost, "/issues/"+taskID+"/comments", nil, payload, &comment); err != nil {
		return nil, fmt.Errorf("failed to add comment to task %s: %w", taskID, err)
	}
	return &comment, nil
}

// AddTag attaches a tag by name, creating it if it does not exist yet.
// Re-applying an existing tag is a no-op on the YouTrack side.
func (c *Client) AddTag(ctx context.Context, taskID, name string) error {
	tagID, err := c.resolveTag(ctx, name)
	if err != nil {
		return err
	}
	payload := map[string]string{"id": tagID, "$type": "Tag"}
	if err := c.do(ctx, http.MethodPost, "/issues/"+taskID+"/tags", nil, payload, nil); err != nil {
		return fmt.Errorf("failed to tag task %s with %q: %w", taskID, name, err)
	}
	return nil
}

func (c *Client) resolveTag(ctx context.Context, name string) (string, error) {
	var tags []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	query := url.Values{"fields": {"id,name"}}
	if err := c.do(ctx, http.MethodGet, "/tags", query, nil, &tags); err != nil {
		return "", fmt.Errorf("failed to list tags: %w", err)
	}
	for _, t := range tags {
		if t.Name == name {
			return t.ID, nil
		}
	}

	var created struct {
		ID string `json:"id"`
	}
	payload := map[string]string{"name": name, "$type": "Tag"}
	if err := c.do(ctx, http.MethodPost, "/tags", nil, payload, &created); err != nil {
		return "", fmt.Errorf("failed to create tag %q: %w", name, err)
	}
	return created.ID, nil
}

// do performs a single API request. No retries: a failed call surfaces
// immediately and the caller decides whether it is fatal.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + "/api" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("YouTrack API error: %d - %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
