package github

import (
	"context"
	"fmt"
	"log"
	"time"

	gogithub "github.com/google/go-github/v66/github"
)

// Client reads issues and comments from a single GitHub repository.
type Client struct {
	gh    *gogithub.Client
	owner string
	repo  string
}

// NewClient creates a client authenticated with a personal access token
// or installation token.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		gh:    gogithub.NewClient(nil).WithAuthToken(token),
		owner: owner,
		repo:  repo,
	}
}

// NewClientWithGitHub wraps an already-configured go-github client.
// Used by tests to point at a local server.
func NewClientWithGitHub(gh *gogithub.Client, owner, repo string) *Client {
	return &Client{gh: gh, owner: owner, repo: repo}
}

// ValidateToken checks that the configured credential can reach the API.
func (c *Client) ValidateToken(ctx context.Context) bool {
	_, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		log.Printf("GitHub token validation failed: %v", err)
		return false
	}
	return true
}

// ListIssues fetches all issues in the repository. A non-zero since
// restricts the result to issues updated at or after that instant.
// Pull requests are excluded.
func (c *Client) ListIssues(ctx context.Context, since time.Time) ([]Issue, error) {
	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		opts.Since = since
	}

	var issues []Issue
	for {
		page, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list issues for %s/%s: %w", c.owner, c.repo, err)
		}
		for _, is := range page {
			// The issues API also returns pull requests.
			if is.IsPullRequest() {
				continue
			}
			issues = append(issues, convertIssue(is))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return issues, nil
}

// GetIssue fetches a single issue by number. Returns nil if the number
// refers to a pull request.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	is, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	if is.IsPullRequest() {
		return nil, nil
	}
	issue := convertIssue(is)
	return &issue, nil
}

// ListComments fetches all comments on an issue in chronological order.
func (c *Client) ListComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &gogithub.IssueListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var comments []Comment
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments for issue #%d: %w", number, err)
		}
		for _, cm := range page {
			comments = append(comments, Comment{
				ID:        cm.GetID(),
				Body:      cm.GetBody(),
				User:      User{Login: cm.GetUser().GetLogin(), HTMLURL: cm.GetUser().GetHTMLURL()},
				CreatedAt: cm.GetCreatedAt().Time,
				UpdatedAt: cm.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

func convertIssue(is *gogithub.Issue) Issue {
	issue := Issue{
		ID:        is.GetID(),
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		Body:      is.GetBody(),
		State:     is.GetState(),
		HTMLURL:   is.GetHTMLURL(),
		CreatedAt: is.GetCreatedAt().Time,
		UpdatedAt: is.GetUpdatedAt().Time,
		User:      User{Login: is.GetUser().GetLogin(), HTMLURL: is.GetUser().GetHTMLURL()},
		Comments:  is.GetComments(),
	}
	if is.ClosedAt != nil {
		issue.ClosedAt = is.GetClosedAt().Time
	}
	for _, l := range is.Labels {
		issue.Labels = append(issue.Labels, l.GetName())
	}
	for _, a := range is.Assignees {
		issue.Assignees = append(issue.Assignees, a.GetLogin())
	}
	return issue
}
