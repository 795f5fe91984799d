package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/trackease/ghsync/internal/converter"
	"github.com/trackease/ghsync/internal/github"
	"github.com/trackease/ghsync/internal/mapping"
)

// RunImport processes the full GitHub backlog once, creating a YouTrack
// task (plus comments and tags) for every issue that has no mapping
// yet. Already-mapped issues are skipped, so re-running an import after
// a partial failure only picks up the remainder.
func (e *Engine) RunImport(ctx context.Context) (ImportResult, error) {
	log.Printf("Fetching issues from GitHub...")
	issues, err := e.upstream.ListIssues(ctx, time.Time{})
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to fetch issues: %w", err)
	}
	log.Printf("Fetched %d issues from GitHub", len(issues))

	res := ImportResult{Total: len(issues)}
	for _, issue := range issues {
		e.importOne(ctx, issue, &res)
	}
	return res, nil
}

// ImportIssue runs a targeted import for a single issue number. Used by
// the webhook path when an issue event arrives for an unmapped issue.
func (e *Engine) ImportIssue(ctx context.Context, number int) error {
	issue, err := e.upstream.GetIssue(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}
	if issue == nil {
		return fmt.Errorf("issue #%d not found", number)
	}

	var res ImportResult
	res.Total = 1
	e.importOne(ctx, *issue, &res)
	if res.Errors > 0 {
		return fmt.Errorf("failed to import issue #%d", number)
	}
	return nil
}

// importOne creates the downstream task for one issue and records the
// mapping. Creation failures count as errors and never abort the pass.
func (e *Engine) importOne(ctx context.Context, issue github.Issue, res *ImportResult) {
	release := e.locks.acquire(issue.ID)
	defer release()

	if existing, ok := e.store.Get(issue.ID); ok {
		log.Printf("Skipping issue #%d (already imported as %s)", issue.Number, existing.YouTrackTaskIDReadable)
		res.Skipped++
		return
	}

	log.Printf("Importing issue #%d: %s", issue.Number, issue.Title)
	task, err := e.downstream.CreateTask(ctx, converter.ToTaskCreate(issue))
	if err != nil {
		log.Printf("Error importing issue #%d: %v", issue.Number, err)
		res.Errors++
		return
	}

	if issue.Comments > 0 {
		e.importComments(ctx, issue, task.ID)
	}
	for _, label := range issue.Labels {
		if err := e.downstream.AddTag(ctx, task.ID, label); err != nil {
			log.Printf("Error tagging task %s with %q: %v", task.ID, label, err)
		}
	}

	rec := mapping.Record{
		GitHubIssueID:          issue.ID,
		GitHubIssueNumber:      issue.Number,
		YouTrackTaskID:         task.ID,
		YouTrackTaskIDReadable: task.IDReadable,
		LastSyncedAt:           e.now(),
	}
	if err := e.store.Upsert(rec); err != nil {
		log.Printf("Error persisting mapping for issue #%d: %v", issue.Number, err)
		res.Errors++
		return
	}

	res.Imported++
	log.Printf("Successfully imported issue #%d as %s", issue.Number, task.IDReadable)
}

// importComments transfers all comments of a freshly imported issue in
// upstream chronological order. Failures are logged, not counted: the
// issue itself imported fine.
func (e *Engine) importComments(ctx context.Context, issue github.Issue, taskID string) {
	log.Printf("Importing %d comments for issue #%d", issue.Comments, issue.Number)
	comments, err := e.upstream.ListComments(ctx, issue.Number)
	if err != nil {
		log.Printf("Error fetching comments for issue #%d: %v", issue.Number, err)
		return
	}
	for _, c := range comments {
		if _, err := e.downstream.AddComment(ctx, taskID, converter.FormatComment(c)); err != nil {
			log.Printf("Error adding comment to task %s: %v", taskID, err)
		}
	}
}
