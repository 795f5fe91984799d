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

// RunSync performs one incremental pass. It asks GitHub only for issues
// updated since the earliest watermark across all mappings — one
// bounded query per pass regardless of table size — and reconciles each
// mapped issue that is actually stale.
func (e *Engine) RunSync(ctx context.Context) (SyncResult, error) {
	mappings := e.store.All()
	if len(mappings) == 0 {
		return SyncResult{}, ErrNoMappings
	}

	since := mappings[0].LastSyncedAt
	for _, m := range mappings[1:] {
		if m.LastSyncedAt.Before(since) {
			since = m.LastSyncedAt
		}
	}

	passStart := e.now()

	log.Printf("Fetching issues updated since %s...", since.UTC().Format(time.RFC3339))
	issues, err := e.upstream.ListIssues(ctx, since)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to fetch updated issues: %w", err)
	}
	log.Printf("Fetched %d recently updated issues from GitHub", len(issues))

	res := SyncResult{Total: len(issues)}
	for _, issue := range issues {
		e.syncOne(ctx, issue, passStart, &res)
	}
	return res, nil
}

// SyncIssue runs a targeted sync for a single issue number. Used by the
// webhook path. Unmapped issues are left alone, same as in a full pass.
func (e *Engine) SyncIssue(ctx context.Context, number int) error {
	issue, err := e.upstream.GetIssue(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}
	if issue == nil {
		return fmt.Errorf("issue #%d not found", number)
	}

	var res SyncResult
	res.Total = 1
	e.syncOne(ctx, *issue, e.now(), &res)
	if res.Errors > 0 {
		return fmt.Errorf("failed to sync issue #%d", number)
	}
	return nil
}

// syncOne reconciles a single issue against its mapping. The mapping's
// watermark advances to passStart only after the task, comments and
// tags have been reconciled, so a failed item is retried next pass.
func (e *Engine) syncOne(ctx context.Context, issue github.Issue, passStart time.Time, res *SyncResult) {
	release := e.locks.acquire(issue.ID)
	defer release()

	m, ok := e.store.Get(issue.ID)
	if !ok {
		// New issues enter through import, never through sync.
		log.Printf("Issue #%d is new and not yet imported. Skipping.", issue.Number)
		return
	}

	if !issue.UpdatedAt.After(m.LastSyncedAt) {
		log.Printf("Issue #%d has not been updated since last sync. Skipping.", issue.Number)
		res.Unchanged++
		return
	}

	if err := e.downstream.UpdateTask(ctx, m.YouTrackTaskID, converter.ToTaskUpdate(issue)); err != nil {
		// The task may have been deleted out-of-band; create a
		// replacement and repoint the mapping at it.
		log.Printf("Error updating task %s: %v. Attempting to recreate.", m.YouTrackTaskIDReadable, err)
		task, cerr := e.downstream.CreateTask(ctx, converter.ToTaskCreate(issue))
		if cerr != nil {
			log.Printf("Error recreating task for issue #%d: %v", issue.Number, cerr)
			res.Errors++
			return
		}
		log.Printf("Recreated task for issue #%d: %s replaces %s", issue.Number, task.IDReadable, m.YouTrackTaskIDReadable)
		m.YouTrackTaskID = task.ID
		m.YouTrackTaskIDReadable = task.IDReadable
	}

	e.syncComments(ctx, issue.Number, m)
	e.syncLabels(ctx, issue, m.YouTrackTaskID)

	m.LastSyncedAt = passStart
	if err := e.store.Upsert(m); err != nil {
		log.Printf("Error persisting mapping for issue #%d: %v", issue.Number, err)
		res.Errors++
		return
	}

	res.Updated++
	log.Printf("Successfully updated task %s", m.YouTrackTaskIDReadable)
}

// syncComments transfers upstream comments missing downstream. Comments
// created by earlier sync passes carry an embedded comment-id marker;
// only upstream comments whose id is absent from those markers are
// created, which keeps the operation idempotent even after a partially
// completed pass.
func (e *Engine) syncComments(ctx context.Context, issueNumber int, m mapping.Record) {
	task, err := e.downstream.GetTask(ctx, m.YouTrackTaskID)
	if err != nil {
		log.Printf("Error fetching task %s: %v", m.YouTrackTaskIDReadable, err)
		return
	}

	comments, err := e.upstream.ListComments(ctx, issueNumber)
	if err != nil {
		log.Printf("Error fetching comments for issue #%d: %v", issueNumber, err)
		return
	}
	if len(comments) == 0 || len(task.Comments) >= len(comments) {
		return
	}

	log.Printf("Syncing comments for issue #%d...", issueNumber)
	existing := make(map[int64]bool)
	for _, tc := range task.Comments {
		for _, id := range converter.ExtractCommentIDs(tc.Text) {
			existing[id] = true
		}
	}

	for _, c := range comments {
		if existing[c.ID] {
			continue
		}
		if _, err := e.downstream.AddComment(ctx, m.YouTrackTaskID, converter.FormatSyncComment(c)); err != nil {
			log.Printf("Error adding comment to task %s: %v", m.YouTrackTaskIDReadable, err)
			continue
		}
		log.Printf("Added new comment from issue #%d", issueNumber)
	}
}

// syncLabels re-applies every current upstream label. Tagging is
// idempotent on the YouTrack side, so no diffing is needed.
func (e *Engine) syncLabels(ctx context.Context, issue github.Issue, taskID string) {
	for _, label := range issue.Labels {
		if err := e.downstream.AddTag(ctx, taskID, label); err != nil {
			log.Printf("Error tagging task %s with %q: %v", taskID, label, err)
		}
	}
}
