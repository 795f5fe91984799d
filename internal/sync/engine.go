// Package sync implements the reconciliation engine: the import pass
// that seeds YouTrack from the GitHub backlog, the incremental pass
// that transfers what changed since the last watermark, and the
// targeted single-issue variants driven by webhooks.
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trackease/ghsync/internal/github"
	"github.com/trackease/ghsync/internal/mapping"
	"github.com/trackease/ghsync/internal/youtrack"
)

// ErrNoMappings is returned by RunSync when the mapping table is empty;
// an import has to happen first.
var ErrNoMappings = errors.New("no mappings found, run import first")

// UpstreamClient is the read-only view of the GitHub repository.
type UpstreamClient interface {
	ListIssues(ctx context.Context, since time.Time) ([]github.Issue, error)
	GetIssue(ctx context.Context, number int) (*github.Issue, error)
	ListComments(ctx context.Context, number int) ([]github.Comment, error)
}

// DownstreamClient is the writable view of the YouTrack project.
type DownstreamClient interface {
	CreateTask(ctx context.Context, task youtrack.TaskCreate) (*youtrack.Task, error)
	UpdateTask(ctx context.Context, taskID string, update youtrack.TaskUpdate) error
	GetTask(ctx context.Context, taskID string) (*youtrack.Task, error)
	AddComment(ctx context.Context, taskID, text string) (*youtrack.Comment, error)
	AddTag(ctx context.Context, taskID, name string) error
}

// Engine orchestrates reconciliation passes. Clients are injected so
// tests substitute their own; the engine itself holds no globals.
type Engine struct {
	upstream   UpstreamClient
	downstream DownstreamClient
	store      *mapping.Store
	locks      *issueLocks
	now        func() time.Time
}

// New creates an engine over the given clients and mapping store.
func New(upstream UpstreamClient, downstream DownstreamClient, store *mapping.Store) *Engine {
	return &Engine{
		upstream:   upstream,
		downstream: downstream,
		store:      store,
		locks:      newIssueLocks(),
		now:        time.Now,
	}
}

// ImportResult summarizes one import pass.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   int
	Total    int
}

// SyncResult summarizes one incremental sync pass.
type SyncResult struct {
	Updated   int
	Unchanged int
	Errors    int
	Total     int
}

// issueLocks serializes work per GitHub issue id, so a webhook-driven
// targeted pass and a scheduled pass never race on the same mapping
// record. Entries are never evicted; the map is bounded by the number
// of issues ever touched.
type issueLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newIssueLocks() *issueLocks {
	return &issueLocks{locks: make(map[int64]*sync.Mutex)}
}

// acquire locks the per-issue mutex and returns its release func.
func (l *issueLocks) acquire(issueID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[issueID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[issueID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
