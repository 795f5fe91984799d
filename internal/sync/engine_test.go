package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/trackease/ghsync/internal/converter"
	"github.com/trackease/ghsync/internal/github"
	"github.com/trackease/ghsync/internal/mapping"
	"github.com/trackease/ghsync/internal/youtrack"
)

// mockUpstream implements UpstreamClient with overridable funcs and
// records the arguments it was called with.
type mockUpstream struct {
	ListIssuesFunc   func(ctx context.Context, since time.Time) ([]github.Issue, error)
	GetIssueFunc     func(ctx context.Context, number int) (*github.Issue, error)
	ListCommentsFunc func(ctx context.Context, number int) ([]github.Comment, error)

	SinceCalls []time.Time
}

func (m *mockUpstream) ListIssues(ctx context.Context, since time.Time) ([]github.Issue, error) {
	m.SinceCalls = append(m.SinceCalls, since)
	if m.ListIssuesFunc != nil {
		return m.ListIssuesFunc(ctx, since)
	}
	return nil, nil
}

func (m *mockUpstream) GetIssue(ctx context.Context, number int) (*github.Issue, error) {
	if m.GetIssueFunc != nil {
		return m.GetIssueFunc(ctx, number)
	}
	return nil, nil
}

func (m *mockUpstream) ListComments(ctx context.Context, number int) ([]github.Comment, error) {
	if m.ListCommentsFunc != nil {
		return m.ListCommentsFunc(ctx, number)
	}
	return nil, nil
}

// mockDownstream implements DownstreamClient the same way.
type mockDownstream struct {
	CreateTaskFunc func(ctx context.Context, task youtrack.TaskCreate) (*youtrack.Task, error)
	UpdateTaskFunc func(ctx context.Context, taskID string, update youtrack.TaskUpdate) error
	GetTaskFunc    func(ctx context.Context, taskID string) (*youtrack.Task, error)
	AddCommentFunc func(ctx context.Context, taskID, text string) (*youtrack.Comment, error)

	CreateCalls  []youtrack.TaskCreate
	UpdateCalls  []string
	CommentCalls []string
	TagCalls     []string
}

func (m *mockDownstream) CreateTask(ctx context.Context, task youtrack.TaskCreate) (*youtrack.Task, error) {
	m.CreateCalls = append(m.CreateCalls, task)
	if m.CreateTaskFunc != nil {
		return m.CreateTaskFunc(ctx, task)
	}
	n := len(m.CreateCalls)
	return &youtrack.Task{ID: fmt.Sprintf("3-%d", n), IDReadable: fmt.Sprintf("PROJ-%d", n)}, nil
}

func (m *mockDownstream) UpdateTask(ctx context.Context, taskID string, update youtrack.TaskUpdate) error {
	m.UpdateCalls = append(m.UpdateCalls, taskID)
	if m.UpdateTaskFunc != nil {
		return m.UpdateTaskFunc(ctx, taskID, update)
	}
	return nil
}

func (m *mockDownstream) GetTask(ctx context.Context, taskID string) (*youtrack.Task, error) {
	if m.GetTaskFunc != nil {
		return m.GetTaskFunc(ctx, taskID)
	}
	return &youtrack.Task{ID: taskID}, nil
}

func (m *mockDownstream) AddComment(ctx context.Context, taskID, text string) (*youtrack.Comment, error) {
	m.CommentCalls = append(m.CommentCalls, text)
	if m.AddCommentFunc != nil {
		return m.AddCommentFunc(ctx, taskID, text)
	}
	return &youtrack.Comment{ID: "c-1", Text: text}, nil
}

func (m *mockDownstream) AddTag(ctx context.Context, taskID, name string) error {
	m.TagCalls = append(m.TagCalls, name)
	return nil
}

func newTestEngine(t *testing.T, up *mockUpstream, down *mockDownstream) (*Engine, *mapping.Store) {
	t.Helper()
	store, err := mapping.Open(filepath.Join(t.TempDir(), "mappings.json"))
	if err != nil {
		t.Fatal(err)
	}
	return New(up, down, store), store
}

func openIssue(id int64, number int, title string) github.Issue {
	return github.Issue{
		ID:        id,
		Number:    number,
		Title:     title,
		Body:      "oops",
		State:     "open",
		HTMLURL:   fmt.Sprintf("https://github.com/acme/widgets/issues/%d", number),
		CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		User:      github.User{Login: "alice", HTMLURL: "https://github.com/alice"},
	}
}

func TestRunImport(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	issue.Labels = []string{"bug"}

	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
	}
	down := &mockDownstream{}
	engine, store := newTestEngine(t, up, down)

	res, err := engine.RunImport(context.Background())
	if err != nil {
		t.Fatalf("RunImport: %v", err)
	}

	want := ImportResult{Imported: 1, Skipped: 0, Errors: 0, Total: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if len(down.CreateCalls) != 1 {
		t.Fatalf("got %d CreateTask calls, want 1", len(down.CreateCalls))
	}
	if down.CreateCalls[0].Summary != "Bug" {
		t.Errorf("created task summary = %q, want Bug", down.CreateCalls[0].Summary)
	}
	if len(down.TagCalls) != 1 || down.TagCalls[0] != "bug" {
		t.Errorf("tag calls = %v, want [bug]", down.TagCalls)
	}

	rec, ok := store.Get(42)
	if !ok {
		t.Fatal("mapping not persisted")
	}
	if rec.GitHubIssueNumber != 7 || rec.YouTrackTaskID != "3-1" {
		t.Errorf("mapping = %+v", rec)
	}
}

func TestRunImportIdempotent(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
	}
	down := &mockDownstream{}
	engine, _ := newTestEngine(t, up, down)

	if _, err := engine.RunImport(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := engine.RunImport(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := ImportResult{Imported: 0, Skipped: 1, Errors: 0, Total: 1}
	if res != want {
		t.Errorf("second run result = %+v, want %+v", res, want)
	}
	if len(down.CreateCalls) != 1 {
		t.Errorf("got %d CreateTask calls across both runs, want 1", len(down.CreateCalls))
	}
}

func TestRunImportCreateFailureCountsError(t *testing.T) {
	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{openIssue(1, 1, "a"), openIssue(2, 2, "b")}, nil
		},
	}
	down := &mockDownstream{
		CreateTaskFunc: func(ctx context.Context, task youtrack.TaskCreate) (*youtrack.Task, error) {
			if task.Summary == "a" {
				return nil, fmt.Errorf("boom")
			}
			return &youtrack.Task{ID: "3-2", IDReadable: "PROJ-2"}, nil
		},
	}
	engine, store := newTestEngine(t, up, down)

	res, err := engine.RunImport(context.Background())
	if err != nil {
		t.Fatalf("pass should not abort on a per-item failure: %v", err)
	}
	want := ImportResult{Imported: 1, Skipped: 0, Errors: 1, Total: 2}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if _, ok := store.Get(1); ok {
		t.Error("failed issue must not get a mapping")
	}
	if _, ok := store.Get(2); !ok {
		t.Error("successful issue lost its mapping")
	}
}

func TestImportCommentsUsePlainFormat(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	issue.Comments = 1
	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
		ListCommentsFunc: func(ctx context.Context, number int) ([]github.Comment, error) {
			return []github.Comment{{ID: 500, Body: "me too", User: github.User{Login: "bob"}}}, nil
		},
	}
	down := &mockDownstream{}
	engine, _ := newTestEngine(t, up, down)

	if _, err := engine.RunImport(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(down.CommentCalls) != 1 {
		t.Fatalf("got %d AddComment calls, want 1", len(down.CommentCalls))
	}
	if ids := converter.ExtractCommentIDs(down.CommentCalls[0]); len(ids) != 0 {
		t.Errorf("import-path comments must not carry sync markers, got ids %v", ids)
	}
}

func TestRunSyncNoMappings(t *testing.T) {
	engine, _ := newTestEngine(t, &mockUpstream{}, &mockDownstream{})

	if _, err := engine.RunSync(context.Background()); err != ErrNoMappings {
		t.Errorf("RunSync on empty table = %v, want ErrNoMappings", err)
	}
}

func TestRunSyncWatermarkIsOldestMapping(t *testing.T) {
	up := &mockUpstream{}
	down := &mockDownstream{}
	engine, store := newTestEngine(t, up, down)

	t1 := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) // oldest
	t3 := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	for i, ts := range []time.Time{t1, t2, t3} {
		store.Upsert(mapping.Record{GitHubIssueID: int64(i + 1), LastSyncedAt: ts})
	}

	if _, err := engine.RunSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(up.SinceCalls) != 1 || !up.SinceCalls[0].Equal(t2) {
		t.Errorf("since = %v, want single query at oldest watermark %v", up.SinceCalls, t2)
	}
}

func TestRunSyncUnchanged(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	issue.UpdatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
	}
	down := &mockDownstream{}
	engine, store := newTestEngine(t, up, down)

	// Mapped and synced after the issue's last update.
	store.Upsert(mapping.Record{
		GitHubIssueID: 42, GitHubIssueNumber: 7,
		YouTrackTaskID: "3-1", YouTrackTaskIDReadable: "PROJ-1",
		LastSyncedAt: issue.UpdatedAt.Add(time.Hour),
	})

	res, err := engine.RunSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := SyncResult{Updated: 0, Unchanged: 1, Errors: 0, Total: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if len(down.UpdateCalls) != 0 || len(down.CreateCalls) != 0 {
		t.Errorf("unchanged issue must not touch downstream: updates=%v creates=%v", down.UpdateCalls, down.CreateCalls)
	}
}

func TestRunSyncUpdatesAndAdvancesWatermark(t *testing.T) {
	lastSynced := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	passStart := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)

	issue := openIssue(42, 7, "Bug, now worse")
	issue.UpdatedAt = lastSynced.Add(time.Hour)

	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
	}
	down := &mockDownstream{}
	engine, store := newTestEngine(t, up, down)
	engine.now = func() time.Time { return passStart }

	store.Upsert(mapping.Record{
		GitHubIssueID: 42, GitHubIssueNumber: 7,
		YouTrackTaskID: "3-1", YouTrackTaskIDReadable: "PROJ-1",
		LastSyncedAt: lastSynced,
	})

	res, err := engine.RunSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := SyncResult{Updated: 1, Unchanged: 0, Errors: 0, Total: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if len(down.UpdateCalls) != 1 || down.UpdateCalls[0] != "3-1" {
		t.Errorf("update calls = %v, want [3-1]", down.UpdateCalls)
	}

	rec, _ := store.Get(42)
	if !rec.LastSyncedAt.Equal(passStart) {
		t.Errorf("LastSyncedAt = %v, want pass start %v", rec.LastSyncedAt, passStart)
	}
}

func TestRunSyncFallbackCreate(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	issue.UpdatedAt = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
	}
	down := &mockDownstream{
		UpdateTaskFunc: func(ctx context.Context, taskID string, update youtrack.TaskUpdate) error {
			return fmt.Errorf("404 task deleted")
		},
		CreateTaskFunc: func(ctx context.Context, task youtrack.TaskCreate) (*youtrack.Task, error) {
			return &youtrack.Task{ID: "3-55", IDReadable: "PROJ-55"}, nil
		},
	}
	engine, store := newTestEngine(t, up, down)

	store.Upsert(mapping.Record{
		GitHubIssueID: 42, GitHubIssueNumber: 7,
		YouTrackTaskID: "3-1", YouTrackTaskIDReadable: "PROJ-1",
		LastSyncedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	res, err := engine.RunSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Errors != 0 {
		t.Errorf("result = %+v, want the recovered item counted as updated", res)
	}
	if len(down.CreateCalls) != 1 {
		t.Errorf("got %d CreateTask calls, want exactly 1 replacement", len(down.CreateCalls))
	}

	rec, _ := store.Get(42)
	if rec.YouTrackTaskID != "3-55" || rec.YouTrackTaskIDReadable != "PROJ-55" {
		t.Errorf("mapping not repointed at replacement task: %+v", rec)
	}
	if rec.GitHubIssueID != 42 || rec.GitHubIssueNumber != 7 {
		t.Errorf("upstream identity must survive the repoint: %+v", rec)
	}
}

func TestRunSyncFallbackCreateFailure(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	issue.UpdatedAt = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
	}
	down := &mockDownstream{
		UpdateTaskFunc: func(ctx context.Context, taskID string, update youtrack.TaskUpdate) error {
			return fmt.Errorf("404")
		},
		CreateTaskFunc: func(ctx context.Context, task youtrack.TaskCreate) (*youtrack.Task, error) {
			return nil, fmt.Errorf("500")
		},
	}
	engine, store := newTestEngine(t, up, down)

	original := mapping.Record{
		GitHubIssueID: 42, GitHubIssueNumber: 7,
		YouTrackTaskID: "3-1", YouTrackTaskIDReadable: "PROJ-1",
		LastSyncedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	store.Upsert(original)

	res, err := engine.RunSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Errors != 1 || res.Updated != 0 {
		t.Errorf("result = %+v, want one error", res)
	}

	rec, _ := store.Get(42)
	if !rec.LastSyncedAt.Equal(original.LastSyncedAt) {
		t.Errorf("failed item must keep its watermark for retry, got %v", rec.LastSyncedAt)
	}
}

func TestRunSyncSkipsUnmappedIssues(t *testing.T) {
	mapped := openIssue(1, 1, "mapped")
	mapped.UpdatedAt = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	unmapped := openIssue(2, 2, "new issue")
	unmapped.UpdatedAt = mapped.UpdatedAt

	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{mapped, unmapped}, nil
		},
	}
	down := &mockDownstream{}
	engine, store := newTestEngine(t, up, down)

	store.Upsert(mapping.Record{
		GitHubIssueID: 1, GitHubIssueNumber: 1,
		YouTrackTaskID: "3-1", YouTrackTaskIDReadable: "PROJ-1",
		LastSyncedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	res, err := engine.RunSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Errors != 0 {
		t.Errorf("result = %+v, want only the mapped issue updated", res)
	}
	if len(down.CreateCalls) != 0 {
		t.Error("sync must never create tasks for unmapped issues")
	}
	if _, ok := store.Get(2); ok {
		t.Error("unmapped issue must not gain a mapping during sync")
	}
}

func TestSyncCommentsDedup(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	issue.UpdatedAt = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	upstreamComments := []github.Comment{
		{ID: 1, Body: "first"},
		{ID: 2, Body: "second"},
		{ID: 3, Body: "third"},
	}

	up := &mockUpstream{
		ListIssuesFunc: func(ctx context.Context, since time.Time) ([]github.Issue, error) {
			return []github.Issue{issue}, nil
		},
		ListCommentsFunc: func(ctx context.Context, number int) ([]github.Comment, error) {
			return upstreamComments, nil
		},
	}
	down := &mockDownstream{
		GetTaskFunc: func(ctx context.Context, taskID string) (*youtrack.Task, error) {
			// Two comments already transferred, markers embedded.
			return &youtrack.Task{
				ID: taskID,
				Comments: []youtrack.Comment{
					{ID: "c-1", Text: "first\n\nGitHub Comment ID: 1"},
					{ID: "c-2", Text: "second\n\nGitHub Comment ID: 2"},
				},
			}, nil
		},
	}
	engine, store := newTestEngine(t, up, down)

	store.Upsert(mapping.Record{
		GitHubIssueID: 42, GitHubIssueNumber: 7,
		YouTrackTaskID: "3-1", YouTrackTaskIDReadable: "PROJ-1",
		LastSyncedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	if _, err := engine.RunSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(down.CommentCalls) != 1 {
		t.Fatalf("got %d AddComment calls, want 1 (only the missing comment)", len(down.CommentCalls))
	}
	ids := converter.ExtractCommentIDs(down.CommentCalls[0])
	if len(ids) != 1 || ids[0] != 3 {
		t.Errorf("transferred comment carries marker ids %v, want [3]", ids)
	}
}

func TestImportIssueTargeted(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	up := &mockUpstream{
		GetIssueFunc: func(ctx context.Context, number int) (*github.Issue, error) {
			if number != 7 {
				t.Errorf("GetIssue(%d), want 7", number)
			}
			return &issue, nil
		},
	}
	down := &mockDownstream{}
	engine, store := newTestEngine(t, up, down)

	if err := engine.ImportIssue(context.Background(), 7); err != nil {
		t.Fatalf("ImportIssue: %v", err)
	}
	if _, ok := store.Get(42); !ok {
		t.Error("targeted import did not persist a mapping")
	}

	// Second targeted import is a skip, not an error or a duplicate.
	if err := engine.ImportIssue(context.Background(), 7); err != nil {
		t.Fatalf("repeat ImportIssue: %v", err)
	}
	if len(down.CreateCalls) != 1 {
		t.Errorf("got %d CreateTask calls, want 1", len(down.CreateCalls))
	}
}

func TestSyncIssueTargeted(t *testing.T) {
	issue := openIssue(42, 7, "Bug")
	issue.UpdatedAt = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	up := &mockUpstream{
		GetIssueFunc: func(ctx context.Context, number int) (*github.Issue, error) {
			return &issue, nil
		},
	}
	down := &mockDownstream{}
	engine, store := newTestEngine(t, up, down)

	store.Upsert(mapping.Record{
		GitHubIssueID: 42, GitHubIssueNumber: 7,
		YouTrackTaskID: "3-1", YouTrackTaskIDReadable: "PROJ-1",
		LastSyncedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	if err := engine.SyncIssue(context.Background(), 7); err != nil {
		t.Fatalf("SyncIssue: %v", err)
	}
	if len(down.UpdateCalls) != 1 {
		t.Errorf("got %d UpdateTask calls, want 1", len(down.UpdateCalls))
	}
}
