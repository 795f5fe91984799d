package github

import "time"

// Issue is the subset of a GitHub issue the sync engine cares about.
// Pull requests are filtered out before an Issue is ever built.
type Issue struct {
	ID        int64
	Number    int
	Title     string
	Body      string
	State     string // "open" or "closed"
	HTMLURL   string
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time // zero if the issue is open
	User      User
	Labels    []string
	Assignees []string
	Comments  int // comment count reported by the API
}

// Closed reports whether the issue is in the closed state.
func (i Issue) Closed() bool {
	return i.State == "closed"
}

// Comment is a single issue comment.
type Comment struct {
	ID        int64
	Body      string
	User      User
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User identifies the author of an issue or comment.
type User struct {
	Login   string
	HTMLURL string
}
