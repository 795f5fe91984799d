// Package converter shapes GitHub issues and comments into YouTrack
// payloads. Everything here is pure: no I/O, no clock, no failure —
// missing optional fields degrade to omission.
package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/trackease/ghsync/internal/github"
	"github.com/trackease/ghsync/internal/youtrack"
)

const (
	stateDone = "Done"
	stateToDo = "To do"

	// commentIDMarker prefixes the machine-parseable marker appended to
	// comments created by the sync pass. ExtractCommentIDs must keep
	// matching whatever format is emitted here.
	commentIDMarker = "GitHub Comment ID: "
)

var commentIDPattern = regexp.MustCompile(`GitHub Comment ID: (\d+)`)

// ToTaskCreate builds the creation payload for an issue. The issue
// body (empty when GitHub reports it as null) is followed by a
// provenance footer so the origin survives without extra task fields.
func ToTaskCreate(issue github.Issue) youtrack.TaskCreate {
	return youtrack.TaskCreate{
		Summary:     issue.Title,
		Description: issue.Body + footer(issue, false),
		CustomFields: []youtrack.CustomField{
			{
				Type:  "SingleEnumIssueCustomField",
				Name:  "Priority",
				Value: &youtrack.FieldValue{Name: "Normal"},
			},
			{
				Type:  "StateIssueCustomField",
				Name:  "State",
				Value: &youtrack.FieldValue{Name: stateName(issue)},
			},
		},
	}
}

// ToTaskUpdate builds the update payload for an issue. It recomputes
// the same summary/description/state as creation — applying it twice
// for the same issue snapshot yields the same payload — and the footer
// additionally carries explicit state and label lines.
func ToTaskUpdate(issue github.Issue) youtrack.TaskUpdate {
	return youtrack.TaskUpdate{
		Summary:     issue.Title,
		Description: issue.Body + footer(issue, true),
		CustomFields: []youtrack.CustomField{
			{
				Type:  "StateIssueCustomField",
				Name:  "State",
				Value: &youtrack.FieldValue{Name: stateName(issue)},
			},
		},
	}
}

// FormatComment renders a comment body with its provenance footer.
func FormatComment(c github.Comment) string {
	var b strings.Builder
	b.WriteString(c.Body)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "**GitHub Comment by:** [%s](%s)\n", c.User.Login, c.User.HTMLURL)
	fmt.Fprintf(&b, "**Created:** %s\n", formatTime(c.CreatedAt))
	if !c.UpdatedAt.Equal(c.CreatedAt) {
		fmt.Fprintf(&b, "**Updated:** %s\n", formatTime(c.UpdatedAt))
	}
	return b.String()
}

// FormatSyncComment is FormatComment plus the comment-id marker that
// lets a later pass recognize the comment as already transferred.
func FormatSyncComment(c github.Comment) string {
	return FormatComment(c) + "\n\n" + commentIDMarker + strconv.FormatInt(c.ID, 10)
}

// ExtractCommentIDs returns every GitHub comment id embedded in text.
func ExtractCommentIDs(text string) []int64 {
	var ids []int64
	for _, m := range commentIDPattern.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func stateName(issue github.Issue) string {
	if issue.Closed() {
		return stateDone
	}
	return stateToDo
}

// footer renders the provenance block appended to task descriptions.
// withState adds the explicit state line used by update payloads.
func footer(issue github.Issue, withState bool) string {
	var b strings.Builder
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "**GitHub Issue:** [#%d](%s)\n", issue.Number, issue.HTMLURL)
	if issue.User.Login != "" {
		fmt.Fprintf(&b, "**Reported by:** [%s](%s)\n", issue.User.Login, issue.User.HTMLURL)
	}
	fmt.Fprintf(&b, "**Created:** %s\n", formatTime(issue.CreatedAt))
	fmt.Fprintf(&b, "**Updated:** %s\n", formatTime(issue.UpdatedAt))
	if !issue.ClosedAt.IsZero() {
		fmt.Fprintf(&b, "**Closed:** %s\n", formatTime(issue.ClosedAt))
	}
	if withState {
		fmt.Fprintf(&b, "**State:** %s\n", stateName(issue))
	}
	if len(issue.Labels) > 0 || withState {
		fmt.Fprintf(&b, "**Labels:** %s\n", joinOrNone(issue.Labels))
	}
	if len(issue.Assignees) > 0 {
		fmt.Fprintf(&b, "**Assignees:** %s\n", strings.Join(issue.Assignees, ", "))
	}
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
