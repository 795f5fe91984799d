package webhook

// Minimal views of the GitHub webhook payloads: just enough to route
// the event and look up the mapping. Targeted passes refetch the full
// issue from the API anyway.

type IssuesEvent struct {
	Action string `json:"action"`
	Issue  Issue  `json:"issue"`
}

type IssueCommentEvent struct {
	Action  string  `json:"action"`
	Issue   Issue   `json:"issue"`
	Comment Comment `json:"comment"`
}

type Issue struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}

type Comment struct {
	ID int64 `json:"id"`
}
