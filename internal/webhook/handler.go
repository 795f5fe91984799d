package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/trackease/ghsync/internal/mapping"
)

// Engine is the slice of the reconciliation engine the dispatcher
// drives: targeted single-issue passes, invoked directly instead of
// re-running whole import/sync commands.
type Engine interface {
	ImportIssue(ctx context.Context, number int) error
	SyncIssue(ctx context.Context, number int) error
}

// Handler verifies and routes GitHub webhook deliveries. Signature
// verification happens before any payload parsing or engine call.
type Handler struct {
	secret string
	engine Engine
	store  *mapping.Store
}

// NewHandler creates a webhook handler.
func NewHandler(secret string, engine Engine, store *mapping.Store) *Handler {
	return &Handler{secret: secret, engine: engine, store: store}
}

// Handle is the POST endpoint for webhook deliveries.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading payload: %v", err)
		http.Error(w, "Error reading payload", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := ValidateSignatureHeader(signature); err != nil {
		log.Printf("Invalid signature header: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	if !VerifySignature(payload, signature, h.secret) {
		log.Printf("Signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	log.Printf("Received webhook event: %s (delivery %s)", event, delivery)

	switch event {
	case "issues":
		h.handleIssues(r.Context(), w, payload)
	case "issue_comment":
		h.handleIssueComment(r.Context(), w, payload)
	default:
		log.Printf("Ignoring unsupported event type: %s", event)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Event ignored"))
	}
}

func (h *Handler) handleIssues(ctx context.Context, w http.ResponseWriter, payload []byte) {
	var event IssuesEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("Error parsing issues event: %v", err)
		http.Error(w, "Error parsing event", http.StatusBadRequest)
		return
	}
	if event.Issue.PullRequest != nil {
		log.Printf("Ignoring pull request #%d", event.Issue.Number)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Pull request ignored"))
		return
	}

	switch event.Action {
	case "opened":
		if existing, ok := h.store.Get(event.Issue.ID); ok {
			log.Printf("Issue #%d already imported as %s", event.Issue.Number, existing.YouTrackTaskIDReadable)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Already imported"))
			return
		}
		h.importIssue(ctx, w, event.Issue.Number)

	case "edited", "closed", "reopened", "labeled", "unlabeled", "assigned", "unassigned":
		if _, ok := h.store.Get(event.Issue.ID); !ok {
			// Not imported yet; treat the update as a fresh open.
			log.Printf("Issue #%d not yet imported, importing now...", event.Issue.Number)
			h.importIssue(ctx, w, event.Issue.Number)
			return
		}
		h.syncIssue(ctx, w, event.Issue.Number)

	default:
		log.Printf("Ignoring unsupported issue action: %s", event.Action)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Issue action ignored"))
	}
}

func (h *Handler) handleIssueComment(ctx context.Context, w http.ResponseWriter, payload []byte) {
	var event IssueCommentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("Error parsing issue_comment event: %v", err)
		http.Error(w, "Error parsing event", http.StatusBadRequest)
		return
	}

	if event.Action != "created" && event.Action != "edited" {
		log.Printf("Ignoring issue_comment action: %s", event.Action)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Comment action ignored"))
		return
	}

	if _, ok := h.store.Get(event.Issue.ID); !ok {
		// Comments on issues that were never imported are dropped.
		log.Printf("Issue #%d not yet imported, ignoring comment", event.Issue.Number)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Comment on unmapped issue ignored"))
		return
	}
	h.syncIssue(ctx, w, event.Issue.Number)
}

// importIssue and syncIssue run targeted passes. Per-item failures are
// logged and acknowledged with 200: GitHub retrying the delivery would
// not help, the next scheduled pass picks the issue up again.

func (h *Handler) importIssue(ctx context.Context, w http.ResponseWriter, number int) {
	if err := h.engine.ImportIssue(ctx, number); err != nil {
		log.Printf("Error handling issue event for #%d: %v", number, err)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Import failed"))
		return
	}
	log.Printf("Successfully processed new issue #%d", number)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Issue imported"))
}

func (h *Handler) syncIssue(ctx context.Context, w http.ResponseWriter, number int) {
	if err := h.engine.SyncIssue(ctx, number); err != nil {
		log.Printf("Error handling issue event for #%d: %v", number, err)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Sync failed"))
		return
	}
	log.Printf("Successfully processed update for issue #%d", number)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Issue synced"))
}
