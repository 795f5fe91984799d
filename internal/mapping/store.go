// Package mapping persists the GitHub-issue to YouTrack-task identity
// table that makes import and sync idempotent across restarts.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record links one GitHub issue to the YouTrack task created for it.
// GitHubIssueID is the table key; the task ids are set once at creation
// and only replaced by the update-failure fallback path.
type Record struct {
	GitHubIssueID          int64     `json:"githubIssueId"`
	GitHubIssueNumber      int       `json:"githubIssueNumber"`
	YouTrackTaskID         string    `json:"youtrackTaskId"`
	YouTrackTaskIDReadable string    `json:"youtrackTaskIdReadable"`
	LastSyncedAt           time.Time `json:"lastSyncedAt"`
}

// Store is an in-memory mapping table backed by a JSON file. Every
// mutation rewrites the whole file before returning, so a crash loses
// at most the in-flight mutation. Records keep insertion order.
type Store struct {
	mu      sync.RWMutex
	path    string
	records []Record
}

// Open loads the mapping table from path. A missing file yields an
// empty table, not an error.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record for a GitHub issue id.
func (s *Store) Get(issueID int64) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.GitHubIssueID == issueID {
			return r, true
		}
	}
	return Record{}, false
}

// GetByNumber returns the record for a GitHub issue number.
func (s *Store) GetByNumber(number int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.GitHubIssueNumber == number {
			return r, true
		}
	}
	return Record{}, false
}

// GetByTaskID returns the record pointing at a YouTrack task id.
func (s *Store) GetByTaskID(taskID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.YouTrackTaskID == taskID {
			return r, true
		}
	}
	return Record{}, false
}

// Upsert replaces the record with the same GitHubIssueID or appends a
// new one, then persists the table.
func (s *Store) Upsert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, r := range s.records {
		if r.GitHubIssueID == rec.GitHubIssueID {
			s.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, rec)
	}
	return s.save()
}

// Delete removes the record for a GitHub issue id. Returns true and
// persists if a record was removed.
func (s *Store) Delete(issueID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records {
		if r.GitHubIssueID == issueID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true, s.save()
		}
	}
	return false, nil
}

// All returns the records in insertion order.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// save rewrites the whole table. Written to a temp file and renamed so
// a crash mid-write never corrupts committed records. Caller holds mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mappings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create mapping directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace mapping file: %w", err)
	}
	return nil
}
