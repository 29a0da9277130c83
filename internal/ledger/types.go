// Package ledger persists the per-project run ledger: one RunItem per prompt
// (status.json) and the log of prompts transmitted to the external session
// (sent.json). Both documents are plain, hand-editable JSON.
package ledger

import "time"

// Status is the terminal outcome of one prompt attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// RunItem is the latest attempt record for one prompt. Re-processing a prompt
// replaces its item; AttemptCount carries over from the prior value.
type RunItem struct {
	Prompt       string    `json:"prompt"`
	Status       Status    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Outputs      []string  `json:"outputs,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// RunStatus is the status document for one project. Items keep first-seen
// order; the prompt text is the key.
type RunStatus struct {
	Project   string    `json:"project"`
	UpdatedAt time.Time `json:"updated_at"`
	Items     []RunItem `json:"items"`
}

// Item returns the RunItem for prompt, if any.
func (s RunStatus) Item(prompt string) (RunItem, bool) {
	for _, it := range s.Items {
		if it.Prompt == prompt {
			return it, true
		}
	}
	return RunItem{}, false
}

// Counts tallies items by status.
func (s RunStatus) Counts() (succeeded, failed int) {
	for _, it := range s.Items {
		switch it.Status {
		case StatusSuccess:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	return succeeded, failed
}

// upsert replaces the item keyed by item.Prompt or appends it.
func (s *RunStatus) upsert(item RunItem) {
	for i := range s.Items {
		if s.Items[i].Prompt == item.Prompt {
			s.Items[i] = item
			return
		}
	}
	s.Items = append(s.Items, item)
}

// remove drops the item keyed by prompt, reporting whether it existed.
func (s *RunStatus) remove(prompt string) bool {
	for i := range s.Items {
		if s.Items[i].Prompt == prompt {
			s.Items = append(s.Items[:i], s.Items[i+1:]...)
			return true
		}
	}
	return false
}
