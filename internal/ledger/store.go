package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"genimg/internal/logging"
)

const (
	statusFile = "status.json"
	sentFile   = "sent.json"
)

// Store reads and writes ledger documents under <root>/<project>/.
//
// Reads never fail the caller: a missing or corrupt document is replaced by an
// empty default (and logged). Writes are read-modify-write with an atomic
// replace, so the documents are valid between writes. The store assumes a single
// process per project and performs no locking.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a store rooted at root (typically <base>/runs).
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("ledger root is required")
	}
	return &Store{root: root, now: time.Now}, nil
}

// Root returns the directory holding every project's run directory.
func (s *Store) Root() string {
	return s.root
}

// RunDir returns the run directory for project.
func (s *Store) RunDir(project string) string {
	return filepath.Join(s.root, project)
}

func (s *Store) statusPath(project string) string {
	return filepath.Join(s.RunDir(project), statusFile)
}

func (s *Store) sentPath(project string) string {
	return filepath.Join(s.RunDir(project), sentFile)
}

// LoadStatus returns the project's RunStatus, or an empty one when the document
// is absent or unreadable.
func (s *Store) LoadStatus(project string) RunStatus {
	empty := RunStatus{Project: project, Items: []RunItem{}}

	data, err := os.ReadFile(s.statusPath(project))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LedgerWarn("read %s: %v (using empty status)", s.statusPath(project), err)
		}
		return empty
	}

	var st RunStatus
	if err := json.Unmarshal(data, &st); err != nil {
		logging.LedgerWarn("corrupt %s: %v (using empty status)", s.statusPath(project), err)
		return empty
	}
	if st.Project == "" {
		st.Project = project
	}
	if st.Items == nil {
		st.Items = []RunItem{}
	}
	return st
}

// UpsertItem replaces or appends item (keyed by prompt text), stamps
// updated_at and persists the document.
func (s *Store) UpsertItem(project string, item RunItem) error {
	if item.Prompt == "" {
		return errors.New("run item prompt is required")
	}
	st := s.LoadStatus(project)
	st.upsert(item)
	st.UpdatedAt = s.now().UTC()
	return s.writeStatus(project, st)
}

// PriorAttempts returns the recorded attempt_count for prompt, or 0.
func (s *Store) PriorAttempts(project, prompt string) int {
	if it, ok := s.LoadStatus(project).Item(prompt); ok {
		return it.AttemptCount
	}
	return 0
}

func (s *Store) writeStatus(project string, st RunStatus) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := writeFileAtomicDurable(s.statusPath(project), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// LoadSent returns the sent-prompt log in insertion order, or an empty slice
// when the document is absent or unreadable.
func (s *Store) LoadSent(project string) []string {
	data, err := os.ReadFile(s.sentPath(project))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LedgerWarn("read %s: %v (using empty sent log)", s.sentPath(project), err)
		}
		return []string{}
	}

	var sent []string
	if err := json.Unmarshal(data, &sent); err != nil {
		logging.LedgerWarn("corrupt %s: %v (using empty sent log)", s.sentPath(project), err)
		return []string{}
	}
	if sent == nil {
		sent = []string{}
	}
	return sent
}

// AppendSent records that prompt was transmitted. It is a no-op when the
// prompt is already present.
func (s *Store) AppendSent(project, prompt string) error {
	sent := s.LoadSent(project)
	for _, p := range sent {
		if p == prompt {
			return nil
		}
	}
	return s.writeSent(project, append(sent, prompt))
}

func (s *Store) writeSent(project string, sent []string) error {
	data, err := json.MarshalIndent(sent, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sent log: %w", err)
	}
	if err := writeFileAtomicDurable(s.sentPath(project), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write sent log: %w", err)
	}
	return nil
}

// Reset deletes the project's run directory, the documented way to force
// every prompt to run again.
func (s *Store) Reset(project string) error {
	if err := os.RemoveAll(s.RunDir(project)); err != nil {
		return fmt.Errorf("reset %s: %w", project, err)
	}
	return nil
}

// Forget removes one prompt from both documents so the next run submits it
// again. It reports whether anything was removed.
func (s *Store) Forget(project, prompt string) (bool, error) {
	removed := false

	st := s.LoadStatus(project)
	if st.remove(prompt) {
		removed = true
		st.UpdatedAt = s.now().UTC()
		if err := s.writeStatus(project, st); err != nil {
			return removed, err
		}
	}

	sent := s.LoadSent(project)
	kept := sent[:0]
	for _, p := range sent {
		if p != prompt {
			kept = append(kept, p)
		}
	}
	if len(kept) != len(sent) {
		removed = true
		if err := s.writeSent(project, kept); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Projects lists project directories present under the root.
func (s *Store) Projects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
