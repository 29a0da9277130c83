package browser

import (
	"context"
	"sync"

	"genimg/internal/locator"
	"genimg/internal/logging"

	"github.com/google/uuid"
)

// State is the lifecycle state.
type State int

const (
	NoSession State = iota
	LiveSession
)

func (s State) String() string {
	if s == LiveSession {
		return "live"
	}
	return "none"
}

// Lifecycle owns at most one live session. Any failed attempt tears it down
// wholesale; the next Ensure builds a new one. There is no partial recovery.
type Lifecycle struct {
	opener   Opener
	strategy *locator.Strategy
	entryURL string

	mu      sync.Mutex
	state   State
	surface Surface
	opened  int
}

// NewLifecycle creates a lifecycle in NoSession.
func NewLifecycle(opener Opener, strategy *locator.Strategy, entryURL string) *Lifecycle {
	return &Lifecycle{
		opener:   opener,
		strategy: strategy,
		entryURL: entryURL,
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Opened returns how many sessions have been opened so far.
func (l *Lifecycle) Opened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened
}

// Current returns the live surface, or nil.
func (l *Lifecycle) Current() Surface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.surface
}

// Ensure returns the live surface, opening one first if needed. Opening
// navigates to the entry URL, then dismisses a blocking dialog and starts a
// fresh conversation, both best effort. Failures are *SessionError.
func (l *Lifecycle) Ensure(ctx context.Context) (Surface, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == LiveSession && l.surface != nil {
		return l.surface, nil
	}

	log := logging.Get(logging.CategoryBrowser)
	id := uuid.NewString()
	timer := logging.StartTimer(logging.CategoryBrowser, "session open")

	s, err := l.opener.Open(ctx, id)
	if err != nil {
		return nil, &SessionError{Op: "open", Err: err}
	}
	if err := s.Navigate(ctx, l.entryURL); err != nil {
		_ = s.Close()
		return nil, &SessionError{Op: "navigate", Err: err}
	}

	if sel, err := l.strategy.Find(ctx, s, locator.Dialog); err == nil {
		if err := s.Click(ctx, sel); err != nil {
			logging.BrowserDebug("session %s: dialog dismiss failed: %v", id, err)
		}
	} else {
		logging.BrowserDebug("session %s: no dialog to dismiss", id)
	}

	if sel, err := l.strategy.Find(ctx, s, locator.NewChat); err == nil {
		if err := s.Click(ctx, sel); err != nil {
			logging.BrowserDebug("session %s: new chat click failed: %v", id, err)
		}
	} else {
		logging.BrowserDebug("session %s: new chat control not found", id)
	}

	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return nil, &SessionError{Op: "open", Err: err}
	}

	l.surface = s
	l.state = LiveSession
	l.opened++
	timer.Stop()
	log.Info("session %s live at %s", id, l.entryURL)
	return s, nil
}

// Teardown closes the live session unconditionally and returns to
// NoSession. Close errors are logged, never returned.
func (l *Lifecycle) Teardown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.teardownLocked()
}

func (l *Lifecycle) teardownLocked() error {
	var err error
	if l.surface != nil {
		id := l.surface.ID()
		if err = l.surface.Close(); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("session %s: close: %v", id, err)
			err = &SessionError{Op: "close", Err: err}
		} else {
			logging.Get(logging.CategoryBrowser).Info("session %s closed", id)
		}
	}
	l.surface = nil
	l.state = NoSession
	return err
}

// Close is Teardown for process shutdown. Unlike Teardown it reports a
// failed close; the lifecycle is back in NoSession either way.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.teardownLocked()
}
