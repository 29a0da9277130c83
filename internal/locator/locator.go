// Package locator maps UI concepts of the external surface to ordered chains
// of CSS patterns. The chains are best effort: the surface makes no promise
// about its own structure, so every lookup walks the chain in priority order.
package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"genimg/internal/config"
	"genimg/internal/logging"
)

// Concept names a UI element the batch needs to find.
type Concept string

const (
	Composer    Concept = "composer"
	Response    Concept = "response"
	Dialog      Concept = "dialog"
	NewChat     Concept = "new_chat"
	SendButton  Concept = "send_button"
	SaveControl Concept = "save_control"
)

// Prober is the read-only slice of a surface the locator needs.
type Prober interface {
	Count(ctx context.Context, selector string) (int, error)
}

// MissError reports that no pattern for a concept matched within budget.
type MissError struct {
	Concept Concept
	Tried   []string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("locator: no %s found (tried %s)", e.Concept, strings.Join(e.Tried, " | "))
}

// Defaults returns the built-in chains, highest priority first.
func Defaults() map[Concept][]string {
	return map[Concept][]string{
		Composer: {
			"#prompt-textarea",
			`div[contenteditable="true"][id="prompt-textarea"]`,
			`div[contenteditable="true"]`,
			"textarea",
		},
		Response: {
			`[data-message-author-role="assistant"]`,
			`article[data-testid^="conversation-turn"]`,
			"div.markdown",
		},
		Dialog: {
			`[role="dialog"] button[aria-label="Close"]`,
			`[role="dialog"] button[data-testid="close-button"]`,
			`button[aria-label="閉じる"]`,
			`[role="dialog"] button`,
		},
		NewChat: {
			`[data-testid="create-new-chat-button"]`,
			`a[href="/"]`,
			`button[aria-label="New chat"]`,
		},
		SendButton: {
			`[data-testid="send-button"]`,
			`button[aria-label="Send prompt"]`,
			`button[aria-label="プロンプトを送信する"]`,
		},
		SaveControl: {
			`button[aria-label*="Download"]`,
			`button[aria-label*="ダウンロード"]`,
			`a[download]`,
			`button[aria-label*="Save"]`,
		},
	}
}

// Strategy holds one chain per concept and the per-candidate budget.
type Strategy struct {
	chains    map[Concept][]string
	budget    time.Duration
	pollEvery time.Duration
}

// NewStrategy builds a strategy from the built-in chains, replacing any
// concept the config overrides.
func NewStrategy(cfg config.LocatorsConfig) *Strategy {
	chains := Defaults()
	overrides := map[Concept][]string{
		Composer:    cfg.Composer,
		Response:    cfg.Response,
		Dialog:      cfg.Dialog,
		NewChat:     cfg.NewChat,
		SendButton:  cfg.SendButton,
		SaveControl: cfg.SaveControl,
	}
	for c, patterns := range overrides {
		if len(patterns) > 0 {
			chains[c] = append([]string(nil), patterns...)
		}
	}
	return &Strategy{
		chains:    chains,
		budget:    cfg.GetCandidateTimeout(),
		pollEvery: 100 * time.Millisecond,
	}
}

// WithBudget returns a copy using a different per-candidate budget.
func (s *Strategy) WithBudget(budget, pollEvery time.Duration) *Strategy {
	cp := *s
	cp.budget = budget
	if pollEvery > 0 {
		cp.pollEvery = pollEvery
	}
	return &cp
}

// Patterns returns the chain for c, highest priority first.
func (s *Strategy) Patterns(c Concept) []string {
	return append([]string(nil), s.chains[c]...)
}

// Find walks the chain for c, giving each pattern up to the candidate budget
// to match at least one element. It returns the first pattern that matched.
func (s *Strategy) Find(ctx context.Context, p Prober, c Concept) (string, error) {
	log := logging.Get(logging.CategoryLocator)
	tried := make([]string, 0, len(s.chains[c]))
	for _, pattern := range s.chains[c] {
		tried = append(tried, pattern)
		ok, err := s.waitFor(ctx, p, pattern)
		if err != nil {
			return "", err
		}
		if ok {
			log.Debug("%s matched %q", c, pattern)
			return pattern, nil
		}
	}
	return "", &MissError{Concept: c, Tried: tried}
}

// FirstMatch is Find without waiting: the first pattern currently matching.
func (s *Strategy) FirstMatch(ctx context.Context, p Prober, c Concept) (string, bool) {
	for _, pattern := range s.chains[c] {
		if n, err := p.Count(ctx, pattern); err == nil && n > 0 {
			return pattern, true
		}
	}
	return "", false
}

// Counts returns the current match count of every pattern in the chain.
// Patterns whose probe fails are left out, along with the last probe error.
func (s *Strategy) Counts(ctx context.Context, p Prober, c Concept) (map[string]int, error) {
	out := make(map[string]int, len(s.chains[c]))
	var lastErr error
	for _, pattern := range s.chains[c] {
		n, err := p.Count(ctx, pattern)
		if err != nil {
			lastErr = err
			continue
		}
		out[pattern] = n
	}
	return out, lastErr
}

func (s *Strategy) waitFor(ctx context.Context, p Prober, pattern string) (bool, error) {
	deadline := time.Now().Add(s.budget)
	for {
		if n, err := p.Count(ctx, pattern); err == nil && n > 0 {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := s.pollEvery
		if remaining < wait {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
}
