package locator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"genimg/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu     sync.Mutex
	counts map[string]int
	errs   map[string]error
	calls  []string
}

func (f *fakeProber) Count(_ context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, selector)
	if err := f.errs[selector]; err != nil {
		return 0, err
	}
	return f.counts[selector], nil
}

func fastStrategy(cfg config.LocatorsConfig) *Strategy {
	return NewStrategy(cfg).WithBudget(20*time.Millisecond, 5*time.Millisecond)
}

func TestFind_PriorityOrder(t *testing.T) {
	s := fastStrategy(config.LocatorsConfig{})
	chain := s.Patterns(Composer)
	require.GreaterOrEqual(t, len(chain), 3)

	// Both the second and third patterns match; the second wins.
	p := &fakeProber{counts: map[string]int{chain[1]: 1, chain[2]: 1}}
	got, err := s.Find(context.Background(), p, Composer)
	require.NoError(t, err)
	assert.Equal(t, chain[1], got)
	assert.NotContains(t, p.calls, chain[2])
}

func TestFind_MissListsEveryPattern(t *testing.T) {
	s := fastStrategy(config.LocatorsConfig{})
	_, err := s.Find(context.Background(), &fakeProber{}, NewChat)

	var miss *MissError
	require.True(t, errors.As(err, &miss))
	assert.Equal(t, NewChat, miss.Concept)
	assert.Equal(t, s.Patterns(NewChat), miss.Tried)
	assert.Contains(t, err.Error(), "new_chat")
}

func TestFind_WaitsWithinCandidateBudget(t *testing.T) {
	s := NewStrategy(config.LocatorsConfig{Composer: []string{"#late"}}).
		WithBudget(time.Second, 5*time.Millisecond)
	p := &fakeProber{counts: map[string]int{}}

	go func() {
		time.Sleep(30 * time.Millisecond)
		p.mu.Lock()
		p.counts["#late"] = 1
		p.mu.Unlock()
	}()

	got, err := s.Find(context.Background(), p, Composer)
	require.NoError(t, err)
	assert.Equal(t, "#late", got)
}

func TestFind_Cancelled(t *testing.T) {
	s := NewStrategy(config.LocatorsConfig{}).WithBudget(time.Minute, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Find(ctx, &fakeProber{}, Dialog)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStrategy_Overrides(t *testing.T) {
	s := NewStrategy(config.LocatorsConfig{Response: []string{".bubble"}})
	assert.Equal(t, []string{".bubble"}, s.Patterns(Response))
	assert.Equal(t, Defaults()[Composer], s.Patterns(Composer))
}

func TestFirstMatchAndCounts(t *testing.T) {
	s := fastStrategy(config.LocatorsConfig{Response: []string{".a", ".b"}})
	p := &fakeProber{counts: map[string]int{".b": 3}}

	got, ok := s.FirstMatch(context.Background(), p, Response)
	require.True(t, ok)
	assert.Equal(t, ".b", got)

	counts, err := s.Counts(context.Background(), p, Response)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{".a": 0, ".b": 3}, counts)

	_, ok = s.FirstMatch(context.Background(), &fakeProber{}, Response)
	assert.False(t, ok)
}

func TestCounts_OmitsFailedPatterns(t *testing.T) {
	s := fastStrategy(config.LocatorsConfig{Response: []string{".a", ".b"}})
	detached := errors.New("detached")
	p := &fakeProber{
		counts: map[string]int{".a": 4, ".b": 2},
		errs:   map[string]error{".a": detached},
	}

	counts, err := s.Counts(context.Background(), p, Response)
	assert.ErrorIs(t, err, detached)
	assert.Equal(t, map[string]int{".b": 2}, counts, "an uncounted pattern is not a zero count")
}
