package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"genimg/internal/browser"
	"genimg/internal/browser/browsertest"
	"genimg/internal/config"
	"genimg/internal/locator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	composer = "#prompt-textarea"
	response = `[data-message-author-role="assistant"]`
)

func fastOptions() Options {
	opts := OptionsFromConfig(config.DefaultDetectionConfig())
	opts.PollInterval = 5 * time.Millisecond
	opts.NewResponseTimeout = 500 * time.Millisecond
	opts.AssetReadyTimeout = 100 * time.Millisecond
	opts.QuietWindow = 20 * time.Millisecond
	opts.QuiescenceMax = 100 * time.Millisecond
	opts.InputReadyTimeout = 50 * time.Millisecond
	return opts
}

func newDetector(opts Options) *Detector {
	return New(opts, locator.NewStrategy(config.LocatorsConfig{}))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "await_new_response", AwaitNewResponse.String())
	assert.Equal(t, "await_input_ready", AwaitInputReady.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}

func TestWait_HappyPath(t *testing.T) {
	s := browsertest.NewChat("s1", composer, response)
	d := newDetector(fastOptions())

	base, err := d.Baseline(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 0, base[response])

	require.NoError(t, s.Fill(context.Background(), composer, "a cat"))
	require.NoError(t, s.PressEnter(context.Background(), composer))

	rep, err := d.Wait(context.Background(), s, base)
	require.NoError(t, err)
	assert.Equal(t, response, rep.ResponseSelector)
	require.Len(t, rep.Phases, 4)
	for i, p := range rep.Phases {
		assert.Equal(t, Phase(i+1), p.Phase, "phases run in order")
		assert.True(t, p.Reached, "%s reached", p.Phase)
	}
	assert.False(t, rep.Degraded())
	assert.Contains(t, s.Calls(), "InstallMutationProbe "+response)
}

func TestWait_NewResponseTakesAtLeastNPolls(t *testing.T) {
	const n = 6
	opts := fastOptions()
	opts.PollInterval = 10 * time.Millisecond
	opts.NewResponseTimeout = 2 * time.Second

	s := browsertest.NewChat("s1", composer, response)
	s.Blocks = []browser.BlockState{browsertest.ReadyBlock("https://files.example/x.png")}

	var (
		mu    sync.Mutex
		polls int
	)
	s.CountFunc = func(selector string) (int, error) {
		switch selector {
		case composer:
			return 1, nil
		case response:
		default:
			return 0, nil
		}
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls > n {
			return 1, nil
		}
		return 0, nil
	}

	d := newDetector(opts)
	start := time.Now()
	rep, err := d.Wait(context.Background(), s, Baseline{response: 0})
	require.NoError(t, err)

	first := rep.Phases[0]
	assert.Equal(t, AwaitNewResponse, first.Phase)
	assert.Equal(t, n+1, first.Polls)
	assert.GreaterOrEqual(t, first.Elapsed, time.Duration(n)*opts.PollInterval)
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(n)*opts.PollInterval)
}

func TestWait_NoNewResponseIsHardTimeout(t *testing.T) {
	s := browsertest.New("s1")
	s.Elements[composer] = 1
	s.Elements[response] = 2

	opts := fastOptions()
	opts.NewResponseTimeout = 40 * time.Millisecond
	d := newDetector(opts)

	base, err := d.Baseline(context.Background(), s)
	require.NoError(t, err)
	rep, err := d.Wait(context.Background(), s, base)
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, AwaitNewResponse, te.Phase)
	assert.Contains(t, err.Error(), "no new response")
	require.Len(t, rep.Phases, 1, "later phases never run")
	assert.True(t, rep.Phases[0].TimedOut)
}

func TestBaseline_FailsWhenNothingCounts(t *testing.T) {
	s := browsertest.New("s1")
	s.Errs["Count"] = errors.New("target closed")

	_, err := newDetector(fastOptions()).Baseline(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target closed")
}

func TestWait_UncountedPatternIsNotANewResponse(t *testing.T) {
	s := browsertest.New("s1")
	var (
		mu       sync.Mutex
		detached = true
	)
	// Three earlier responses are on the page, but the primary pattern
	// cannot be counted while the baseline is taken.
	s.CountFunc = func(selector string) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		switch selector {
		case composer:
			return 1, nil
		case response:
			if detached {
				return 0, errors.New("execution context destroyed")
			}
			return 3, nil
		}
		return 0, nil
	}

	opts := fastOptions()
	opts.NewResponseTimeout = 40 * time.Millisecond
	d := newDetector(opts)

	base, err := d.Baseline(context.Background(), s)
	require.NoError(t, err)
	_, counted := base[response]
	assert.False(t, counted)

	mu.Lock()
	detached = false
	mu.Unlock()

	rep, err := d.Wait(context.Background(), s, base)
	var te *TimeoutError
	require.ErrorAs(t, err, &te, "existing responses must not pass phase 1")
	require.Len(t, rep.Phases, 1)
	assert.False(t, rep.Phases[0].Reached)
	assert.True(t, rep.Phases[0].TimedOut)
}

func TestWait_SoftPhasesDegrade(t *testing.T) {
	s := browsertest.New("s1")
	s.Elements[composer] = 1
	s.Disabled[composer] = true
	// Media never finishes loading.
	s.Respond(response, browser.BlockState{
		Found: true,
		Media: []browser.Media{{Src: "https://files.example/spinner.gif", Complete: false}},
	})
	// Mutations never stop.
	var mu sync.Mutex
	tick := 0
	s.MutationFunc = func() (int, error) {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return tick, nil
	}

	d := newDetector(fastOptions())
	rep, err := d.Wait(context.Background(), s, Baseline{response: 0})
	require.NoError(t, err, "only phase 1 can fail an attempt")
	require.Len(t, rep.Phases, 4)
	assert.True(t, rep.Phases[1].TimedOut, "asset ready soft timeout")
	assert.True(t, rep.Phases[2].TimedOut, "quiescence bound")
	assert.True(t, rep.Phases[2].Reached, "quiescence always succeeds")
	assert.True(t, rep.Phases[3].TimedOut, "input ready soft timeout")
	assert.True(t, rep.Degraded())
}

func TestWait_QuiescenceSkippedWithoutProbe(t *testing.T) {
	s := browsertest.NewChat("s1", composer, response)
	s.Errs["InstallMutationProbe"] = errors.New("no block")
	s.Respond(response, browsertest.ReadyBlock("https://files.example/1.png"))

	d := newDetector(fastOptions())
	rep, err := d.Wait(context.Background(), s, Baseline{response: 0})
	require.NoError(t, err)
	assert.True(t, rep.Phases[2].Reached)
	assert.False(t, rep.Phases[2].TimedOut)
}

func TestWait_Cancelled(t *testing.T) {
	s := browsertest.New("s1")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	opts := fastOptions()
	opts.NewResponseTimeout = time.Minute
	_, err := newDetector(opts).Wait(ctx, s, Baseline{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsBudget(t *testing.T) {
	opts := fastOptions()
	assert.Equal(t, 500*time.Millisecond+100*time.Millisecond+100*time.Millisecond+50*time.Millisecond, opts.Budget())
}

func TestReady(t *testing.T) {
	d := newDetector(fastOptions())
	good := browser.Media{Src: "https://files.example/a.png", Complete: true, NaturalWidth: 512, NaturalHeight: 512, RenderedWidth: 400, RenderedHeight: 400}

	tests := []struct {
		name  string
		state browser.BlockState
		want  bool
	}{
		{"ready with save control", browser.BlockState{Found: true, Media: []browser.Media{good}, SaveControl: true}, true},
		{"ready with localized cue", browser.BlockState{Found: true, Media: []browser.Media{good}, Text: "画像が作成されました"}, true},
		{"no affordance", browser.BlockState{Found: true, Media: []browser.Media{good}}, false},
		{"not found", browser.BlockState{}, false},
		{"no media", browser.BlockState{Found: true, SaveControl: true}, false},
		{"one still loading", browser.BlockState{Found: true, SaveControl: true, Media: []browser.Media{
			good, {Src: "https://files.example/b.png", Complete: false, NaturalWidth: 512, NaturalHeight: 512, RenderedWidth: 400, RenderedHeight: 400},
		}}, false},
		{"too small", browser.BlockState{Found: true, SaveControl: true, Media: []browser.Media{
			{Src: "https://files.example/a.png", Complete: true, NaturalWidth: 64, NaturalHeight: 512},
		}}, false},
		{"rendered as a thumbnail", browser.BlockState{Found: true, SaveControl: true, Media: []browser.Media{
			{Src: "https://files.example/a.png", Complete: true, NaturalWidth: 1024, NaturalHeight: 1024, RenderedWidth: 48, RenderedHeight: 48},
		}}, false},
		{"not laid out", browser.BlockState{Found: true, SaveControl: true, Media: []browser.Media{
			{Src: "https://files.example/a.png", Complete: true, NaturalWidth: 1024, NaturalHeight: 1024},
		}}, false},
		{"placeholder src", browser.BlockState{Found: true, SaveControl: true, Media: []browser.Media{
			{Src: "https://cdn.example/Loading-Spinner.png", Complete: true, NaturalWidth: 512, NaturalHeight: 512, RenderedWidth: 400, RenderedHeight: 400},
		}}, false},
		{"svg src", browser.BlockState{Found: true, SaveControl: true, Media: []browser.Media{
			{Src: "https://cdn.example/icon.svg", Complete: true, NaturalWidth: 512, NaturalHeight: 512, RenderedWidth: 400, RenderedHeight: 400},
		}}, false},
		{"empty src", browser.BlockState{Found: true, SaveControl: true, Media: []browser.Media{
			{Complete: true, NaturalWidth: 512, NaturalHeight: 512, RenderedWidth: 400, RenderedHeight: 400},
		}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Ready(tt.state))
		})
	}
}
