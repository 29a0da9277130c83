// Package detector infers "generation finished" from a surface that never
// says so. It runs four phases in strict order:
//
//  1. AwaitNewResponse: a new response block appears (hard timeout).
//  2. AwaitAssetReady: the block's media loaded and the surface shows a
//     completion affordance (soft timeout).
//  3. AwaitQuiescence: no structural mutation for a quiet window, or an
//     absolute bound (never fails).
//  4. AwaitInputReady: the composer accepts input again (soft timeout).
//
// Only phase 1 can fail an attempt; the later phases degrade and log.
package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"genimg/internal/browser"
	"genimg/internal/config"
	"genimg/internal/locator"
	"genimg/internal/logging"
)

// Phase identifies one detector state.
type Phase int

const (
	AwaitNewResponse Phase = iota + 1
	AwaitAssetReady
	AwaitQuiescence
	AwaitInputReady
)

func (p Phase) String() string {
	switch p {
	case AwaitNewResponse:
		return "await_new_response"
	case AwaitAssetReady:
		return "await_asset_ready"
	case AwaitQuiescence:
		return "await_quiescence"
	case AwaitInputReady:
		return "await_input_ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TimeoutError is a hard timeout. Only AwaitNewResponse produces one.
type TimeoutError struct {
	Phase Phase
	After time.Duration
	// Last is the last probe error seen while polling, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("no new response after %s", e.After)
	if e.Phase != AwaitNewResponse {
		msg = fmt.Sprintf("%s timed out after %s", e.Phase, e.After)
	}
	if e.Last != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Last)
	}
	return msg
}

// Options are the detector budgets and readiness rules.
type Options struct {
	PollInterval       time.Duration
	NewResponseTimeout time.Duration
	AssetReadyTimeout  time.Duration
	QuietWindow        time.Duration
	QuiescenceMax      time.Duration
	InputReadyTimeout  time.Duration

	MinPixels           int
	PlaceholderPatterns []string
	DoneCues            []string
}

// OptionsFromConfig converts the YAML budgets.
func OptionsFromConfig(c config.DetectionConfig) Options {
	return Options{
		PollInterval:        c.GetPollInterval(),
		NewResponseTimeout:  c.GetNewResponseTimeout(),
		AssetReadyTimeout:   c.GetAssetReadyTimeout(),
		QuietWindow:         c.GetQuietWindow(),
		QuiescenceMax:       c.GetQuiescenceMax(),
		InputReadyTimeout:   c.GetInputReadyTimeout(),
		MinPixels:           c.MinPixels,
		PlaceholderPatterns: c.PlaceholderPatterns,
		DoneCues:            c.DoneCues,
	}
}

// Baseline is the per-pattern response count taken before submission.
type Baseline map[string]int

// PhaseResult records how one phase ended.
type PhaseResult struct {
	Phase    Phase
	Reached  bool
	TimedOut bool
	Elapsed  time.Duration
	Polls    int
}

// Report is the outcome of a full Wait.
type Report struct {
	Phases []PhaseResult
	// ResponseSelector is the pattern whose count advanced in phase 1.
	ResponseSelector string
	Total            time.Duration
}

// Degraded reports whether any soft phase timed out.
func (r Report) Degraded() bool {
	for _, p := range r.Phases {
		if p.TimedOut {
			return true
		}
	}
	return false
}

// Budget is the longest a full wait can take when every phase runs to its
// bound.
func (o Options) Budget() time.Duration {
	return o.NewResponseTimeout + o.AssetReadyTimeout + o.QuiescenceMax + o.InputReadyTimeout
}

// Detector runs the four-phase wait against a surface.
type Detector struct {
	opts     Options
	strategy *locator.Strategy
}

// New creates a detector.
func New(opts Options, strategy *locator.Strategy) *Detector {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Detector{opts: opts, strategy: strategy}
}

// Baseline counts response blocks for every response pattern. Call it
// before submitting. Patterns that could not be counted are absent and are
// never used as evidence of a new response; it is an error when no pattern
// could be counted at all.
func (d *Detector) Baseline(ctx context.Context, s browser.Surface) (Baseline, error) {
	counts, err := d.strategy.Counts(ctx, s, locator.Response)
	if len(counts) == 0 {
		if err == nil {
			err = errors.New("no response patterns configured")
		}
		return nil, fmt.Errorf("response baseline: %w", err)
	}
	if err != nil {
		logging.DetectorDebug("baseline partial (%d patterns): %v", len(counts), err)
	}
	return Baseline(counts), nil
}

// Wait runs the phases in order. The error is a *TimeoutError when no new
// response appeared, or the context error when cancelled; soft timeouts
// are reported in the Report only.
func (d *Detector) Wait(ctx context.Context, s browser.Surface, baseline Baseline) (Report, error) {
	log := logging.Get(logging.CategoryDetector)
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryDetector, "completion wait")
	defer timer.StopWithThreshold(d.opts.Budget())
	var rep Report

	selector, res, err := d.awaitNewResponse(ctx, s, baseline)
	rep.Phases = append(rep.Phases, res)
	if err != nil {
		rep.Total = time.Since(start)
		return rep, err
	}
	rep.ResponseSelector = selector
	log.Debug("new response via %q after %d polls", selector, res.Polls)

	res, err = d.awaitAssetReady(ctx, s, selector)
	rep.Phases = append(rep.Phases, res)
	if err != nil {
		rep.Total = time.Since(start)
		return rep, err
	}
	if res.TimedOut {
		log.Warn("asset not ready after %s; continuing with the current last block", res.Elapsed.Round(time.Millisecond))
	}

	res, err = d.awaitQuiescence(ctx, s, selector)
	rep.Phases = append(rep.Phases, res)
	if err != nil {
		rep.Total = time.Since(start)
		return rep, err
	}
	if res.TimedOut {
		log.Debug("quiescence bound reached after %s", res.Elapsed.Round(time.Millisecond))
	}

	res, err = d.awaitInputReady(ctx, s)
	rep.Phases = append(rep.Phases, res)
	rep.Total = time.Since(start)
	if err != nil {
		return rep, err
	}
	if res.TimedOut {
		log.Warn("composer not re-armed after %s", res.Elapsed.Round(time.Millisecond))
	}
	return rep, nil
}

func (d *Detector) awaitNewResponse(ctx context.Context, s browser.Surface, baseline Baseline) (string, PhaseResult, error) {
	var (
		selector string
		lastErr  error
	)
	patterns := d.strategy.Patterns(locator.Response)
	res, err := poll(ctx, AwaitNewResponse, d.opts.PollInterval, d.opts.NewResponseTimeout, func() bool {
		for _, p := range patterns {
			before, ok := baseline[p]
			if !ok {
				continue
			}
			n, err := s.Count(ctx, p)
			if err != nil {
				lastErr = err
				continue
			}
			if n > before {
				selector = p
				return true
			}
		}
		return false
	})
	if err != nil {
		return "", res, err
	}
	if res.TimedOut {
		return "", res, &TimeoutError{Phase: AwaitNewResponse, After: res.Elapsed, Last: lastErr}
	}
	return selector, res, nil
}

func (d *Detector) awaitAssetReady(ctx context.Context, s browser.Surface, selector string) (PhaseResult, error) {
	saveControls := d.strategy.Patterns(locator.SaveControl)
	return poll(ctx, AwaitAssetReady, d.opts.PollInterval, d.opts.AssetReadyTimeout, func() bool {
		st, err := s.LastBlockState(ctx, selector, saveControls)
		if err != nil {
			return false
		}
		return d.Ready(st)
	})
}

// Ready is the phase 2 predicate. Media readiness and the affordance must
// hold in the same snapshot.
func (d *Detector) Ready(st browser.BlockState) bool {
	if !st.Found || len(st.Media) == 0 {
		return false
	}
	for _, m := range st.Media {
		if !m.Complete {
			return false
		}
		if m.NaturalWidth <= d.opts.MinPixels || m.NaturalHeight <= d.opts.MinPixels {
			return false
		}
		if m.RenderedWidth <= d.opts.MinPixels || m.RenderedHeight <= d.opts.MinPixels {
			return false
		}
		if d.isPlaceholder(m.Src) {
			return false
		}
	}
	return st.SaveControl || d.hasDoneCue(st.Text)
}

func (d *Detector) isPlaceholder(src string) bool {
	if src == "" {
		return true
	}
	lower := strings.ToLower(src)
	for _, p := range d.opts.PlaceholderPatterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (d *Detector) hasDoneCue(text string) bool {
	for _, cue := range d.opts.DoneCues {
		if cue != "" && strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

func (d *Detector) awaitQuiescence(ctx context.Context, s browser.Surface, selector string) (PhaseResult, error) {
	log := logging.Get(logging.CategoryDetector)
	start := time.Now()
	res := PhaseResult{Phase: AwaitQuiescence}

	if err := s.InstallMutationProbe(ctx, selector); err != nil {
		log.Debug("mutation probe unavailable, skipping quiescence: %v", err)
		res.Reached = true
		res.Elapsed = time.Since(start)
		return res, nil
	}
	defer func() {
		_ = s.RemoveMutationProbe(context.WithoutCancel(ctx))
	}()

	interval := d.opts.PollInterval
	if q := d.opts.QuietWindow / 4; q > 0 && q < interval {
		interval = q
	}

	last := -1
	lastChange := time.Now()
	for {
		res.Polls++
		if n, err := s.MutationCount(ctx); err == nil && n != last {
			last = n
			lastChange = time.Now()
		}
		now := time.Now()
		if now.Sub(lastChange) >= d.opts.QuietWindow {
			res.Reached = true
			break
		}
		if now.Sub(start) >= d.opts.QuiescenceMax {
			res.Reached = true
			res.TimedOut = true
			break
		}
		if err := sleep(ctx, interval); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (d *Detector) awaitInputReady(ctx context.Context, s browser.Surface) (PhaseResult, error) {
	return poll(ctx, AwaitInputReady, d.opts.PollInterval, d.opts.InputReadyTimeout, func() bool {
		sel, ok := d.strategy.FirstMatch(ctx, s, locator.Composer)
		if !ok {
			return false
		}
		enabled, err := s.Enabled(ctx, sel)
		return err == nil && enabled
	})
}

// poll evaluates cond immediately and then every interval until it holds or
// timeout elapses. A timeout is reported in the result, not as an error;
// the only error is cancellation.
func poll(ctx context.Context, phase Phase, interval, timeout time.Duration, cond func() bool) (PhaseResult, error) {
	start := time.Now()
	res := PhaseResult{Phase: phase}
	deadline := start.Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		res.Polls++
		if cond() {
			res.Reached = true
			res.Elapsed = time.Since(start)
			return res, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			res.TimedOut = true
			res.Elapsed = time.Since(start)
			return res, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
