// Package orchestrator runs the batch: one prompt at a time, skipping what
// the ledger says is done, rebuilding the session after any failure, and
// recording every attempt before moving on.
package orchestrator

import (
	"context"
	"time"

	"genimg/internal/browser"
	"genimg/internal/detector"
	"genimg/internal/extractor"
	"genimg/internal/journal"
	"genimg/internal/ledger"
	"genimg/internal/locator"
	"genimg/internal/logging"

	"github.com/google/uuid"
)

// Sessions is the session lifecycle as the batch sees it.
type Sessions interface {
	Ensure(ctx context.Context) (browser.Surface, error)
	Teardown()
}

// Recorder appends attempts to a history. *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, a journal.Attempt) error
}

// Reporter receives per-prompt progress. Every method may be a no-op.
type Reporter interface {
	Skipped(index, total int, prompt string)
	Started(index, total int, prompt string)
	Finished(o Outcome, total int)
}

// Outcome values.
const (
	OutcomeSkipped = "skipped"
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Outcome is what happened to one prompt in this invocation.
type Outcome struct {
	Index   int
	Prompt  string
	Status  string
	Attempt int
	Outputs []string
	Error   string
	Elapsed time.Duration
}

// Summary totals one invocation.
type Summary struct {
	RunID     string
	Project   string
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	// Cancelled is set when the batch stopped before the last prompt.
	Cancelled bool
	Items     []Outcome
	Elapsed   time.Duration
}

// Config wires the orchestrator. Journal and Reporter are optional.
type Config struct {
	Project   string
	Ledger    *ledger.Store
	Journal   Recorder
	Sessions  Sessions
	Locator   *locator.Strategy
	Detector  *detector.Detector
	Extractor *extractor.Extractor
	Reporter  Reporter
	// DelayBetween pauses between processed prompts.
	DelayBetween time.Duration
}

// Orchestrator processes prompts strictly sequentially.
type Orchestrator struct {
	cfg   Config
	runID string
	now   func() time.Time
}

// New creates an orchestrator with a fresh run id.
func New(cfg Config) *Orchestrator {
	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}
	return &Orchestrator{cfg: cfg, runID: uuid.NewString(), now: time.Now}
}

// RunID identifies this invocation in the journal.
func (o *Orchestrator) RunID() string { return o.runID }

// Run processes prompts in input order. Attempt failures never stop the
// batch; they are recorded and the next prompt follows. Only cancellation
// ends the batch early, and prompts after that point are left untouched.
func (o *Orchestrator) Run(ctx context.Context, prompts []string) (Summary, error) {
	start := o.now()
	sum := Summary{RunID: o.runID, Project: o.cfg.Project, Total: len(prompts)}

	skip := o.cfg.Ledger.Resolve(o.cfg.Project)
	logging.Batch("run %s: %d prompts, %d already done or sent", o.runID, len(prompts), skip.Len())

	processed := 0
	for i, prompt := range prompts {
		index := i + 1
		if err := ctx.Err(); err != nil {
			sum.Cancelled = true
			logging.BatchWarn("cancelled before prompt %d/%d", index, len(prompts))
			break
		}

		if skip.Contains(prompt) {
			logging.Batch("[%d/%d] skip: %s", index, len(prompts), preview(prompt))
			o.cfg.Reporter.Skipped(index, len(prompts), prompt)
			sum.Skipped++
			sum.Items = append(sum.Items, Outcome{Index: index, Prompt: prompt, Status: OutcomeSkipped})
			continue
		}

		if processed > 0 && o.cfg.DelayBetween > 0 {
			if err := sleep(ctx, o.cfg.DelayBetween); err != nil {
				sum.Cancelled = true
				logging.BatchWarn("cancelled before prompt %d/%d", index, len(prompts))
				break
			}
		}
		processed++

		o.cfg.Reporter.Started(index, len(prompts), prompt)
		out := o.attempt(ctx, index, len(prompts), prompt)
		// A prompt listed twice is attempted once per run.
		skip.Add(prompt)
		o.cfg.Reporter.Finished(out, len(prompts))
		sum.Items = append(sum.Items, out)
		if out.Status == OutcomeSuccess {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}

	sum.Elapsed = o.now().Sub(start)
	logging.Batch("run %s done: %d succeeded, %d failed, %d skipped", o.runID, sum.Succeeded, sum.Failed, sum.Skipped)
	if sum.Cancelled {
		return sum, ctx.Err()
	}
	return sum, nil
}

// attempt runs one prompt end to end and records it. It never returns an
// error; the outcome carries it.
func (o *Orchestrator) attempt(ctx context.Context, index, total int, prompt string) Outcome {
	log := logging.Get(logging.CategoryBatch).With("run", o.runID)
	project := o.cfg.Project

	item := ledger.RunItem{
		Prompt:       prompt,
		AttemptCount: o.cfg.Ledger.PriorAttempts(project, prompt) + 1,
		StartedAt:    o.now().UTC(),
	}
	log.Info("[%d/%d] attempt %d: %s", index, total, item.AttemptCount, preview(prompt))

	var surface browser.Surface
	outputs, err := func() ([]string, error) {
		s, err := o.cfg.Sessions.Ensure(ctx)
		if err != nil {
			return nil, err
		}
		surface = s

		composer, err := o.cfg.Locator.Find(ctx, s, locator.Composer)
		if err != nil {
			return nil, err
		}
		baseline, err := o.cfg.Detector.Baseline(ctx, s)
		if err != nil {
			return nil, &browser.SessionError{Op: "baseline", Err: err}
		}

		if err := s.Fill(ctx, composer, prompt); err != nil {
			return nil, &browser.SessionError{Op: "fill", Err: err}
		}
		if err := o.submit(ctx, s, composer); err != nil {
			return nil, &browser.SessionError{Op: "submit", Err: err}
		}
		if err := o.cfg.Ledger.AppendSent(project, prompt); err != nil {
			log.Warn("sent ledger write failed for prompt %d: %v", index, err)
		}

		rep, err := o.cfg.Detector.Wait(ctx, s, baseline)
		if err != nil {
			return nil, err
		}
		if rep.Degraded() {
			log.Info("[%d/%d] completion degraded after %s", index, total, rep.Total.Round(time.Millisecond))
		}

		saved, err := o.cfg.Extractor.Save(ctx, s, rep.ResponseSelector, extractor.Prefix(index))
		if err != nil {
			log.Warn("[%d/%d] extraction failed, recording no outputs: %v", index, total, err)
			return nil, nil
		}
		return saved, nil
	}()

	item.FinishedAt = o.now().UTC()
	out := Outcome{
		Index:   index,
		Prompt:  prompt,
		Attempt: item.AttemptCount,
		Elapsed: item.FinishedAt.Sub(item.StartedAt),
	}

	sessionID := ""
	if surface != nil {
		sessionID = surface.ID()
	}

	if err != nil {
		item.Status = ledger.StatusFailed
		item.LastError = err.Error()
		out.Status = OutcomeFailed
		out.Error = item.LastError
		log.Error("[%d/%d] failed: %v", index, total, err)

		if surface != nil {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			o.cfg.Extractor.Snapshot(sctx, surface, index)
			cancel()
		}
		o.cfg.Sessions.Teardown()
	} else {
		item.Status = ledger.StatusSuccess
		item.Outputs = outputs
		out.Status = OutcomeSuccess
		out.Outputs = outputs
		log.Info("[%d/%d] done: %d output(s)", index, total, len(outputs))
	}

	if err := o.cfg.Ledger.UpsertItem(project, item); err != nil {
		log.Warn("status ledger write failed for prompt %d: %v", index, err)
	}
	o.record(ctx, item, sessionID)

	level := "info"
	if out.Status == OutcomeFailed {
		level = "warn"
	}
	log.StructuredLog(level, "attempt recorded", map[string]interface{}{
		"index":   index,
		"status":  string(item.Status),
		"attempt": item.AttemptCount,
		"outputs": len(item.Outputs),
		"session": sessionID,
		"elapsed": out.Elapsed,
	})
	return out
}

// submit clicks the send control when one is showing, else presses Enter
// in the composer.
func (o *Orchestrator) submit(ctx context.Context, s browser.Surface, composer string) error {
	if send, ok := o.cfg.Locator.FirstMatch(ctx, s, locator.SendButton); ok {
		if err := s.Click(ctx, send); err == nil {
			return nil
		}
	}
	return s.PressEnter(ctx, composer)
}

func (o *Orchestrator) record(ctx context.Context, item ledger.RunItem, sessionID string) {
	if o.cfg.Journal == nil {
		return
	}
	err := o.cfg.Journal.Record(context.WithoutCancel(ctx), journal.Attempt{
		RunID:      o.runID,
		Project:    o.cfg.Project,
		Prompt:     item.Prompt,
		Attempt:    item.AttemptCount,
		Status:     string(item.Status),
		StartedAt:  item.StartedAt,
		FinishedAt: item.FinishedAt,
		Outputs:    item.Outputs,
		Error:      item.LastError,
		SessionID:  sessionID,
	})
	if err != nil {
		logging.Get(logging.CategoryBatch).Warn("journal write failed: %v", err)
	}
}

func preview(prompt string) string {
	r := []rune(prompt)
	if len(r) <= 60 {
		return prompt
	}
	return string(r[:60]) + "..."
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

type nopReporter struct{}

func (nopReporter) Skipped(int, int, string) {}
func (nopReporter) Started(int, int, string) {}
func (nopReporter) Finished(Outcome, int)    {}
