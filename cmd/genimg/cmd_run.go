package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"genimg/internal/browser"
	"genimg/internal/detector"
	"genimg/internal/extractor"
	"genimg/internal/journal"
	"genimg/internal/ledger"
	"genimg/internal/locator"
	"genimg/internal/logging"
	"genimg/internal/orchestrator"
	"genimg/internal/prompts"
	"genimg/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd processes the project's prompts
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate images for every prompt not yet done",
	Long: `Resolves the prompt list (GENIMG_PROMPTS, then projects/<project>/prompts.json,
then the configured defaults), skips prompts that succeeded or were already
sent, and processes the rest one at a time.

A failed prompt is recorded with its error and a screenshot/markup snapshot
(projects/<project>/images/error_<n>.png/.html); the browser is restarted and
the batch continues. Failed prompts are retried on the next run unless they
had already been sent; use "genimg reset --prompt" for those.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

// withSignals returns a context cancelled by SIGINT or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := withSignals(cmd.Context())
	defer cancel()
	out := cmd.OutOrStdout()

	list, src, err := prompts.Resolve(cfg.ProjectsRoot(), cfg.Project, cfg.Prompts.Defaults)
	if err != nil {
		return err
	}
	logger.Info("Resolved prompts", zap.Int("count", len(list)), zap.String("source", string(src)))

	store, err := ledger.NewStore(cfg.RunsRoot())
	if err != nil {
		return err
	}

	var (
		recorder orchestrator.Recorder
		jrnl     *journal.Journal
	)
	if cfg.Batch.Journal {
		jrnl, err = journal.Open(cfg.RunsRoot())
		if err != nil {
			logging.BootWarn("journal unavailable, continuing without it: %v", err)
			jrnl = nil
		} else {
			defer jrnl.Close()
			recorder = jrnl
		}
	}

	strategy := locator.NewStrategy(cfg.Locators)
	sessions := browser.NewLifecycle(
		browser.NewChromeOpener(cfg.Browser, cfg.ProfileRoot()),
		strategy,
		cfg.Browser.EntryURL,
	)
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("Browser did not close cleanly", zap.Error(err))
		}
	}()

	orch := orchestrator.New(orchestrator.Config{
		Project:      cfg.Project,
		Ledger:       store,
		Journal:      recorder,
		Sessions:     sessions,
		Locator:      strategy,
		Detector:     detector.New(detector.OptionsFromConfig(cfg.Detection), strategy),
		Extractor:    extractor.New(cfg.ImagesDir()),
		Reporter:     report.NewConsole(out),
		DelayBetween: cfg.GetDelayBetween(),
	})

	fmt.Fprintf(out, "project %s: %d prompts from %s\n", cfg.Project, len(list), src)
	sum, runErr := orch.Run(ctx, list)
	fmt.Fprintln(out, report.Summary(sum))
	if jrnl != nil {
		counts, err := jrnl.CountByRun(context.WithoutCancel(ctx), orch.RunID())
		if err != nil {
			logger.Warn("Journal count failed", zap.Error(err))
		} else {
			fmt.Fprintln(out, report.JournalLine(orch.RunID(), counts))
		}
	}

	if cfg.Batch.KeepOpen && sessions.State() == browser.LiveSession && ctx.Err() == nil {
		fmt.Fprintln(out, "browser left open for inspection; press Ctrl+C to close")
		<-ctx.Done()
	}

	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("interrupted after %d of %d prompts", sum.Succeeded+sum.Failed+sum.Skipped, sum.Total)
	}
	return runErr
}
