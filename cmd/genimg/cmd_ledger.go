package main

import (
	"fmt"

	"genimg/internal/journal"
	"genimg/internal/ledger"
	"genimg/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	statusRaw      bool
	statusProjects bool
	resetPrompt    string
	resetYes       bool
	historyLimit   int
)

// statusCmd shows the project's ledger
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the run ledger for a project",
	Args:  cobra.NoArgs,
	RunE:  showStatus,
}

// resetCmd clears ledger state so prompts run again
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget ledger state so prompts are processed again",
	Long: `Without --prompt, deletes runs/<project>/ entirely (requires --yes): every
prompt will be submitted again on the next run.

With --prompt, removes that exact prompt text from both status.json and
sent.json, which is how a prompt that was sent but never succeeded is retried.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

// historyCmd lists journaled attempts
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every journaled attempt for a project, newest first",
	Args:  cobra.NoArgs,
	RunE:  showHistory,
}

func init() {
	statusCmd.Flags().BoolVar(&statusRaw, "raw", false, "Print markdown without terminal rendering")
	statusCmd.Flags().BoolVar(&statusProjects, "projects", false, "List projects that have a ledger")
	resetCmd.Flags().StringVar(&resetPrompt, "prompt", "", "Forget only this exact prompt")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Confirm deleting the whole run directory")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum attempts to show (0 for all)")
	historyCmd.Flags().BoolVar(&statusRaw, "raw", false, "Print markdown without terminal rendering")
}

func printMarkdown(cmd *cobra.Command, md string) {
	out := cmd.OutOrStdout()
	if statusRaw {
		fmt.Fprint(out, md)
		return
	}
	rendered, err := report.Render(md, 100)
	if err != nil {
		logger.Debug("Markdown rendering failed", zap.Error(err))
		fmt.Fprint(out, md)
		return
	}
	fmt.Fprint(out, rendered)
}

func showStatus(cmd *cobra.Command, args []string) error {
	store, err := ledger.NewStore(cfg.RunsRoot())
	if err != nil {
		return err
	}
	if statusProjects {
		projects, err := store.Projects()
		if err != nil {
			return err
		}
		for _, p := range projects {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	}
	printMarkdown(cmd, report.StatusMarkdown(store.LoadStatus(cfg.Project), store.LoadSent(cfg.Project)))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	store, err := ledger.NewStore(cfg.RunsRoot())
	if err != nil {
		return err
	}

	if resetPrompt != "" {
		removed, err := store.Forget(cfg.Project, resetPrompt)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(out, "prompt not found in %s ledger\n", cfg.Project)
			return nil
		}
		fmt.Fprintf(out, "forgot prompt in %s; it will run again\n", cfg.Project)
		return nil
	}

	if !resetYes {
		return fmt.Errorf("refusing to delete %s without --yes", store.RunDir(cfg.Project))
	}
	if err := store.Reset(cfg.Project); err != nil {
		return err
	}
	logger.Info("Ledger reset", zap.String("project", cfg.Project))
	fmt.Fprintf(out, "removed %s\n", store.RunDir(cfg.Project))
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	j, err := journal.Open(cfg.RunsRoot())
	if err != nil {
		return err
	}
	defer j.Close()

	attempts, err := j.List(cmd.Context(), cfg.Project, historyLimit)
	if err != nil {
		return err
	}
	printMarkdown(cmd, report.HistoryMarkdown(cfg.Project, attempts))
	return nil
}
