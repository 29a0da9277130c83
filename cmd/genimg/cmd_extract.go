package main

import (
	"errors"
	"fmt"
	"time"

	"genimg/internal/prompts"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	extractList  bool
	extractAll   bool
	extractWatch bool
)

// extractCmd builds prompts.json from scene scripts
var extractCmd = &cobra.Command{
	Use:   "extract [dir]",
	Short: "Extract image prompts from a scene script (sub.json)",
	Long: `Reads <source_dir>/<dir>/sub.json and writes projects/<dir>/prompts.json.

Every top-level "scene_*" object contributes its image_prompt, then each
content image_prompt longer than the configured minimum length. Duplicates
are dropped, first occurrence wins.

Examples:
  genimg extract 20250921
  genimg extract --list
  genimg extract --all
  genimg extract --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractList, "list", false, "List directories that have a sub.json")
	extractCmd.Flags().BoolVar(&extractAll, "all", false, "Process every directory")
	extractCmd.Flags().BoolVar(&extractWatch, "watch", false, "Regenerate prompts.json whenever a sub.json changes")
}

func newPromptExtractor() *prompts.Extractor {
	return &prompts.Extractor{
		SourceRoot:       cfg.SourceRoot(),
		ProjectsRoot:     cfg.ProjectsRoot(),
		MinContentLength: cfg.Prompts.MinContentLength,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e := newPromptExtractor()

	switch {
	case extractList:
		dirs, err := e.List()
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			fmt.Fprintf(out, "no directories with %s under %s\n", prompts.SceneFile, e.SourceRoot)
			return nil
		}
		for _, d := range dirs {
			fmt.Fprintln(out, d)
		}
		return nil

	case extractAll:
		results, err := e.ProcessAll(cmd.Context(), cfg.Prompts.ExtractWorkers)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s: %d prompts -> %s\n", r.Dir, r.Count, r.Path)
		}
		fmt.Fprintf(out, "%d directories processed\n", len(results))
		return nil

	case extractWatch:
		ctx, cancel := withSignals(cmd.Context())
		defer cancel()
		w, err := prompts.NewWatcher(e, 500*time.Millisecond, func(r prompts.Result, err error) {
			if err != nil {
				logger.Warn("Regeneration failed", zap.String("dir", r.Dir), zap.Error(err))
				return
			}
			fmt.Fprintf(out, "%s %s: %d prompts -> %s\n", time.Now().Format(time.TimeOnly), r.Dir, r.Count, r.Path)
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "watching %s (Ctrl+C to stop)\n", e.SourceRoot)
		<-w.Done()
		return nil
	}

	if len(args) == 0 {
		return errors.New("a directory name is required (or --list, --all, --watch)")
	}
	path, n, err := e.Process(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d prompts -> %s\n", n, path)
	return nil
}
