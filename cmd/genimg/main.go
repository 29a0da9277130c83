package main

import (
	"fmt"
	"os"

	"genimg/internal/config"
	"genimg/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	project    string
	basePath   string
	verbose    bool
	keepOpen   bool
	headless   bool

	cfg    *config.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "genimg",
	Short: "genimg - resumable batch image generation through a chat surface",
	Long: `genimg drives a browser session against a conversational image generator
and turns a list of prompts into saved image files.

Every attempt is recorded in a per-project ledger (runs/<project>/status.json
and sent.json). Prompts that succeeded, or were already sent, are skipped on
the next run, so an interrupted batch can simply be started again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, c)
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize(c.Logging); err != nil {
			return err
		}
		cfg = c
		logger = logging.Root()
		logging.Boot("config loaded (project=%s base=%s)", cfg.Project, cfg.Paths.BasePath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// applyFlagOverrides lets explicitly set flags win over file and env.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("project") {
		c.Project = project
	}
	if flags.Changed("base-path") {
		c.Paths.BasePath = basePath
	}
	if flags.Changed("keep-open") {
		c.Batch.KeepOpen = keepOpen
	}
	if flags.Changed("headless") {
		c.Browser.Headless = headless
	}
	if verbose {
		c.Logging.Level = "debug"
	}
	c.Project = config.SanitizeProject(c.Project)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "genimg.yaml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "p", "", "Project name (default from GENIMG_PROJECT or \"default\")")
	rootCmd.PersistentFlags().StringVar(&basePath, "base-path", "", "Directory holding runs/, projects/ and sources")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().BoolVar(&keepOpen, "keep-open", false, "Leave the browser open after the batch until interrupted")
	runCmd.Flags().BoolVar(&headless, "headless", false, "Run Chrome headless")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
