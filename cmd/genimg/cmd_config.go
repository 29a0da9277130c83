package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configWrite bool

// configCmd shows or saves the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration after defaults, the config file, environment
overrides and flags have been applied. With --write it is saved to the
--config path instead, which is a convenient way to start a genimg.yaml.`,
	Args: cobra.NoArgs,
	RunE: showConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configWrite, "write", false, "Save the effective configuration to the --config path")
}

func showConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if configWrite {
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", configPath)
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = out.Write(data)
	return err
}
