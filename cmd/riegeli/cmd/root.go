package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gregorycollins/riegeli/pkg/config"
)

type contextKey string

const configKey contextKey = "config"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "riegeli",
	Short: "Riegeli record file tool",
	Long: `Inspect and read record files: print records, describe the chunk
layout, read file metadata, verify integrity, or serve records over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		var cfg *config.Config
		if configPath != "" {
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
		} else {
			cfg = config.DefaultConfig()
		}
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			cfg.File = file
		}
		cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("file", "f", "", "Record file to read")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML)")
}

// currentConfig fetches the configuration placed in the command context.
func currentConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	if cfg.File == "" {
		return nil, fmt.Errorf("no record file given; use --file or the config file")
	}
	return cfg, nil
}
