package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gregorycollins/riegeli/pkg/api"
	"github.com/gregorycollins/riegeli/pkg/index"
	"github.com/gregorycollins/riegeli/pkg/records"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve records over a read-only HTTP API",
	Long: `Index the file and expose its records, metadata and stats over
HTTP with Prometheus metrics.

Example:
  riegeli serve -f data.riegeli --port 9300 --api-key secret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.API.Port = port
		}
		if key, _ := cmd.Flags().GetString("api-key"); key != "" {
			cfg.API.APIKey = key
		}
		if cfg.API.APIKey == "" {
			return fmt.Errorf("an API key is required; use --api-key or the config file")
		}

		options, err := cfg.ReaderOptions(func(region records.SkippedRegion) {
			fmt.Fprintf(os.Stderr, "skipped %s\n", region)
		})
		if err != nil {
			return err
		}
		reader, err := records.Open(cfg.File, options)
		if err != nil {
			return err
		}
		defer reader.Close()

		metadata, err := reader.ReadMetadata()
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read metadata: %w", err)
		}

		idx, err := index.BuildFromFile(cfg.File)
		if err != nil {
			return fmt.Errorf("failed to index %s: %w", cfg.File, err)
		}
		fmt.Printf("indexed %d records in %d chunks\n", idx.Count(), len(idx.Chunks()))

		return api.StartServer(reader, idx, metadata, api.ServerConfig{
			Port:     cfg.API.Port,
			Bind:     cfg.API.Bind,
			APIKey:   cfg.API.APIKey,
			FilePath: cfg.File,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("api-key", "", "API key for protected routes (overrides config)")
}
