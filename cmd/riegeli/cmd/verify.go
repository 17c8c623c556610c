package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gregorycollins/riegeli/pkg/records"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Read the whole file, reporting damaged regions",
	Long: `Read every record, bridging damaged regions via recovery, and
report what was readable. Exits non-zero when damage was found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig(cmd)
		if err != nil {
			return err
		}
		var skipped []records.SkippedRegion
		options := records.DefaultReaderOptions()
		proj, err := cfg.FieldProjection()
		if err != nil {
			return err
		}
		options.FieldProjection = proj
		options.Recovery = func(region records.SkippedRegion) bool {
			skipped = append(skipped, region)
			return true
		}
		reader, err := records.Open(cfg.File, options)
		if err != nil {
			return err
		}
		defer reader.Close()

		if ok, err := reader.CheckFileFormat(); err != nil {
			return fmt.Errorf("not a record file: %w", err)
		} else if !ok {
			fmt.Println("empty file")
			return nil
		}

		var count, bytes uint64
		for {
			record, err := reader.ReadRecord()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("unrecoverable damage: %w", err)
			}
			count++
			bytes += uint64(len(record))
		}
		fmt.Printf("%d records, %d record bytes\n", count, bytes)
		for _, region := range skipped {
			fmt.Printf("skipped %s\n", region)
		}
		if len(skipped) > 0 {
			return fmt.Errorf("%d damaged regions", len(skipped))
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
