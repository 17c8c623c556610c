package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/records"
	"github.com/gregorycollins/riegeli/pkg/source"
)

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the chunk layout of a file",
	Long: `Walk the chunk headers without decoding payloads and print one
line per chunk: begin position, type, record count and sizes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig(cmd)
		if err != nil {
			return err
		}
		src, err := source.NewFileSource(source.FileSourceConfig{FilePath: cfg.File})
		if err != nil {
			return err
		}
		defer src.Close()
		reader := records.NewChunkReader(src)

		fmt.Printf("%-12s %-16s %10s %12s %12s\n", "BEGIN", "TYPE", "RECORDS", "DATA", "DECODED")
		for {
			pos := reader.Pos()
			header, err := reader.PullChunkHeader()
			if err == io.EOF {
				break
			}
			if err != nil {
				region, ok := reader.Recover()
				if !ok {
					return fmt.Errorf("unrecoverable damage at %d: %w", pos, err)
				}
				fmt.Printf("%-12d %-16s %s\n", region.Begin, "(skipped)", region.Reason)
				continue
			}
			fmt.Printf("%-12d %-16s %10d %12d %12d\n",
				pos, header.ChunkType, header.NumRecords, header.DataSize, header.DecodedDataSize)
			if err := reader.Seek(codec.ChunkEnd(pos, header.DataSize)); err != nil {
				return err
			}
		}
		if size, err := reader.Size(); err == nil {
			fmt.Printf("total %d bytes\n", size)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
