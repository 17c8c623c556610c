package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gregorycollins/riegeli/pkg/records"
)

// metadataCmd represents the metadata command
var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Print the file metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig(cmd)
		if err != nil {
			return err
		}
		reader, err := records.Open(cfg.File, records.DefaultReaderOptions())
		if err != nil {
			return err
		}
		defer reader.Close()

		metadata, err := reader.ReadMetadata()
		if err == io.EOF {
			fmt.Println("empty file")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read metadata: %w", err)
		}
		if metadata.RecordTypeName == "" && len(metadata.FileDescriptors) == 0 {
			fmt.Println("no metadata")
			return nil
		}
		fmt.Printf("record type: %s\n", metadata.RecordTypeName)
		for _, fd := range metadata.FileDescriptors {
			fmt.Printf("file descriptor: %s\n", fd.GetName())
		}
		if desc, err := metadata.RecordTypeDescriptor(); err != nil {
			fmt.Printf("record type unresolved: %v\n", err)
		} else if desc != nil {
			fmt.Printf("record type resolved: %s (%d fields)\n", desc.FullName(), desc.Fields().Len())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
}
