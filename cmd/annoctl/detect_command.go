package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/annolens/annolens-agent/internal/detect"
)

func newDetectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>...",
		Short: "Identify the annotation format of one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			for _, arg := range args {
				data, err := os.ReadFile(arg)
				if err != nil {
					return fmt.Errorf("read %s: %w", arg, err)
				}
				verdict := detect.Detect(data, filepath.Base(arg), "")
				rows = append(rows, []string{
					filepath.Base(arg),
					verdict.Type,
					string(verdict.Confidence),
					verdict.Reason,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Format", "Confidence", "Reason"}, rows))
			return nil
		},
	}
}
