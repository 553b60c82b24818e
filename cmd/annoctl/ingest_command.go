package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/annolens/annolens-agent/internal/ingest"
	"github.com/annolens/annolens-agent/internal/merge"
)

func newIngestCommand() *cobra.Command {
	var outPath string
	var workers int

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Parse, validate, and merge annotation files into one dataset",
		Long: "Runs each file through the full ingestion pipeline and writes the\n" +
			"merged dataset as JSON. Files for the same pipeline replace each\n" +
			"other; the last one wins.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]ingest.File, 0, len(args))
			for _, arg := range args {
				data, err := os.ReadFile(arg)
				if err != nil {
					return fmt.Errorf("read %s: %w", arg, err)
				}
				files = append(files, ingest.File{
					Name: filepath.Base(arg),
					Data: data,
				})
			}

			agg := merge.New()
			service := ingest.NewService(nil)
			results := service.IngestBatch(cmd.Context(), agg, files, workers)

			rows := make([][]string, 0, len(results))
			failed := 0
			for _, res := range results {
				status := "ok"
				if res.Error != "" {
					status = res.Error
					failed++
				}
				rows = append(rows, []string{
					res.Filename,
					res.Type,
					strconv.Itoa(res.Records),
					strconv.Itoa(len(res.Warnings)),
					status,
				})
			}
			fmt.Fprintln(cmd.ErrOrStderr(), renderTable(
				[]string{"File", "Format", "Records", "Warnings", "Status"}, rows))

			for _, w := range agg.Warnings() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}

			data := agg.Snapshot()
			encoded, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return fmt.Errorf("encode dataset: %w", err)
			}

			if outPath == "" || outPath == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			} else {
				if err := os.WriteFile(outPath, append(encoded, '\n'), 0644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s)\n", outPath, strings.Join(agg.Pipelines(), ", "))
			}

			if failed == len(results) {
				return fmt.Errorf("no files could be ingested")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the merged dataset to this file instead of stdout")
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of files to parse concurrently")

	return cmd
}
