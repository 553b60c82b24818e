package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "annoctl",
		Short:         "Offline tools for annotation files",
		Long:          "annoctl detects, parses, and merges annotation files without a running agent.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newDetectCommand())
	rootCmd.AddCommand(newIngestCommand())

	return rootCmd
}
