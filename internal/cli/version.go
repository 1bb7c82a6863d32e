package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	PaperscoutVersion, PaperscoutCommit, PaperscoutDate string
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Display version, commit hash, build date, and the client signature sent with every request",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "PaperScout version: %s\n", PaperscoutVersion)
		fmt.Fprintf(out, "Commit: %s\n", PaperscoutCommit)
		fmt.Fprintf(out, "Built: %s\n", PaperscoutDate)
	},
}

func init() {
	rootCommand.AddCommand(versionCommand)
}
