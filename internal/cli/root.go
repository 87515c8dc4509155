// Package cli is lea's command tree: a cobra root command plus one
// subcommand per file under commands/, mirroring the layout the project's
// Go tooling ancestor uses.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/carbonfact/lea/internal/cli/commands"
)

// NewRootCommand builds the top-level "lea" command.
func NewRootCommand() *cobra.Command {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := &cobra.Command{
		Use:           "lea",
		Short:         "lea is a minimalist SQL transformation orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("project-dir", ".", "directory containing lea.yaml and the scripts root")
	root.PersistentFlags().Bool("json", false, "emit progress as newline-delimited JSON instead of a table")

	root.AddCommand(commands.NewRunCommand(logger))
	root.AddCommand(commands.NewListCommand(logger))
	root.AddCommand(commands.NewDiffCommand(logger))

	return root
}
