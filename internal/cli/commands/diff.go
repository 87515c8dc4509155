package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/carbonfact/lea/pkg/core"
)

// NewDiffCommand builds "lea diff": a read-only row-count comparison
// between a script's production table and what its query currently
// produces, without materializing anything. This is the informational
// collaborator surface named in spec.md §1, not core executor logic.
func NewDiffCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <node>",
		Short: "Compare a node's production table against its current query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			proj, err := loadProject(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = proj.Store.Close() }()

			key := core.ParseTableRef(args[0]).String()
			script := proj.Graph.Script(key)
			if script == nil {
				return core.NewSelectorError("unknown node %q", args[0])
			}

			wh, err := openWarehouse(ctx, proj.Config)
			if err != nil {
				return err
			}
			defer func() { _ = wh.Close() }()

			prodRef := wh.RenderTableRef(script.ID, false, core.EnvProd, "")
			currentRows, err := wh.QueryRows(ctx, script.RawSQL, 0)
			if err != nil {
				return err
			}
			prodRows, err := wh.QueryRows(ctx, fmt.Sprintf("SELECT * FROM %s", prodRef), 0)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: production=%d rows, current query=%d rows\n", key, len(prodRows), len(currentRows))
			return nil
		},
	}
	return cmd
}
