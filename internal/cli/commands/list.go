package commands

import (
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/carbonfact/lea/internal/selector"
	"github.com/carbonfact/lea/pkg/core"
)

// NewListCommand builds "lea list": print the discovered DAG without
// running anything, grounded on the original project's regular_views
// enumeration. --select scopes the listing to a subgraph the same way
// "lea run --select" scopes materialization; --roots/--leaves narrow the
// output further to the nodes with no dependencies/dependents.
func NewListCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered scripts and their dependency counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := loadProject(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = proj.Store.Close() }()

			g := proj.Graph
			selectExpr, _ := cmd.Flags().GetString("select")
			if selectExpr != "" {
				runCfg := core.RunConfig{Select: core.ParseSelectorExpr(selectExpr)}
				active, err := selector.Resolve(g, runCfg, nil)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(active))
				for k := range active {
					keys = append(keys, k)
				}
				g = g.Subgraph(keys)
			}

			roots, _ := cmd.Flags().GetBool("roots")
			leaves, _ := cmd.Flags().GetBool("leaves")
			switch {
			case roots:
				for _, id := range g.GetRoots() {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			case leaves:
				for _, id := range g.GetLeaves() {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			levels, err := g.GetExecutionLevels()
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Level", "Node", "Kind", "Dependencies", "Dependents"})
			for level, ids := range levels {
				for _, id := range ids {
					s := g.Script(id)
					if s == nil {
						continue
					}
					tw.AppendRow(table.Row{level, id, s.Kind, len(s.Dependencies), len(g.GetChildren(id))})
				}
			}
			tw.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "%d nodes, %d dependencies, %d levels\n", g.NodeCount(), g.EdgeCount(), len(levels))
			return nil
		},
	}
	cmd.Flags().String("select", "", "selector expression scoping the listing to a subgraph")
	cmd.Flags().Bool("roots", false, "list only nodes with no dependencies")
	cmd.Flags().Bool("leaves", false, "list only nodes with no dependents")
	return cmd
}
