package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/carbonfact/lea/internal/executor"
	"github.com/carbonfact/lea/internal/progress"
	"github.com/carbonfact/lea/internal/selector"
	"github.com/carbonfact/lea/pkg/core"
)

// NewRunCommand builds "lea run": resolve the selector, materialize the
// active set under Write-Audit-Publish, and promote on total success.
func NewRunCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Materialize the selected scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, err := cmd.Flags().GetBool("watch")
			if err != nil {
				return err
			}
			if watch {
				return watchRun(cmd, logger)
			}
			return runRun(cmd, logger)
		},
	}
	addSelectorFlags(cmd)
	cmd.Flags().Bool("watch", false, "rerun the affected subgraph whenever a script file changes")
	return cmd
}

func runRun(cmd *cobra.Command, logger *slog.Logger) error {
	ctx := cmd.Context()

	proj, err := loadProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = proj.Store.Close() }()

	runCfg, err := runConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	active, err := selector.Resolve(proj.Graph, runCfg, nil)
	if err != nil {
		return err
	}
	var frozen map[string]bool
	if runCfg.FreezeUnselected {
		frozen = selector.FrozenAncestors(proj.Graph, active)
	}

	wh, err := openWarehouse(ctx, proj.Config)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	asJSON, _ := cmd.Flags().GetBool("json")
	var sink progress.Sink
	terminal := &progress.Terminal{Writer: os.Stdout}
	if asJSON {
		sink = progress.JSONLines{Writer: os.Stdout}
	} else {
		sink = terminal
	}

	exec := &executor.Executor{
		Graph:     proj.Graph,
		Warehouse: wh,
		Store:     proj.Store,
		Progress:  sink,
		Cfg:       runCfg,
	}

	result, err := exec.Run(ctx, active, frozen)
	if err != nil {
		return err
	}
	if !asJSON {
		terminal.Flush()
	}

	logger.Info("run complete", "run_id", result.RunID, "promoted", result.Promoted, "nodes", len(result.Statuses))

	for _, st := range result.Statuses {
		if st == core.NodeStatusErrored {
			return &core.Error{Kind: core.ErrMaterialization, Message: "one or more nodes errored"}
		}
	}
	return nil
}
