package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/carbonfact/lea/internal/config"
	"github.com/carbonfact/lea/internal/dag"
	"github.com/carbonfact/lea/internal/scriptparser"
	"github.com/carbonfact/lea/internal/state"
	"github.com/carbonfact/lea/internal/template"
	"github.com/carbonfact/lea/internal/warehouse"
	"github.com/carbonfact/lea/pkg/core"
)

// project bundles everything a command needs after loading lea.yaml and
// discovering scripts: the graph, the target config, and the state store.
type project struct {
	Config *core.ProjectConfig
	Graph  *dag.Graph
	Store  *state.SQLiteStore
}

// scriptsRootFor resolves a project's configured scripts directory to an
// absolute path, relative to dir when it isn't already absolute.
func scriptsRootFor(dir string, cfg *core.ProjectConfig) string {
	scriptsRoot := cfg.ScriptsDir
	if !filepath.IsAbs(scriptsRoot) {
		scriptsRoot = filepath.Join(dir, scriptsRoot)
	}
	return scriptsRoot
}

func loadProject(cmd *cobra.Command) (*project, error) {
	dir, err := cmd.Flags().GetString("project-dir")
	if err != nil {
		return nil, err
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return nil, core.NewConfigError("loading %s: %v", dir, err)
	}
	if cfg == nil {
		cfg = &core.ProjectConfig{}
		config.ApplyDefaults(cfg)
	}

	scriptsRoot := scriptsRootFor(dir, cfg)

	renderer := &template.Renderer{Root: scriptsRoot}
	scripts, err := scriptparser.DiscoverScripts(scriptsRoot, renderer.Render)
	if err != nil {
		return nil, err
	}
	scriptparser.ResolveExternal(scripts)

	for _, s := range scripts {
		tests := synthesizeTests(s)
		scripts = append(scripts, tests...)
	}
	scriptparser.ResolveExternal(scripts)

	g, err := dag.Build(scripts)
	if err != nil {
		return nil, err
	}
	if has, cycle := g.HasCycle(); has {
		return nil, core.NewCycleError(cycle)
	}

	statePath := cfg.StatePath
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(dir, statePath)
	}
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return nil, err
	}
	store, err := state.Open(statePath)
	if err != nil {
		return nil, err
	}

	return &project{Config: cfg, Graph: g, Store: store}, nil
}

func openWarehouse(ctx context.Context, cfg *core.ProjectConfig) (warehouse.Warehouse, error) {
	if cfg.Target == nil {
		return nil, core.NewConfigError("no target configured in lea.yaml")
	}
	adapterCfg := core.AdapterConfig{
		Type:     cfg.Target.Type,
		Database: cfg.Target.Database,
		Host:     cfg.Target.Host,
		Port:     cfg.Target.Port,
		Username: cfg.Target.User,
		Password: cfg.Target.Password,
		Schema:   cfg.Target.Schema,
		Project:  cfg.Target.Project,
		Options:  cfg.Target.Options,
		Params:   cfg.Target.Params,
	}
	return warehouse.New(ctx, cfg.Target.Type, adapterCfg)
}

func runConfigFromFlags(cmd *cobra.Command) (core.RunConfig, error) {
	production, _ := cmd.Flags().GetBool("production")
	selectExpr, _ := cmd.Flags().GetString("select")
	unselectExpr, _ := cmd.Flags().GetString("unselect")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	restart, _ := cmd.Flags().GetBool("restart")
	failFast, _ := cmd.Flags().GetBool("fail-fast")
	freeze, _ := cmd.Flags().GetBool("freeze-unselected")

	env := core.EnvDev
	if production {
		env = core.EnvProd
	}

	username := os.Getenv("LEA_USERNAME")
	if env == core.EnvDev && username == "" {
		return core.RunConfig{}, core.NewConfigError("LEA_USERNAME must be set for a dev run (or pass --production)")
	}

	return core.RunConfig{
		Env:              env,
		Username:         username,
		Concurrency:      concurrency,
		Restart:          restart,
		FailFast:         failFast,
		FreezeUnselected: freeze,
		Select:           core.ParseSelectorExpr(selectExpr),
		Unselect:         core.ParseSelectorExpr(unselectExpr),
	}, nil
}

func addSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().String("select", "", "selector expression choosing which nodes to run")
	cmd.Flags().String("unselect", "", "selector expression subtracted from --select")
	cmd.Flags().Bool("production", false, "run against the production namespace instead of a dev namespace")
	cmd.Flags().Int("concurrency", core.DefaultConcurrency, "maximum number of nodes materialized in parallel")
	cmd.Flags().Bool("restart", false, "ignore existing audit tables and checkpoints")
	cmd.Flags().Bool("fail-fast", false, "cancel the run on the first error instead of isolating it to descendants")
	cmd.Flags().Bool("freeze-unselected", false, "render unselected ancestors against production")
}
