package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/carbonfact/lea/internal/executor"
	"github.com/carbonfact/lea/internal/progress"
	"github.com/carbonfact/lea/internal/selector"
	"github.com/carbonfact/lea/pkg/core"
)

// changeDebounce absorbs the burst of write events an editor produces for a
// single save (truncate, then write, then chmod).
const changeDebounce = 200 * time.Millisecond

// watchRun runs once, then watches the scripts directory and reruns only
// the changed script and its descendants each time a file is saved,
// through the same Write-Audit-Publish/skip logic a plain run applies.
// Grounded on leapsql's internal/docs.DevServer watch loop: an
// fsnotify.Watcher registered on every directory in the tree, drained by a
// select loop and debounced with time.AfterFunc.
func watchRun(cmd *cobra.Command, logger *slog.Logger) error {
	if err := runRun(cmd, logger); err != nil {
		logger.Error("watch: initial run failed", "error", err)
	}

	dir, err := cmd.Flags().GetString("project-dir")
	if err != nil {
		return err
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return err
	}

	proj, err := loadProject(cmd)
	if err != nil {
		return err
	}
	scriptsRoot := scriptsRootFor(dir, proj.Config)
	_ = proj.Store.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := addWatchDirs(watcher, scriptsRoot); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	logger.Info("watching for script changes", "root", scriptsRoot)

	ctx := cmd.Context()
	var debounce *time.Timer
	changed := make(chan string, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".sql") && !strings.HasSuffix(event.Name, ".sql.jinja") {
				continue
			}
			path := event.Name
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(changeDebounce, func() {
				changed <- path
			})
		case path := <-changed:
			if err := rerunAffected(cmd, logger, scriptsRoot, path); err != nil {
				logger.Error("watch: rerun failed", "error", err)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", werr)
		}
	}
}

// addWatchDirs registers every directory under root with watcher, since
// fsnotify only watches the directories it's explicitly given, not their
// descendants.
func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// tableKeyForPath maps a changed file back to the graph key
// scriptparser.DiscoverScripts would have produced for it, so the affected
// subgraph can be recomputed without diffing the whole project tree.
func tableKeyForPath(scriptsRoot, path string) (string, error) {
	rel, err := filepath.Rel(scriptsRoot, path)
	if err != nil {
		return "", err
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	if len(segments) < 2 {
		return "", fmt.Errorf("watch: %q is not under a schema directory", rel)
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(segments[len(segments)-1], ".jinja"), ".sql")
	segments[len(segments)-1] = stem
	return core.TableIDFromPath(segments).String(), nil
}

// rerunAffected reloads the project (a changed file may have altered
// dependencies or annotations), then runs exactly the changed node and its
// descendants, freezing everything upstream of that subgraph so it reads
// from whatever is already materialized instead of being rebuilt.
func rerunAffected(cmd *cobra.Command, logger *slog.Logger, scriptsRoot, path string) error {
	key, err := tableKeyForPath(scriptsRoot, path)
	if err != nil {
		return err
	}

	proj, err := loadProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = proj.Store.Close() }()

	if proj.Graph.Script(key) == nil {
		logger.Warn("watch: changed file did not resolve to a known table, run \"lea run\" to pick it up", "path", path)
		return nil
	}

	runCfg, err := runConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	active := map[string]bool{}
	for _, id := range proj.Graph.GetAffectedNodes([]string{key}) {
		active[id] = true
	}
	frozen := selector.FrozenAncestors(proj.Graph, active)

	wh, err := openWarehouse(cmd.Context(), proj.Config)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	exec := &executor.Executor{
		Graph:     proj.Graph,
		Warehouse: wh,
		Store:     proj.Store,
		Progress:  &progress.Terminal{Writer: os.Stdout},
		Cfg:       runCfg,
	}
	result, err := exec.Run(cmd.Context(), active, frozen)
	if err != nil {
		return err
	}
	logger.Info("watch run complete", "run_id", result.RunID, "table", key, "promoted", result.Promoted, "nodes", len(result.Statuses))
	return nil
}
