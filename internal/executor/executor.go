// Package executor implements the concurrent Write-Audit-Publish scheduler:
// active-set nodes run in topological order under a concurrency bound,
// materializing into audit tables, running assertion/singular tests against
// them, and promoting to production only if every non-test node in the
// active set succeeds.
package executor

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/carbonfact/lea/internal/dag"
	"github.com/carbonfact/lea/internal/progress"
	"github.com/carbonfact/lea/internal/warehouse"
	"github.com/carbonfact/lea/pkg/core"
)

// Executor runs one active set against a Warehouse, recording history in a
// Store and streaming events to a progress.Sink.
type Executor struct {
	Graph     *dag.Graph
	Warehouse warehouse.Warehouse
	Store     core.Store
	Progress  progress.Sink
	Cfg       core.RunConfig
}

// Result summarizes one run.
type Result struct {
	RunID     string
	Statuses  map[string]core.NodeStatus
	Errors    map[string]error
	Promoted  bool
	Cancelled bool
}

type nodeOutcome struct {
	key      string
	status   core.NodeStatus
	err      error
	rows     int64
	started  time.Time
	duration time.Duration
}

// Run executes active (a set of graph keys) to completion. frozen contains
// the unselected ancestors of active that must NOT be run themselves but
// whose dependents must read their production table (no dev-namespace
// suffix) rather than an audit table, per --freeze-unselected; it must be
// disjoint from active, and may be nil.
func (e *Executor) Run(ctx context.Context, active, frozen map[string]bool) (*Result, error) {
	if err := e.Warehouse.Prepare(ctx, e.Cfg.Env, e.Cfg.Username); err != nil {
		return nil, core.NewConfigError("warehouse prepare failed: %v", err)
	}

	run, err := e.Store.CreateRun(e.Cfg.Env.String())
	if err != nil {
		return nil, err
	}

	pending := make(map[string]int, len(active))
	childrenOf := make(map[string][]string, len(active))
	for key := range active {
		count := 0
		for _, p := range e.Graph.GetParents(key) {
			if active[p] {
				count++
				childrenOf[p] = append(childrenOf[p], key)
			}
		}
		pending[key] = count
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sem := semaphore.NewWeighted(int64(e.Cfg.EffectiveConcurrency()))

	completion := make(chan nodeOutcome)
	started := map[string]bool{}
	poisoned := map[string]bool{}
	statuses := map[string]core.NodeStatus{}
	errs := map[string]error{}
	failFast := false
	inFlight := 0

	launch := func(key string) {
		started[key] = true
		inFlight++
		e.Progress.Emit(progress.Event{Node: key, Phase: progress.PhaseStart})
		go func() {
			if err := sem.Acquire(runCtx, 1); err != nil {
				completion <- nodeOutcome{key: key, status: core.NodeStatusCancelled, err: err}
				return
			}
			defer sem.Release(1)
			completion <- e.runNode(runCtx, key, active, frozen)
		}()
	}

	var ready []string
	for key, c := range pending {
		if c == 0 {
			ready = append(ready, key)
		}
	}
	sort.Strings(ready)
	for _, k := range ready {
		launch(k)
	}

	for inFlight > 0 {
		out := <-completion
		inFlight--
		statuses[out.key] = out.status
		if out.err != nil {
			errs[out.key] = out.err
		}

		rowsPtr := &out.rows
		e.Progress.Emit(progress.Event{
			Node: out.key, Phase: progress.PhaseEnd, Status: out.status,
			Duration: out.duration, Rows: rowsPtr, Error: errMsg(out.err),
		})

		_ = e.Store.RecordNodeRun(&core.NodeRun{
			RunID: run.ID, NodeID: out.key, Status: out.status,
			RowsAffected: out.rows, StartedAt: out.started, CompletedAt: timePtr(out.started.Add(out.duration)),
			Error: errString(out.err), ExecutionMS: out.duration.Milliseconds(),
		})

		if out.status == core.NodeStatusErrored {
			if e.Cfg.FailFast {
				failFast = true
				cancel()
			} else {
				e.poisonDescendants(out.key, childrenOf, poisoned, statuses)
			}
		}

		for _, child := range childrenOf[out.key] {
			if poisoned[child] || started[child] {
				continue
			}
			pending[child]--
			if pending[child] == 0 {
				if failFast {
					continue
				}
				launch(child)
			}
		}
	}

	success := true
	for _, st := range statuses {
		if st == core.NodeStatusErrored || st == core.NodeStatusCancelled {
			success = false
		}
	}

	promoted := false
	if success && !failFast {
		if err := e.promoteAll(ctx, active, statuses); err != nil {
			success = false
			errs["__promote__"] = err
		} else {
			promoted = true
		}
	}

	finalStatus := core.RunStatusCompleted
	if !success {
		finalStatus = core.RunStatusFailed
	}
	_ = e.Store.CompleteRun(run.ID, finalStatus, errString(firstErr(errs)))

	return &Result{RunID: run.ID, Statuses: statuses, Errors: errs, Promoted: promoted, Cancelled: failFast}, nil
}

// runNode executes (or skips) exactly one node and reports its outcome.
// This is the executor's only I/O boundary: everything else is bookkeeping.
func (e *Executor) runNode(ctx context.Context, key string, active, frozen map[string]bool) nodeOutcome {
	started := time.Now()
	script := e.Graph.Script(key)
	if script == nil {
		return nodeOutcome{key: key, status: core.NodeStatusErrored, err: core.NewMaterializationError(key, errNodeMissing), started: started, duration: time.Since(started)}
	}

	if e.skippable(ctx, script) {
		return nodeOutcome{key: key, status: core.NodeStatusSkipped, started: started, duration: time.Since(started)}
	}

	resolve := warehouse.ResolveDevAudit
	if e.Cfg.Env == core.EnvProd {
		resolve = warehouse.ResolveProd
	}

	if script.IsTest() {
		rows, err := e.runTest(ctx, script, active, resolve)
		duration := time.Since(started)
		if err != nil {
			return nodeOutcome{key: key, status: core.NodeStatusErrored, err: err, started: started, duration: duration}
		}
		if len(rows) > 0 {
			return nodeOutcome{key: key, status: core.NodeStatusErrored, err: core.NewAssertionFailure(key, len(rows)), started: started, duration: duration}
		}
		return nodeOutcome{key: key, status: core.NodeStatusDone, started: started, duration: duration}
	}

	rows, err := e.Warehouse.Materialize(ctx, script, e.Cfg.Env, e.Cfg.Username, active, frozen, resolve)
	duration := time.Since(started)
	if err != nil {
		return nodeOutcome{key: key, status: core.NodeStatusErrored, err: err, started: started, duration: duration}
	}

	_ = e.Store.SetCheckpoint(&core.AuditCheckpoint{NodeID: key, MaterializedAt: time.Now()})
	return nodeOutcome{key: key, status: core.NodeStatusDone, rows: rows, started: started, duration: duration}
}

func (e *Executor) runTest(ctx context.Context, script *core.Script, active map[string]bool, resolve warehouse.DepsResolution) ([]map[string]any, error) {
	replacements := make(map[string]string, len(script.Dependencies))
	for key, dep := range script.Dependencies {
		ref := e.Warehouse.RenderTableRef(dep, true, e.Cfg.Env, e.Cfg.Username)
		rawRef := script.RawDependencyRefs[key]
		if rawRef == "" {
			rawRef = key
		}
		replacements[rawRef] = ref
	}
	rendered := warehouse.RewriteReferences(script.RawSQL, replacements)
	return e.Warehouse.QueryRows(ctx, rendered, 100)
}

// skippable implements spec.md's skip law: a node is skipped iff its audit
// table exists, the script's mtime is not after the checkpoint, and
// --restart was not given.
func (e *Executor) skippable(ctx context.Context, script *core.Script) bool {
	if e.Cfg.Restart {
		return false
	}
	cp, err := e.Store.GetCheckpoint(script.ID.String())
	if err != nil || cp == nil {
		return false
	}
	if script.MTime.After(cp.MaterializedAt) {
		return false
	}
	exists, err := e.Warehouse.TableExists(ctx, script.ID, true, e.Cfg.Env, e.Cfg.Username)
	return err == nil && exists
}

func (e *Executor) poisonDescendants(key string, childrenOf map[string][]string, poisoned map[string]bool, statuses map[string]core.NodeStatus) {
	var visit func(string)
	visit = func(k string) {
		for _, child := range childrenOf[k] {
			if poisoned[child] {
				continue
			}
			poisoned[child] = true
			statuses[child] = core.NodeStatusSkippedDueToErr
			visit(child)
		}
	}
	visit(key)
}

// promoteAll replaces each active non-test node's production table with its
// audit table, one table at a time in lexical key order (spec.md §9's
// resolution of the promote_all Open Question). Each table's Promote is a
// drop followed by a rename, not one atomic step.
func (e *Executor) promoteAll(ctx context.Context, active map[string]bool, statuses map[string]core.NodeStatus) error {
	keys := make([]string, 0, len(active))
	for k := range active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if statuses[key] == core.NodeStatusSkipped {
			continue
		}
		script := e.Graph.Script(key)
		if script == nil || script.IsTest() {
			continue
		}
		if err := e.Warehouse.Promote(ctx, script.ID, e.Cfg.Env, e.Cfg.Username); err != nil {
			return err
		}
	}
	return nil
}
