// Package selector resolves the "+node", "node+", "+node+", "schema/" and
// "git" selector grammar (spec.md §4.3) against a dag.Graph into an active
// set of TableID keys.
package selector

import (
	"strings"

	"github.com/carbonfact/lea/internal/dag"
	"github.com/carbonfact/lea/pkg/core"
)

// GitDiffResolver returns the graph keys of scripts whose source files were
// added or modified in the working tree relative to the base branch. The
// core treats this as an informational external collaborator (spec.md §4.3)
// — the CLI layer supplies a real implementation; nil is valid and simply
// makes a "git" atom resolve to the empty set.
type GitDiffResolver func() ([]string, error)

type atomKind int

const (
	atomNode atomKind = iota
	atomSchema
	atomGit
)

type atom struct {
	ancestors   bool // "+" prefix
	descendants bool // "+" suffix
	kind        atomKind
	nodeKey     string   // for atomNode: normalized TableID.String()
	schemaPath  []string // for atomSchema
}

// Resolve computes the active set: the union of cfg.Select's atoms (or
// every node, if cfg.Select has no atoms), minus the union of cfg.Unselect's
// atoms, each expanded per the grammar's ancestor/descendant semantics.
func Resolve(g *dag.Graph, cfg core.RunConfig, git GitDiffResolver) (map[string]bool, error) {
	selected, err := resolveExpr(g, cfg.Select, git)
	if err != nil {
		return nil, err
	}
	if selected == nil {
		selected = allNodeKeys(g)
	}

	unselected, err := resolveExpr(g, cfg.Unselect, git)
	if err != nil {
		return nil, err
	}
	for k := range unselected {
		delete(selected, k)
	}

	return selected, nil
}

// FrozenAncestors returns the ancestors of active that are themselves not in
// active — the set whose references should render against production per
// --freeze-unselected (spec.md §4.3/E6).
func FrozenAncestors(g *dag.Graph, active map[string]bool) map[string]bool {
	frozen := map[string]bool{}
	for key := range active {
		for _, ancestor := range g.GetUpstreamNodes(key) {
			if !active[ancestor] {
				frozen[ancestor] = true
			}
		}
	}
	return frozen
}

// resolveExpr returns nil (not empty) when expr has no atoms, so callers can
// distinguish "no selector given" (-> everything) from "selector matched
// nothing" (-> empty set).
func resolveExpr(g *dag.Graph, expr core.SelectorExpr, git GitDiffResolver) (map[string]bool, error) {
	if len(expr.Atoms) == 0 {
		return nil, nil
	}
	out := map[string]bool{}
	for _, raw := range expr.Atoms {
		if raw == "" {
			continue
		}
		a, err := parseAtom(raw)
		if err != nil {
			return nil, err
		}
		matched, err := resolveAtom(g, a, git)
		if err != nil {
			return nil, err
		}
		expanded := expand(g, matched, a.ancestors, a.descendants)
		for k := range expanded {
			out[k] = true
		}
	}
	return out, nil
}

func parseAtom(raw string) (atom, error) {
	a := atom{}
	body := raw

	if strings.HasPrefix(body, "+") {
		a.ancestors = true
		body = strings.TrimPrefix(body, "+")
	}
	if strings.HasSuffix(body, "+") {
		a.descendants = true
		body = strings.TrimSuffix(body, "+")
	}
	if body == "" {
		return atom{}, core.NewSelectorError("empty selector atom in %q", raw)
	}

	switch {
	case body == "git":
		a.kind = atomGit
	case strings.HasSuffix(body, "/"):
		a.kind = atomSchema
		a.schemaPath = strings.Split(strings.TrimSuffix(body, "/"), ".")
	default:
		a.kind = atomNode
		a.nodeKey = core.ParseTableRef(body).String()
	}
	return a, nil
}

func resolveAtom(g *dag.Graph, a atom, git GitDiffResolver) (map[string]bool, error) {
	switch a.kind {
	case atomNode:
		if _, ok := g.GetNode(a.nodeKey); !ok {
			return nil, core.NewSelectorError("selector references unknown node %q", a.nodeKey)
		}
		return map[string]bool{a.nodeKey: true}, nil
	case atomSchema:
		out := map[string]bool{}
		for _, n := range g.GetAllNodes() {
			if n.Script == nil {
				continue
			}
			if schemaHasPrefix(n.Script.ID.Schema, a.schemaPath) {
				out[n.ID] = true
			}
		}
		return out, nil
	case atomGit:
		if git == nil {
			return map[string]bool{}, nil
		}
		keys, err := git()
		if err != nil {
			return nil, err
		}
		out := make(map[string]bool, len(keys))
		for _, k := range keys {
			out[k] = true
		}
		return out, nil
	default:
		return map[string]bool{}, nil
	}
}

func schemaHasPrefix(schema, prefix []string) bool {
	if len(prefix) > len(schema) {
		return false
	}
	for i, seg := range prefix {
		if schema[i] != seg {
			return false
		}
	}
	return true
}

// expand adds every ancestor and/or descendant of each key in matched, per
// the atom's "+" prefix/suffix flags.
func expand(g *dag.Graph, matched map[string]bool, wantAncestors, wantDescendants bool) map[string]bool {
	out := map[string]bool{}
	for k := range matched {
		out[k] = true
		if wantAncestors {
			for _, a := range g.GetUpstreamNodes(k) {
				out[a] = true
			}
		}
		if wantDescendants {
			for _, d := range g.GetAffectedNodes([]string{k}) {
				out[d] = true
			}
		}
	}
	return out
}

func allNodeKeys(g *dag.Graph) map[string]bool {
	out := map[string]bool{}
	for _, n := range g.GetAllNodes() {
		out[n.ID] = true
	}
	return out
}
