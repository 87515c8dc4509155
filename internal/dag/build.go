package dag

import (
	"sort"

	"github.com/carbonfact/lea/pkg/core"
)

// Build assembles scripts into a Graph keyed by TableID.String(), validates
// that no two scripts share a TableID, and wires an edge from each
// graph-internal dependency to its dependent. It does not check for
// cycles; call Graph.HasCycle (or TopologicalSort) after Build.
func Build(scripts []*core.Script) (*Graph, error) {
	g := NewGraph()

	seen := make(map[string]string, len(scripts)) // key -> script path, for the duplicate-id message
	for _, s := range scripts {
		key := s.ID.String()
		if prior, ok := seen[key]; ok {
			return nil, core.NewParseError(s.Path, 0, "duplicate table id %q also produced by %q", key, prior)
		}
		seen[key] = s.Path
		g.AddNode(key, s)
	}

	for _, s := range scripts {
		childKey := s.ID.String()
		depKeys := make([]string, 0, len(s.Dependencies))
		for depKey := range s.Dependencies {
			depKeys = append(depKeys, depKey)
		}
		sort.Strings(depKeys)
		for _, depKey := range depKeys {
			if _, ok := g.GetNode(depKey); !ok {
				continue // implicit root: reference to a table outside the project
			}
			if err := g.AddEdge(depKey, childKey); err != nil {
				return nil, core.NewParseError(s.Path, 0, "%s", err.Error())
			}
		}
	}

	return g, nil
}

// Script returns the core.Script stored at id, or nil if id isn't a node.
func (g *Graph) Script(id string) *core.Script {
	node, ok := g.GetNode(id)
	if !ok {
		return nil
	}
	return node.Script
}
