// Package scriptparser turns a directory of ".sql"/".sql.jinja" files into
// core.Script values: it extracts dependencies from FROM/JOIN clauses,
// attaches inline annotations to the columns they precede, and classifies
// each file by the schema it lives under.
package scriptparser

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carbonfact/lea/pkg/core"
)

// RenderFunc renders a Jinja-style template file's source into plain SQL.
// DiscoverScripts calls it only for ".sql.jinja" files; a nil RenderFunc
// makes any such file a parse error rather than silently passing templating
// syntax through to the warehouse.
type RenderFunc func(path, src string) (string, error)

// singularTestSchemas mirrors the source project's convention of excluding
// hand-written test schemas, and the macro schemas, from the materialized
// graph.
var (
	singularTestSchemas = map[string]bool{"tests": true, "test": true}
	macroSchemas        = map[string]bool{"func": true, "funcs": true}
)

// DiscoverScripts walks root and returns one Script per SQL file found.
// Dependencies are resolved against the returned set as a second pass by
// ResolveExternal; callers should call it before using a Script's
// Dependencies/ExternalDependencies fields.
func DiscoverScripts(root string, render RenderFunc) ([]*core.Script, error) {
	var scripts []*core.Script

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".sql") && !strings.HasSuffix(name, ".sql.jinja") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		if len(segments) < 2 {
			return core.NewParseError(rel, 0, "scripts must live under at least one schema directory, found %q directly under the scripts root", name)
		}

		if macroSchemas[segments[0]] {
			return nil // macro definitions are not materialized nodes
		}

		stem := strings.TrimSuffix(strings.TrimSuffix(segments[len(segments)-1], ".jinja"), ".sql")
		segments[len(segments)-1] = stem
		id := core.TableIDFromPath(segments)

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sql := string(raw)

		if strings.HasSuffix(name, ".jinja") {
			if render == nil {
				return core.NewParseError(rel, 0, "%q uses Jinja templating but no renderer is configured", rel)
			}
			sql, err = render(path, sql)
			if err != nil {
				return err
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		script := &core.Script{
			ID:     id,
			Path:   rel,
			RawSQL: sql,
			MTime:  info.ModTime(),
		}
		if singularTestSchemas[segments[0]] {
			script.Kind = core.KindTestSingular
		}

		if err := populateDependencies(script); err != nil {
			return err
		}

		anno, err := ParseAnnotations(rel, sql)
		if err != nil {
			return err
		}
		script.Assertions = anno.Assertions
		script.IsIncremental = anno.IsIncremental
		script.IncrementalKey = anno.IncrementalKey
		script.ClusteringField = anno.ClusteringField

		scripts = append(scripts, script)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].ID.String() < scripts[j].ID.String() })
	return scripts, nil
}

func populateDependencies(script *core.Script) error {
	refs := ExtractDependencies(script.RawSQL)
	script.Dependencies = make(map[string]core.TableID, len(refs))
	script.RawDependencyRefs = make(map[string]string, len(refs))
	for _, ref := range refs {
		id := core.ParseTableRef(ref)
		key := id.String()
		script.Dependencies[key] = id
		script.RawDependencyRefs[key] = ref
	}
	return nil
}

// ResolveExternal splits each script's Dependencies into graph-internal
// entries (kept) and ExternalDependencies (moved out) by checking which
// dependency keys match another discovered script's TableID. It must run
// after every script in the set has been parsed with DiscoverScripts.
func ResolveExternal(scripts []*core.Script) {
	known := make(map[string]bool, len(scripts))
	for _, s := range scripts {
		known[s.ID.String()] = true
	}
	for _, s := range scripts {
		var external []string
		for key, id := range s.Dependencies {
			if !known[key] {
				external = append(external, id.String())
				delete(s.Dependencies, key)
				delete(s.RawDependencyRefs, key)
			}
		}
		sort.Strings(external)
		s.ExternalDependencies = external
	}
}
