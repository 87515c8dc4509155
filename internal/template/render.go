// Package template renders the narrow Jinja-equivalent surface spec.md §9
// calls for ({{ env.VAR }}, {% for %}, {% set x = load_yaml(...) %}, {% if %})
// using go.starlark.net: a script's ".sql.jinja" text is translated into a
// small Starlark program that prints SQL text, executed, and its stdout
// becomes the rendered SQL.
package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"gopkg.in/yaml.v3"
)

// Renderer renders ".sql.jinja" files relative to a scripts root.
type Renderer struct {
	Root string
}

var (
	exprPattern = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)
	tagPattern  = regexp.MustCompile(`\{%\s*(.+?)\s*%\}`)
)

// Render translates the narrow templating surface into a Starlark program
// and executes it, returning the rendered SQL text.
func (r *Renderer) Render(path, src string) (string, error) {
	program := translate(src)

	thread := &starlark.Thread{Name: filepath.Base(path)}
	var out bytes.Buffer

	predeclared := starlark.StringDict{
		"env":       envModule(),
		"load_yaml": starlark.NewBuiltin("load_yaml", r.loadYAML),
		"emit":      starlark.NewBuiltin("emit", emitBuiltin(&out)),
	}

	// The translated program has no enclosing function, so for/if blocks
	// and repeated {% set %} assignments all happen at top level.
	opts := &syntax.FileOptions{TopLevelControl: true, GlobalReassign: true}
	if _, err := starlark.ExecFileOptions(opts, thread, path, program, predeclared); err != nil {
		return "", fmt.Errorf("template: render %s: %w", path, err)
	}
	return out.String(), nil
}

// translate rewrites {{ expr }} into emit(str(expr)) statements and
// {% tag %} blocks into their Starlark statement equivalent, leaving
// everything else as a string literal passed to emit(). Starlark, like
// Python, requires block bodies to be indented, so translate tracks the
// current nesting depth across for/if/endfor/endif and indents every
// statement it emits accordingly.
func translate(src string) string {
	var b strings.Builder
	depth := 0
	rest := src
	for {
		locExpr := exprPattern.FindStringSubmatchIndex(rest)
		locTag := tagPattern.FindStringSubmatchIndex(rest)

		next := earliest(locExpr, locTag)
		if next == nil {
			emitLiteral(&b, depth, rest)
			break
		}
		emitLiteral(&b, depth, rest[:next[0]])

		if next[0] == safeIndex(locExpr) {
			indent(&b, depth)
			b.WriteString("emit(str(")
			b.WriteString(rest[next[2]:next[3]])
			b.WriteString("))\n")
		} else {
			depth = writeTag(&b, depth, rest[next[2]:next[3]])
		}
		rest = rest[next[1]:]
	}
	return b.String()
}

const indentUnit = "    "

func indent(b *strings.Builder, depth int) {
	if depth <= 0 {
		return
	}
	b.WriteString(strings.Repeat(indentUnit, depth))
}

func emitLiteral(b *strings.Builder, depth int, text string) {
	if text == "" {
		return
	}
	indent(b, depth)
	b.WriteString("emit(")
	b.WriteString(fmt.Sprintf("%q", text))
	b.WriteString(")\n")
}

// writeTag emits tag at depth and returns the depth in effect for whatever
// follows it: for/if open a block (depth+1), endfor/endif close one
// (depth-1), else re-opens its sibling branch at the depth its matching if
// already established, and everything else is a plain statement at depth.
func writeTag(b *strings.Builder, depth int, tag string) int {
	switch {
	case strings.HasPrefix(tag, "set "):
		indent(b, depth)
		b.WriteString(strings.TrimPrefix(tag, "set "))
		b.WriteString("\n")
		return depth
	case strings.HasPrefix(tag, "for "):
		indent(b, depth)
		b.WriteString(tag)
		b.WriteString(":\n")
		return depth + 1
	case strings.HasPrefix(tag, "if "):
		indent(b, depth)
		b.WriteString(tag)
		b.WriteString(":\n")
		return depth + 1
	case tag == "else":
		indent(b, depth-1)
		b.WriteString("else:\n")
		return depth
	case tag == "endfor", tag == "endif":
		if depth > 0 {
			return depth - 1
		}
		return depth
	default:
		indent(b, depth)
		b.WriteString(tag)
		b.WriteString("\n")
		return depth
	}
}

func safeIndex(loc []int) int {
	if loc == nil {
		return -1
	}
	return loc[0]
}

func earliest(a, b []int) []int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a[0] <= b[0]:
		return a
	default:
		return b
	}
}

func envModule() *starlarkstruct.Struct {
	vals := starlark.StringDict{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			vals[parts[0]] = starlark.String(parts[1])
		}
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, vals)
}

func (r *Renderer) loadYAML(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if args.Len() != 1 {
		return nil, fmt.Errorf("load_yaml takes exactly one argument")
	}
	relPath, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("load_yaml argument must be a string")
	}
	raw, err := os.ReadFile(filepath.Join(r.Root, relPath))
	if err != nil {
		return nil, err
	}
	var data any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return toStarlark(data), nil
}

func emitBuiltin(out *bytes.Buffer) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		for _, a := range args {
			s, ok := starlark.AsString(a)
			if !ok {
				s = a.String()
			}
			out.WriteString(s)
		}
		return starlark.None, nil
	}
}

func toStarlark(v any) starlark.Value {
	switch t := v.(type) {
	case map[string]any:
		d := starlark.NewDict(len(t))
		for k, val := range t {
			_ = d.SetKey(starlark.String(k), toStarlark(val))
		}
		return d
	case []any:
		list := make([]starlark.Value, len(t))
		for i, val := range t {
			list[i] = toStarlark(val)
		}
		return starlark.NewList(list)
	case string:
		return starlark.String(t)
	case int:
		return starlark.MakeInt(t)
	case bool:
		return starlark.Bool(t)
	case nil:
		return starlark.None
	default:
		return starlark.String(fmt.Sprintf("%v", t))
	}
}
