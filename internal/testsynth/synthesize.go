// Package testsynth turns the inline annotations a script carries
// (#NO_NULLS, #UNIQUE, #UNIQUE_BY, #SET) into standalone core.Script values
// that the executor runs the same way as a hand-written singular test: the
// query is expected to return zero rows.
package testsynth

import (
	"fmt"
	"strings"

	"github.com/carbonfact/lea/pkg/core"
)

// Synthesize builds one test_assertion Script per assertion carried by
// parent. The returned scripts' RawSQL references parent by its canonical
// dotted form; the executor is responsible for rewriting that reference to
// parent's audit table before running the query, since a test always
// audits the write side of a WAP run, never production.
func Synthesize(parent *core.Script) []*core.Script {
	if len(parent.Assertions) == 0 {
		return nil
	}

	out := make([]*core.Script, 0, len(parent.Assertions))
	parentRef := parent.ID.String()
	for _, a := range parent.Assertions {
		id := assertionTableID(parent.ID, a)
		sql := assertionSQL(parentRef, a)

		script := &core.Script{
			ID:       id,
			Kind:     core.KindTestAssertion,
			RawSQL:   sql,
			ParentID: &parent.ID,
			Dependencies: map[string]core.TableID{
				parentRef: parent.ID,
			},
			RawDependencyRefs: map[string]string{
				parentRef: parentRef,
			},
		}
		out = append(out, script)
	}
	return out
}

// assertionTableID names the synthesised test tests.<schema__..__table>__<column>___<kind>,
// folding the parent's full schema path into the name the same way the
// warehouse folds sub-schemas into a physical table name.
func assertionTableID(parent core.TableID, a core.Assertion) core.TableID {
	segments := append(append([]string{}, parent.Schema...), parent.Table)
	base := strings.Join(segments, core.SubSchemaSeparator)

	var suffix string
	switch a.Kind {
	case core.AssertionNoNulls:
		suffix = a.Column + "___no_nulls"
	case core.AssertionUnique:
		suffix = a.Column + "___unique"
	case core.AssertionUniqueBy:
		suffix = a.Column + "___unique_by_" + strings.Join(a.ByColumn, "_")
	case core.AssertionSet:
		suffix = a.Column + "___set"
	default:
		suffix = a.Column + "___check"
	}

	return core.NewTableID([]string{"tests"}, base+core.SubSchemaSeparator+suffix)
}

func assertionSQL(parentRef string, a core.Assertion) string {
	switch a.Kind {
	case core.AssertionNoNulls:
		return fmt.Sprintf("SELECT * FROM %s WHERE %s IS NULL", parentRef, a.Column)
	case core.AssertionUnique:
		return fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s IS NOT NULL GROUP BY %s HAVING COUNT(*) > 1",
			a.Column, parentRef, a.Column, a.Column,
		)
	case core.AssertionUniqueBy:
		cols := strings.Join(a.ByColumn, ", ")
		return fmt.Sprintf(
			"SELECT %s, %s FROM %s WHERE %s IS NOT NULL GROUP BY %s, %s HAVING COUNT(*) > 1",
			cols, a.Column, parentRef, a.Column, cols, a.Column,
		)
	case core.AssertionSet:
		values := make([]string, len(a.Values))
		for i, v := range a.Values {
			values[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		return fmt.Sprintf(
			"SELECT * FROM %s WHERE %s IS NOT NULL AND %s NOT IN (%s)",
			parentRef, a.Column, a.Column, strings.Join(values, ", "),
		)
	default:
		return fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", parentRef)
	}
}
