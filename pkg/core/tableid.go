// Package core holds the data model shared by every layer of lea: table
// identifiers, scripts, assertions and the small set of value types that
// the parser, DAG builder, executor and warehouse adapters all agree on.
package core

import (
	"regexp"
	"strings"
)

// AuditSuffix is appended, literally, to a table name to produce its audit
// form. Three underscores, exact — selector matching and checkpoint
// recognition round-trip on this literal.
const AuditSuffix = "___audit"

// SubSchemaSeparator splits a table name into nested schema segments when a
// dependency reference uses the project's sub-schema convention
// (schema.sub__table).
const SubSchemaSeparator = "__"

// TableID is a fully-qualified table identifier: an ordered schema path
// plus a table name. Equality is structural.
type TableID struct {
	Schema []string
	Table  string
}

// NewTableID builds a TableID from a schema path and table name, copying the
// schema slice so callers can't mutate it out from under the DAG.
func NewTableID(schema []string, table string) TableID {
	cp := make([]string, len(schema))
	copy(cp, schema)
	return TableID{Schema: cp, Table: table}
}

// String renders the canonical dotted form, e.g. "core.users" or
// "staging.raw.orders". This is the key used inside the DAG and by
// selectors; it is not warehouse syntax (see Warehouse.RenderTableRef).
func (id TableID) String() string {
	parts := make([]string, 0, len(id.Schema)+1)
	parts = append(parts, id.Schema...)
	parts = append(parts, id.Table)
	return strings.Join(parts, ".")
}

// Equal reports structural equality.
func (id TableID) Equal(other TableID) bool {
	if id.Table != other.Table || len(id.Schema) != len(other.Schema) {
		return false
	}
	for i := range id.Schema {
		if id.Schema[i] != other.Schema[i] {
			return false
		}
	}
	return true
}

// TopSchema returns the leftmost schema segment, or "" if the id is
// malformed (should not happen for a parsed script).
func (id TableID) TopSchema() string {
	if len(id.Schema) == 0 {
		return ""
	}
	return id.Schema[0]
}

// AuditTable returns the table name with the audit suffix appended.
func (id TableID) AuditTable() string {
	return id.Table + AuditSuffix
}

// IsAuditTable reports whether a raw table name carries the audit suffix.
func IsAuditTable(table string) bool {
	return strings.HasSuffix(table, AuditSuffix)
}

// StripAuditSuffix removes the audit suffix if present.
func StripAuditSuffix(table string) string {
	return strings.TrimSuffix(table, AuditSuffix)
}

// underscoreRun matches a maximal run of one or more underscores, used to
// find the sub-schema separator without matching into the audit suffix's
// run of three.
var underscoreRun = regexp.MustCompile(`_+`)

// splitSubSchema splits leftover on isolated double-underscore runs, the
// same way the project's sub-schema convention does everywhere else: a run
// of exactly two underscores separates path segments, but a run of any
// other length (one, or the three of "___audit") is left untouched, so an
// audit-suffixed nested table name never gets misparsed.
func splitSubSchema(leftover string) []string {
	matches := underscoreRun.FindAllStringIndex(leftover, -1)
	parts := make([]string, 0, len(matches)+1)
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if end-start != 2 {
			continue
		}
		parts = append(parts, leftover[last:start])
		last = end
	}
	return append(parts, leftover[last:])
}

// ParseTableRef splits a dependency reference of the form "schema.table" or
// "schema.sub__table" (the project's sub-schema convention: a double
// underscore nests the table's own segment under one or more sub-schemas)
// into a TableID. A bare, unqualified name yields a TableID with no schema
// and is not split. Only the segment after the final dot is ever split on
// "__".
func ParseTableRef(ref string) TableID {
	parts := strings.Split(ref, ".")
	if len(parts) == 1 {
		return TableID{Table: parts[0]}
	}
	schema := parts[:len(parts)-1]
	leftover := parts[len(parts)-1]

	sub := splitSubSchema(leftover)
	table := sub[len(sub)-1]
	if len(sub) > 1 {
		schema = append(append([]string{}, schema...), sub[:len(sub)-1]...)
	}
	return NewTableID(schema, table)
}

// TableIDFromPath maps a script's path relative to the scripts root into a
// TableID: directories become schema segments, the filename stem becomes
// the table name. segments must have at least two elements (a schema and a
// filename) — callers reject scripts placed directly under the root.
func TableIDFromPath(segments []string) TableID {
	schema := segments[:len(segments)-1]
	table := segments[len(segments)-1]
	return NewTableID(schema, table)
}
