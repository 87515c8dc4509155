package scriptparser

import (
	"regexp"
	"strings"
)

// cteNamePattern finds every "name AS (" definition that a WITH clause
// introduces. It is deliberately loose (it does not verify the name sits at
// top level of a WITH list) — a false-positive CTE name only causes a real
// dependency to be misclassified as a CTE, which is the same class of
// approximation the source's exclusion of "scope.cte_sources" already
// accepts for deeply nested queries.
var cteNamePattern = regexp.MustCompile(`(?is)\b([A-Za-z_][A-Za-z0-9_]*)\s+AS\s*\(`)

// fromJoinPattern captures the identifier immediately after FROM or JOIN
// (including the LEFT/RIGHT/INNER/OUTER/CROSS/FULL family), stopping at the
// first token that can't be part of a dotted identifier.
var fromJoinPattern = regexp.MustCompile(`(?is)\b(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_.` + "`" + `"\[\]]*)`)

var lineCommentPattern = regexp.MustCompile(`--[^\n]*`)
var blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
var stringLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)

var sqlKeywords = map[string]bool{
	"select": true, "where": true, "group": true, "order": true, "having": true,
	"limit": true, "offset": true, "on": true, "using": true, "union": true,
	"intersect": true, "except": true, "as": true, "lateral": true, "left": true,
	"right": true, "inner": true, "outer": true, "cross": true, "full": true, "join": true,
}

// ExtractDependencies returns every schema-qualified table reference
// appearing in FROM/JOIN position that is not the name of a CTE defined in
// the same script, deduplicated and in first-seen order. Unqualified names
// are not returned.
func ExtractDependencies(sql string) []string {
	scrubbed := scrubForScan(sql)

	ctes := map[string]bool{}
	for _, m := range cteNamePattern.FindAllStringSubmatch(scrubbed, -1) {
		ctes[strings.ToLower(m[1])] = true
	}

	seen := map[string]bool{}
	var refs []string
	for _, m := range fromJoinPattern.FindAllStringSubmatch(scrubbed, -1) {
		ref := strings.Trim(m[1], "`\"[]")
		lower := strings.ToLower(ref)
		if lower == "" || sqlKeywords[lower] {
			continue
		}
		if ctes[lower] {
			continue
		}
		// A bare, unqualified name that isn't a CTE is either a temp
		// table/view local to the warehouse session or a subquery alias
		// artifact of the scan; the project's convention is that real
		// dependencies are always schema-qualified.
		if !strings.Contains(ref, ".") {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		refs = append(refs, ref)
	}
	return refs
}

// scrubForScan blanks out comments and string literals (preserving their
// length so reported line numbers elsewhere stay meaningful) so keyword and
// identifier scanning never matches inside them.
func scrubForScan(sql string) string {
	sql = blockCommentPattern.ReplaceAllStringFunc(sql, blankKeepingNewlines)
	sql = lineCommentPattern.ReplaceAllStringFunc(sql, blankKeepingNewlines)
	sql = stringLiteralPattern.ReplaceAllStringFunc(sql, blankKeepingNewlines)
	return sql
}

func blankKeepingNewlines(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' {
			b.WriteRune('\n')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
