package warehouse

import (
	"regexp"
	"strings"
)

// RewriteReferences replaces every whole-word occurrence of each key in
// replacements with its value inside sql. A match is "whole word" if the
// characters immediately surrounding it are not themselves identifier
// characters. A preceding "." or quote also blocks a match, so a longer
// qualified name that ends in a key is left alone; a following "." does
// not, so a column qualifier such as core.users.id is rewritten too. This
// is the same word-boundary substitution the original
// implementation uses to swap a script's dependency references between
// their dev/audit/production forms without re-parsing the SQL.
func RewriteReferences(sqlText string, replacements map[string]string) string {
	for old, replacement := range replacements {
		if old == "" || old == replacement {
			continue
		}
		sqlText = replaceWholeWord(sqlText, old, replacement)
	}
	return sqlText
}

func replaceWholeWord(text, old, replacement string) string {
	pattern := regexp.QuoteMeta(old)
	re := regexp.MustCompile(`(^|[^A-Za-z0-9_.` + "`" + `"\[\]])(` + pattern + `)($|[^A-Za-z0-9_` + "`" + `"\[\]])`)
	// Replace in a single left-to-right pass so a replacement text that
	// happens to contain old is never rescanned. "$" in the replacement
	// template has special meaning, so escape any literal dollar signs.
	safeReplacement := strings.ReplaceAll(replacement, "$", "$$")
	return re.ReplaceAllString(text, "${1}"+safeReplacement+"${3}")
}
