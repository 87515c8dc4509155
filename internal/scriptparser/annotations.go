package scriptparser

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/carbonfact/lea/pkg/core"
)

var (
	tagPattern        = regexp.MustCompile(`#([A-Z_]+)(\((?P<args>[^)]*)\)|\{(?P<set>[^}]*)\})?`)
	unterminatedSet   = regexp.MustCompile(`#SET\{[^}]*$`)
	unterminatedBy    = regexp.MustCompile(`#UNIQUE_BY\([^)]*$`)
	incrementalTag    = regexp.MustCompile(`(?:#|@)INCREMENTAL(?:\(([A-Za-z_][A-Za-z0-9_]*)\))?`)
	legacyUniqueTag   = regexp.MustCompile(`@UNIQUE\b`)
	trailingComma     = regexp.MustCompile(`,\s*$`)
	identifierAtEnd   = regexp.MustCompile(`(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*$`)
	topLevelSelect    = regexp.MustCompile(`(?i)\bSELECT\b`)
	topLevelFrom      = regexp.MustCompile(`(?i)\bFROM\b`)
)

// commentBlock is a maximal run of "-- " line comments separated by
// nothing but blank lines.
type commentBlock struct {
	firstLine int
	lastLine  int
	text      string // joined comment text, one line's content per line
}

// annotationResult is what ParseAnnotations returns for one script.
type annotationResult struct {
	Assertions      []core.Assertion
	IsIncremental   bool
	IncrementalKey  string
	ClusteringField []string
}

// ParseAnnotations scans sql for annotation comments and attaches them to
// the SELECT-list column on the first non-blank line after the comment
// block's last line.
func ParseAnnotations(file, sql string) (*annotationResult, error) {
	lines := strings.Split(sql, "\n")

	if loc := unterminatedSet.FindStringIndex(sql); loc != nil {
		line := 1 + strings.Count(sql[:loc[0]], "\n")
		return nil, core.NewParseError(file, line, "malformed #SET{...}: unterminated braces")
	}
	if loc := unterminatedBy.FindStringIndex(sql); loc != nil {
		line := 1 + strings.Count(sql[:loc[0]], "\n")
		return nil, core.NewParseError(file, line, "malformed #UNIQUE_BY(...): unterminated parentheses")
	}

	blocks := commentBlocks(lines)
	colByLine := columnLineOf(lines)

	result := &annotationResult{}

	for _, block := range blocks {
		target := nextNonBlankLine(lines, block.lastLine+1)
		colLine, ok := colByLine[target]
		if !ok {
			// Not attached to a column; still honor a bare #INCREMENTAL. An
			// unattached #CLUSTERING_FIELD names no column and is dropped.
			applyUnattached(block, result)
			continue
		}
		if err := applyToColumn(file, block, colLine, result); err != nil {
			return nil, err
		}
	}

	// #INCREMENTAL / @INCREMENTAL is a script-level flag and may appear on
	// any comment line, attached to a column or not.
	if m := incrementalTag.FindStringSubmatch(sql); m != nil {
		result.IsIncremental = true
		if m[1] != "" {
			result.IncrementalKey = m[1]
		}
	}

	return result, nil
}

// nextNonBlankLine returns the first line number at or after start whose
// text is not all whitespace, so a comment block attaches to the nearest
// following non-comment, non-blank token even across an intervening blank
// line. It returns len(lines)+1 if every remaining line is blank.
func nextNonBlankLine(lines []string, start int) int {
	for start <= len(lines) && strings.TrimSpace(lines[start-1]) == "" {
		start++
	}
	return start
}

func applyUnattached(block commentBlock, result *annotationResult) {
	if incrementalTag.MatchString(block.text) {
		result.IsIncremental = true
	}
}

func applyToColumn(file string, block commentBlock, column string, result *annotationResult) error {
	matches := tagPattern.FindAllStringSubmatch(block.text, -1)
	for _, m := range matches {
		tag := m[1]
		args := m[3]
		set := m[4]
		switch tag {
		case "NO_NULLS":
			result.Assertions = append(result.Assertions, core.Assertion{Kind: core.AssertionNoNulls, Column: column, Line: block.firstLine})
		case "UNIQUE":
			result.Assertions = append(result.Assertions, core.Assertion{Kind: core.AssertionUnique, Column: column, Line: block.firstLine})
		case "UNIQUE_BY":
			by := splitArgs(args)
			result.Assertions = append(result.Assertions, core.Assertion{Kind: core.AssertionUniqueBy, Column: column, ByColumn: by, Line: block.firstLine})
		case "SET":
			values := splitArgs(set)
			result.Assertions = append(result.Assertions, core.Assertion{Kind: core.AssertionSet, Column: column, Values: values, Line: block.firstLine})
		case "CLUSTERING_FIELD":
			result.ClusteringField = append(result.ClusteringField, column)
		case "INCREMENTAL":
			result.IsIncremental = true
		default:
			slog.Warn("unknown annotation keyword ignored", "file", file, "line", block.firstLine, "tag", tag)
		}
	}
	if legacyUniqueTag.MatchString(block.text) {
		result.Assertions = append(result.Assertions, core.Assertion{Kind: core.AssertionUnique, Column: column, Line: block.firstLine})
	}
	return nil
}

func splitArgs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `'"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// commentBlocks groups consecutive "-- " comment lines together.
func commentBlocks(lines []string) []commentBlock {
	var blocks []commentBlock
	var cur []int
	flush := func() {
		if len(cur) == 0 {
			return
		}
		var texts []string
		for _, ln := range cur {
			texts = append(texts, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[ln-1]), "--")))
		}
		blocks = append(blocks, commentBlock{firstLine: cur[0], lastLine: cur[len(cur)-1], text: strings.Join(texts, " ")})
		cur = nil
	}
	for i, line := range lines {
		lineNo := i + 1
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			cur = append(cur, lineNo)
		} else if strings.TrimSpace(line) == "" {
			continue // blank lines don't break a block in this scanner
		} else {
			flush()
		}
	}
	flush()
	return blocks
}

// columnLineOf maps each line number, for lines that sit inside a
// top-level SELECT list and whose trailing (non-comma) token looks like a
// column alias/identifier, to that identifier.
func columnLineOf(lines []string) map[int]string {
	out := map[int]string{}
	depth := 0
	inSelect := false
	for i, raw := range lines {
		lineNo := i + 1
		code := stripTrailingComment(raw)
		startDepth := depth
		depth += strings.Count(code, "(") - strings.Count(code, ")")

		if startDepth == 0 {
			if topLevelSelect.MatchString(code) {
				inSelect = true
			} else if topLevelFrom.MatchString(code) {
				inSelect = false
			}
		}

		trimmed := strings.TrimSpace(code)
		if !inSelect || trimmed == "" || startDepth != 0 {
			continue
		}
		if topLevelSelect.MatchString(code) || topLevelFrom.MatchString(code) {
			continue
		}
		candidate := trailingComma.ReplaceAllString(trimmed, "")
		if m := identifierAtEnd.FindStringSubmatch(candidate); m != nil && !isKeyword(m[1]) {
			out[lineNo] = m[1]
		}
	}
	return out
}

func stripTrailingComment(line string) string {
	if idx := strings.Index(line, "--"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func isKeyword(word string) bool {
	return sqlKeywords[strings.ToLower(word)] || strings.EqualFold(word, "select") || strings.EqualFold(word, "distinct")
}
