package core

import "time"

// Kind classifies a Script by how it participates in a run.
type Kind int

const (
	// KindRegular is an ordinary transformation that materialises a table.
	KindRegular Kind = iota
	// KindTestSingular is a hand-written file under the tests/ schema whose
	// success criterion is "zero rows returned".
	KindTestSingular
	// KindTestAssertion is synthesised from an inline annotation.
	KindTestAssertion
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindTestSingular:
		return "test_singular"
	case KindTestAssertion:
		return "test_assertion"
	default:
		return "unknown"
	}
}

// AssertionKind identifies which check a synthesised test enforces.
type AssertionKind int

const (
	AssertionNoNulls AssertionKind = iota
	AssertionUnique
	AssertionUniqueBy
	AssertionSet
)

func (k AssertionKind) String() string {
	switch k {
	case AssertionNoNulls:
		return "no_nulls"
	case AssertionUnique:
		return "unique"
	case AssertionUniqueBy:
		return "unique_by"
	case AssertionSet:
		return "set"
	default:
		return "unknown"
	}
}

// Assertion is a single inline annotation attached to a SELECT-list column.
type Assertion struct {
	Kind     AssertionKind
	Column   string
	ByColumn []string // populated for UniqueBy
	Values   []string // populated for Set, in declared order
	Line     int       // source line the annotation comment started on
}

// Script is an immutable record produced by the parser for exactly one
// project table (or, for synthesised tests, one assertion or singular test
// file).
type Script struct {
	ID     TableID
	Kind   Kind
	Path   string // path relative to the scripts root, "" for synthesised scripts
	RawSQL string // post-Jinja SQL

	Dependencies         map[string]TableID // graph-internal, keyed by TableID.String()
	// RawDependencyRefs maps the same keys to the exact reference text as it
	// appears in RawSQL (e.g. "schema.sub__table"), so the warehouse layer
	// can rewrite references without re-parsing the script.
	RawDependencyRefs    map[string]string
	ExternalDependencies []string // informational: refs not produced by any script

	Assertions []Assertion

	MTime         time.Time
	IsIncremental bool
	IncrementalKey string // column named by #INCREMENTAL(key) if present, else ""

	// ClusteringField lists columns tagged #CLUSTERING_FIELD. Core treats
	// this as an opaque warehouse hint; only adapters that support
	// clustering need look at it.
	ClusteringField []string

	// ParentID is set on synthesised test scripts (both assertion-derived and,
	// trivially, absent for singular tests) to record which regular script's
	// audit table the test queries.
	ParentID *TableID
}

// IsTest reports whether the script's success criterion is "zero rows".
func (s *Script) IsTest() bool {
	return s.Kind == KindTestSingular || s.Kind == KindTestAssertion
}
