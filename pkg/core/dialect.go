package core

import "fmt"

// SQLDialect is the small slice of vendor-specific SQL syntax the adapter
// layer needs: identifier quoting, the default schema and how bound
// parameters are written. Warehouse-vendor differences in promotion syntax
// and incremental-merge syntax live in the warehouse implementations
// themselves, not here.
type SQLDialect struct {
	Name          string
	Quote         string
	QuoteEnd      string
	DefaultSchema string
	Placeholder   PlaceholderStyle
}

// PlaceholderStyle controls how FormatPlaceholder renders a bound
// parameter position.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota
	PlaceholderDollar
)

// FormatPlaceholder renders the n-th (1-indexed) bound parameter.
func (d SQLDialect) FormatPlaceholder(n int) string {
	if d.Placeholder == PlaceholderDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdentifier wraps an identifier in the dialect's quote characters.
func (d SQLDialect) QuoteIdentifier(ident string) string {
	end := d.QuoteEnd
	if end == "" {
		end = d.Quote
	}
	return d.Quote + ident + end
}

var (
	// DuckDBDialect covers DuckDB, MotherDuck and DuckLake targets — they
	// share DuckDB's SQL surface and quoting rules.
	DuckDBDialect = SQLDialect{Name: "duckdb", Quote: `"`, DefaultSchema: "main", Placeholder: PlaceholderQuestion}
	// PostgresDialect is used for the Postgres warehouse target.
	PostgresDialect = SQLDialect{Name: "postgres", Quote: `"`, DefaultSchema: "public", Placeholder: PlaceholderDollar}
	// BigQueryDialect is provided for completeness; BigQuery access itself
	// is an external collaborator per the project scope (see DESIGN.md).
	BigQueryDialect = SQLDialect{Name: "bigquery", Quote: "`", DefaultSchema: "", Placeholder: PlaceholderQuestion}
)

// DialectFor looks up the built-in dialect for a warehouse type name.
func DialectFor(warehouseType string) (SQLDialect, bool) {
	switch warehouseType {
	case "duckdb", "motherduck", "ducklake":
		return DuckDBDialect, true
	case "postgres", "postgresql":
		return PostgresDialect, true
	case "bigquery":
		return BigQueryDialect, true
	default:
		return SQLDialect{}, false
	}
}
