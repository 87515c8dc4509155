package core

import "database/sql"

// AdapterConfig holds the connection parameters for a physical database
// driver. It is deliberately shaped like a superset of every supported
// vendor's needs; unused fields are simply left zero.
type AdapterConfig struct {
	Type     string
	Path     string // file-based targets (DuckDB, DuckLake catalog)
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Project  string // BigQuery project id
	Options  map[string]string
	Params   map[string]any
}

// Rows wraps sql.Rows so warehouse callers depend on core, not database/sql,
// at their boundary.
type Rows struct {
	*sql.Rows
}
