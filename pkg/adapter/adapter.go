// Package adapter provides the low-level database driver contract that
// warehouse implementations wrap. It knows nothing about scripts, audit
// tables or WAP — it is a thin, testable layer over database/sql (or a
// vendor SDK) for a single physical connection.
package adapter

import (
	"context"

	"github.com/carbonfact/lea/pkg/core"
)

// Config is an alias for core.AdapterConfig for call-site brevity.
type Config = core.AdapterConfig

// Adapter is the interface every physical database driver implements.
// Higher-level warehouse semantics (materialize/promote/audit tables) are
// built on top of it in internal/warehouse.
type Adapter interface {
	Connect(ctx context.Context, cfg Config) error
	Close() error

	// Exec runs the statements of sql in a single session, in order —
	// required so that procedural statements (DECLARE/SET) precede a
	// trailing SELECT within one script.
	Exec(ctx context.Context, sql string) error

	// Query runs a SELECT and returns the resulting rows.
	Query(ctx context.Context, sql string) (*core.Rows, error)

	// TableExists reports whether a (possibly schema-qualified) table exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// RenameTable renames src to dst. It does not replace an existing dst;
	// promotion drops dst first. Used for promotion.
	RenameTable(ctx context.Context, src, dst string) error

	// DropTable drops a table if it exists.
	DropTable(ctx context.Context, table string) error

	// CreateNamespace ensures the given schema/database namespace exists.
	CreateNamespace(ctx context.Context, name string) error

	// DropNamespace drops the given schema/database namespace.
	DropNamespace(ctx context.Context, name string) error

	// Dialect returns the SQL dialect this adapter speaks.
	Dialect() core.SQLDialect
}
