// Package warehouse implements lea's one vendor-specific contract: the
// Warehouse capability interface described in the specification's external
// interfaces section. The core executor is polymorphic over this interface;
// each backend (DuckDB/MotherDuck/DuckLake, Postgres standing in for the
// BigQuery family) is a variant built on top of pkg/adapter.
package warehouse

import (
	"context"

	"github.com/carbonfact/lea/pkg/core"
)

// DepsResolution selects which form of a dependency's table reference a
// materialisation should read from.
type DepsResolution int

const (
	// ResolveDevAudit is the resolution the executor uses for dev runs:
	// active dependencies read their audit table in the dev namespace.
	ResolveDevAudit DepsResolution = iota
	// ResolveDevProd reads a dependency's production table but still within
	// the dev namespace — not used by lea directly but kept for symmetry
	// with the original client's naming.
	ResolveDevProd
	// ResolveProd is the resolution the executor uses for production runs:
	// dependencies outside the active set read their production table in
	// the production namespace.
	ResolveProd
)

// Warehouse is the capability interface every backend implements. All
// operations are safe to call concurrently up to the executor's
// configured bound; the warehouse client is assumed connection-pooled.
type Warehouse interface {
	// Prepare ensures the target namespace exists (dataset/schema/database
	// file) for the given environment.
	Prepare(ctx context.Context, env core.Environment, username string) error

	// Teardown releases the target namespace for the given environment.
	// SQLWarehouse's Teardown drops nothing.
	Teardown(ctx context.Context, env core.Environment, username string) error

	// RenderTableRef produces the warehouse-syntax identifier for id. It
	// must round-trip through the dependency extractor's ParseTableRef.
	RenderTableRef(id core.TableID, audit bool, env core.Environment, username string) string

	// Materialize executes the script's SQL, rewriting dependency
	// references, and returns the number of rows written. activeAudit
	// lists the dependencies (by TableID.String()) that are themselves
	// being materialized in this run and so should read from their audit
	// table; frozen lists dependencies that are unselected ancestors and so
	// must read their production table with no dev-namespace suffix,
	// regardless of resolve. Any dependency in neither map reads its
	// production table: in the production namespace when resolve is
	// ResolveProd, otherwise in the run's own namespace.
	Materialize(ctx context.Context, script *core.Script, env core.Environment, username string, activeAudit, frozen map[string]bool, resolve DepsResolution) (rowsAffected int64, err error)

	// QueryRows executes a SELECT and returns up to limit rows, for test
	// failure reporting.
	QueryRows(ctx context.Context, sqlText string, limit int) ([]map[string]any, error)

	// Promote replaces the production table with its audit table. The
	// SQL implementation drops the production table and then renames the
	// audit table in two separate statements, so a single table's
	// replacement is not atomic.
	Promote(ctx context.Context, id core.TableID, env core.Environment, username string) error

	// Drop drops a table (its audit form if audit is true).
	Drop(ctx context.Context, id core.TableID, audit bool, env core.Environment, username string) error

	// TableExists reports whether id's audit (or production, if audit is
	// false) table currently exists.
	TableExists(ctx context.Context, id core.TableID, audit bool, env core.Environment, username string) (bool, error)

	Close() error
}
