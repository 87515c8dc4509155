package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/carbonfact/lea/pkg/adapter"
	"github.com/carbonfact/lea/pkg/core"
)

// schemaSuffixed warehouse types apply the dev-username suffix to the
// top-level schema segment; the alternative (file-suffixed) family applies
// it to the underlying database file instead, which happens once at
// connect time and is opaque to RenderTableRef.
var schemaSuffixedTypes = map[string]bool{
	"postgres": true,
	"bigquery": true,
}

// SQLWarehouse implements Warehouse on top of any database/sql-backed
// adapter.Adapter. It owns the naming conventions (sub-schema folding,
// dev-namespace suffixing, audit suffixing) and the WAP write/promote
// mechanics; the adapter only knows how to run SQL.
type SQLWarehouse struct {
	Type    string
	Adapter adapter.Adapter
}

// New builds a SQLWarehouse for warehouseType, connecting the underlying
// adapter with cfg.
func New(ctx context.Context, warehouseType string, cfg core.AdapterConfig) (*SQLWarehouse, error) {
	a, err := adapter.New(warehouseType)
	if err != nil {
		return nil, err
	}
	cfg.Type = warehouseType
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("warehouse: connect failed: %w", err)
	}
	return &SQLWarehouse{Type: warehouseType, Adapter: a}, nil
}

func (w *SQLWarehouse) Close() error { return w.Adapter.Close() }

func (w *SQLWarehouse) namespace(env core.Environment, username, schema string) string {
	if env == core.EnvDev && schemaSuffixedTypes[w.Type] {
		return schema + "_" + username
	}
	return schema
}

// physicalName folds a TableID's schema path beyond the first segment into
// the table name using the project's "__" sub-schema convention, since
// SQL warehouses only offer one schema level.
func physicalName(id core.TableID) string {
	if len(id.Schema) <= 1 {
		return id.Table
	}
	return strings.Join(id.Schema[1:], core.SubSchemaSeparator) + core.SubSchemaSeparator + id.Table
}

func (w *SQLWarehouse) RenderTableRef(id core.TableID, audit bool, env core.Environment, username string) string {
	dialect := w.Adapter.Dialect()
	schema := w.namespace(env, username, id.TopSchema())
	table := physicalName(id)
	if audit {
		table += core.AuditSuffix
	}
	return fmt.Sprintf("%s.%s", dialect.QuoteIdentifier(schema), dialect.QuoteIdentifier(table))
}

func (w *SQLWarehouse) Prepare(ctx context.Context, env core.Environment, username string) error {
	// A namespace per top-level schema is created lazily by Materialize via
	// CREATE SCHEMA IF NOT EXISTS in RenderTableRef's namespace; nothing
	// upfront is required beyond ensuring the connection itself is live,
	// which New() already verified.
	return nil
}

func (w *SQLWarehouse) Teardown(ctx context.Context, env core.Environment, username string) error {
	return nil
}

func (w *SQLWarehouse) TableExists(ctx context.Context, id core.TableID, audit bool, env core.Environment, username string) (bool, error) {
	dialect := w.Adapter.Dialect()
	schema := w.namespace(env, username, id.TopSchema())
	table := physicalName(id)
	if audit {
		table += core.AuditSuffix
	}
	_ = dialect
	return w.Adapter.TableExists(ctx, schema+"."+table)
}

// Materialize renders the script's SQL against the audit table, rewriting
// each graph-internal dependency reference to whichever form it needs
// (its own audit table if it's active, its unsuffixed production table if
// it's frozen or resolve is ResolveProd, or its production table in the
// run's own namespace otherwise), then executes
// it as a single CREATE OR REPLACE TABLE ... AS <select> (or, for
// incremental scripts, an INSERT merge against the existing audit rows).
func (w *SQLWarehouse) Materialize(ctx context.Context, script *core.Script, env core.Environment, username string, activeAudit, frozen map[string]bool, resolve DepsResolution) (int64, error) {
	schema := w.namespace(env, username, script.ID.TopSchema())
	if err := w.Adapter.CreateNamespace(ctx, schema); err != nil {
		return 0, fmt.Errorf("warehouse: prepare namespace %s: %w", schema, err)
	}

	replacements := make(map[string]string, len(script.Dependencies))
	for key, dep := range script.Dependencies {
		var ref string
		switch {
		case activeAudit[key]:
			ref = w.RenderTableRef(dep, true, env, username)
		case frozen[key] || resolve == ResolveProd:
			ref = w.RenderTableRef(dep, false, core.EnvProd, "")
		default:
			ref = w.RenderTableRef(dep, false, env, username)
		}
		rawRef := script.RawDependencyRefs[key]
		if rawRef == "" {
			rawRef = key
		}
		replacements[rawRef] = ref
	}
	rendered := RewriteReferences(script.RawSQL, replacements)

	auditRef := w.RenderTableRef(script.ID, true, env, username)

	var stmt string
	if script.IsIncremental && script.IncrementalKey != "" {
		stmt = incrementalMergeSQL(auditRef, rendered, script.IncrementalKey)
	} else {
		stmt = fmt.Sprintf("CREATE OR REPLACE TABLE %s AS\n%s", auditRef, rendered)
	}

	if err := w.Adapter.Exec(ctx, stmt); err != nil {
		return 0, core.NewMaterializationError(script.ID.String(), err)
	}
	return rowCount(ctx, w.Adapter, auditRef)
}

// incrementalMergeSQL builds the merge statement for a #INCREMENTAL script:
// rows already present with a key value at or above what the new query
// would produce are preserved; only genuinely new rows are appended. This
// keeps CREATE OR REPLACE off the table so pre-existing rows with
// key < threshold survive.
//
// The empty clone uses "SELECT ... WHERE 1 = 0" rather than PostgreSQL's
// "WITH NO DATA", since neither DuckDB nor BigQuery accept that clause;
// a false predicate on CREATE TABLE ... AS is portable across all three.
func incrementalMergeSQL(auditRef, selectSQL, key string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s AS\n"+
			"SELECT * FROM (%s) AS lea_incremental_schema WHERE 1 = 0;\n"+
			"INSERT INTO %s\n"+
			"SELECT * FROM (%s) AS lea_incremental\n"+
			"WHERE %s > COALESCE((SELECT MAX(%s) FROM %s), lea_incremental.%s - 1)",
		auditRef, selectSQL,
		auditRef,
		selectSQL,
		key, key, auditRef, key,
	)
}

func rowCount(ctx context.Context, a adapter.Adapter, tableRef string) (int64, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableRef))
	if err != nil {
		return 0, nil //nolint:nilerr // row count is best-effort; materialization already succeeded
	}
	defer func() { _ = rows.Close() }()
	var n int64
	if rows.Next() {
		_ = rows.Scan(&n)
	}
	return n, nil
}

func (w *SQLWarehouse) QueryRows(ctx context.Context, sqlText string, limit int) ([]map[string]any, error) {
	rows, err := w.Adapter.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() && (limit <= 0 || len(out) < limit) {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (w *SQLWarehouse) Promote(ctx context.Context, id core.TableID, env core.Environment, username string) error {
	auditRef := w.RenderTableRef(id, true, env, username)
	prodRef := w.RenderTableRef(id, false, env, username)
	if err := w.Adapter.DropTable(ctx, prodRef); err != nil {
		return fmt.Errorf("warehouse: drop prior production table %s: %w", prodRef, err)
	}
	if err := w.Adapter.RenameTable(ctx, auditRef, prodRef); err != nil {
		return fmt.Errorf("warehouse: promote %s: %w", auditRef, err)
	}
	return nil
}

func (w *SQLWarehouse) Drop(ctx context.Context, id core.TableID, audit bool, env core.Environment, username string) error {
	ref := w.RenderTableRef(id, audit, env, username)
	return w.Adapter.DropTable(ctx, ref)
}

var _ Warehouse = (*SQLWarehouse)(nil)
