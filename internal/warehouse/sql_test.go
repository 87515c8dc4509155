package warehouse

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonfact/lea/pkg/adapter"
	"github.com/carbonfact/lea/pkg/core"
)

// fakeAdapter wraps adapter.BaseSQLAdapter (now that it implements the full
// adapter.Adapter surface, RenameTable included) with a no-op Connect, so
// tests can point Materialize/Promote/etc. at a sqlmock-backed *sql.DB
// without going through a real vendor driver.
type fakeAdapter struct {
	adapter.BaseSQLAdapter
}

func (f *fakeAdapter) Connect(ctx context.Context, cfg adapter.Config) error { return nil }

func newFakeAdapter(t *testing.T, dial core.SQLDialect) (*fakeAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &fakeAdapter{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db, Dial: dial}}, mock
}

func TestRenderTableRef_DuckDBDevDoesNotSuffixSchema(t *testing.T) {
	fa, _ := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	ref := w.RenderTableRef(core.NewTableID([]string{"core"}, "users"), false, core.EnvDev, "alice")
	assert.Equal(t, `"core"."users"`, ref)
}

func TestRenderTableRef_PostgresDevSuffixesSchemaWithUsername(t *testing.T) {
	fa, _ := newFakeAdapter(t, core.PostgresDialect)
	w := &SQLWarehouse{Type: "postgres", Adapter: fa}

	ref := w.RenderTableRef(core.NewTableID([]string{"core"}, "users"), false, core.EnvDev, "alice")
	assert.Equal(t, `"core_alice"."users"`, ref)
}

func TestRenderTableRef_ProdNeverSuffixesSchema(t *testing.T) {
	fa, _ := newFakeAdapter(t, core.PostgresDialect)
	w := &SQLWarehouse{Type: "postgres", Adapter: fa}

	ref := w.RenderTableRef(core.NewTableID([]string{"core"}, "users"), false, core.EnvProd, "alice")
	assert.Equal(t, `"core"."users"`, ref)
}

func TestRenderTableRef_AuditAppendsSuffix(t *testing.T) {
	fa, _ := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	ref := w.RenderTableRef(core.NewTableID([]string{"core"}, "users"), true, core.EnvDev, "alice")
	assert.Equal(t, `"core"."users___audit"`, ref)
}

func TestRenderTableRef_SubSchemaFoldsIntoTableName(t *testing.T) {
	fa, _ := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	ref := w.RenderTableRef(core.NewTableID([]string{"staging", "raw"}, "orders"), false, core.EnvDev, "alice")
	assert.Equal(t, `"staging"."raw__orders"`, ref)
}

func TestTableExists_DelegatesWithPhysicalName(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.PostgresDialect)
	w := &SQLWarehouse{Type: "postgres", Adapter: fa}

	mock.ExpectQuery("SELECT 1 FROM information_schema.tables").
		WithArgs("core_alice", "users").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := w.TableExists(context.Background(), core.NewTableID([]string{"core"}, "users"), false, core.EnvDev, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_CreateOrReplace(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	dep := core.NewTableID([]string{"staging"}, "orders")
	script := &core.Script{
		ID:                core.NewTableID([]string{"core"}, "orders"),
		RawSQL:            "SELECT * FROM staging.orders",
		Dependencies:      map[string]core.TableID{"staging.orders": dep},
		RawDependencyRefs: map[string]string{"staging.orders": "staging.orders"},
	}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS core`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE OR REPLACE TABLE "core"."orders___audit" AS`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "core"."orders___audit"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	rows, err := w.Materialize(context.Background(), script, core.EnvDev, "alice", map[string]bool{"staging.orders": true}, nil, ResolveDevAudit)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_RewritesActiveDependencyToAuditForm(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	dep := core.NewTableID([]string{"staging"}, "orders")
	script := &core.Script{
		ID:                core.NewTableID([]string{"core"}, "orders"),
		RawSQL:            "SELECT * FROM staging.orders",
		Dependencies:      map[string]core.TableID{"staging.orders": dep},
		RawDependencyRefs: map[string]string{"staging.orders": "staging.orders"},
	}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS core`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE OR REPLACE TABLE "core"."orders___audit" AS SELECT \* FROM "staging"."orders___audit"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := w.Materialize(context.Background(), script, core.EnvDev, "alice", map[string]bool{"staging.orders": true}, nil, ResolveDevAudit)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_FrozenDependencyResolvesToUnsuffixedProd(t *testing.T) {
	// Postgres suffixes the dev schema with the username, so the
	// frozen-production form ("staging"."orders") is visibly distinct from
	// the ordinary dev-namespace form ("staging_alice"."orders").
	fa, mock := newFakeAdapter(t, core.PostgresDialect)
	w := &SQLWarehouse{Type: "postgres", Adapter: fa}

	dep := core.NewTableID([]string{"staging"}, "orders")
	script := &core.Script{
		ID:                core.NewTableID([]string{"core"}, "orders"),
		RawSQL:            "SELECT * FROM staging.orders",
		Dependencies:      map[string]core.TableID{"staging.orders": dep},
		RawDependencyRefs: map[string]string{"staging.orders": "staging.orders"},
	}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS core_alice`).WillReturnResult(sqlmock.NewResult(0, 0))
	// staging.orders is frozen, so even though this is a dev run it must
	// resolve to its unsuffixed production table, never the dev namespace
	// or the audit form.
	mock.ExpectExec(`CREATE OR REPLACE TABLE "core_alice"."orders___audit" AS SELECT \* FROM "staging"."orders"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := w.Materialize(context.Background(), script, core.EnvDev, "alice", map[string]bool{}, map[string]bool{"staging.orders": true}, ResolveDevAudit)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_UnknownDependencyFallsBackToResolveDefault(t *testing.T) {
	// A dependency that is neither active nor frozen (e.g. resolve is
	// ResolveDevAudit for a plain unselected-but-unfrozen dev run) falls
	// back to the ordinary dev-namespace production table.
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	dep := core.NewTableID([]string{"staging"}, "orders")
	script := &core.Script{
		ID:                core.NewTableID([]string{"core"}, "orders"),
		RawSQL:            "SELECT * FROM staging.orders",
		Dependencies:      map[string]core.TableID{"staging.orders": dep},
		RawDependencyRefs: map[string]string{"staging.orders": "staging.orders"},
	}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS core`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE OR REPLACE TABLE "core"."orders___audit" AS SELECT \* FROM "staging"."orders"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := w.Materialize(context.Background(), script, core.EnvDev, "alice", map[string]bool{}, nil, ResolveDevAudit)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_IncrementalEmitsMergeStatement(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	script := &core.Script{
		ID:             core.NewTableID([]string{"core"}, "events"),
		RawSQL:         "SELECT * FROM staging.events",
		IsIncremental:  true,
		IncrementalKey: "updated_at",
	}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS core`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "core"."events___audit" AS SELECT \* FROM \(SELECT \* FROM staging.events\) AS lea_incremental_schema WHERE 1 = 0`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "core"."events___audit"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	rows, err := w.Materialize(context.Background(), script, core.EnvDev, "alice", nil, nil, ResolveDevAudit)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_ExecErrorWrapsAsMaterializationError(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	script := &core.Script{ID: core.NewTableID([]string{"core"}, "orders"), RawSQL: "SELECT 1"}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS core`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE OR REPLACE TABLE`).WillReturnError(assert.AnError)

	_, err := w.Materialize(context.Background(), script, core.EnvDev, "alice", nil, nil, ResolveDevAudit)
	require.Error(t, err)
	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, core.ErrMaterialization, coreErr.Kind)
}

func TestPromote_DropsThenRenames(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	mock.ExpectExec(`DROP TABLE IF EXISTS "core"."orders"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE "core"."orders___audit" RENAME TO "orders"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := w.Promote(context.Background(), core.NewTableID([]string{"core"}, "orders"), core.EnvDev, "alice")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPromote_DropFailureStopsBeforeRename(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnError(assert.AnError)

	err := w.Promote(context.Background(), core.NewTableID([]string{"core"}, "orders"), core.EnvDev, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop prior production table")
}

func TestQueryRows_ReturnsColumnKeyedMaps(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	mock.ExpectQuery("SELECT id, name FROM").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "alice").AddRow(2, "bob"),
	)

	rows, err := w.QueryRows(context.Background(), "SELECT id, name FROM core.users", 100)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, "alice", rows[0]["name"])
}

func TestQueryRows_RespectsLimit(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	mock.ExpectQuery("SELECT id FROM").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3),
	)

	rows, err := w.QueryRows(context.Background(), "SELECT id FROM core.users", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDrop_DelegatesToAdapterDropTable(t *testing.T) {
	fa, mock := newFakeAdapter(t, core.DuckDBDialect)
	w := &SQLWarehouse{Type: "duckdb", Adapter: fa}

	mock.ExpectExec(`DROP TABLE IF EXISTS "core"."orders___audit"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := w.Drop(context.Background(), core.NewTableID([]string{"core"}, "orders"), true, core.EnvDev, "alice")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
