package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/carbonfact/lea/pkg/core"
)

// BaseSQLAdapter provides a database/sql-backed implementation of the
// generic pieces of Adapter (Close/Exec/Query/rename/drop/namespace),
// leaving Connect and Dialect to the concrete vendor adapter.
type BaseSQLAdapter struct {
	DB      *sql.DB
	Cfg     Config
	Dial    core.SQLDialect
}

func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		return b.DB.Close()
	}
	return nil
}

func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlText string) error {
	if b.DB == nil {
		return fmt.Errorf("adapter: not connected")
	}
	// Scripts may contain several statements (e.g. DECLARE ... ; SELECT ...);
	// run them in file order within one session.
	conn, err := b.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("adapter: exec failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	for _, stmt := range splitStatements(sqlText) {
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adapter: exec failed: %w", err)
		}
	}
	return nil
}

func (b *BaseSQLAdapter) Query(ctx context.Context, sqlText string) (*core.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("adapter: not connected")
	}
	//nolint:rowserrcheck // rows.Err() is the caller's responsibility after iteration
	rows, err := b.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("adapter: query failed: %w", err)
	}
	return &core.Rows{Rows: rows}, nil
}

func (b *BaseSQLAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	schema, name := SplitQualifiedName(table, b.Dial)
	query := fmt.Sprintf(
		"SELECT 1 FROM information_schema.tables WHERE table_schema = %s AND table_name = %s",
		b.Dial.FormatPlaceholder(1), b.Dial.FormatPlaceholder(2),
	)
	row := b.DB.QueryRowContext(ctx, query, schema, name)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("adapter: table existence check failed: %w", err)
	}
	return true, nil
}

func (b *BaseSQLAdapter) DropTable(ctx context.Context, table string) error {
	return b.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
}

// RenameTable renames src to dst. Both are schema-qualified, but standard
// SQL's ALTER TABLE ... RENAME TO only accepts a bare target name within
// the source's own schema, so the schema qualifier on dst is dropped.
// Callers only rename within a single namespace (audit -> production table
// of the same script), so src and dst always share a schema.
func (b *BaseSQLAdapter) RenameTable(ctx context.Context, src, dst string) error {
	_, name := splitLastIdentifier(dst)
	return b.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", src, name))
}

// splitLastIdentifier splits a qualified reference on its final "." even
// when both segments are quoted, since a quoted identifier never itself
// contains a literal dot.
func splitLastIdentifier(qualified string) (schema, name string) {
	idx := strings.LastIndex(qualified, ".")
	if idx < 0 {
		return "", qualified
	}
	return qualified[:idx], qualified[idx+1:]
}

func (b *BaseSQLAdapter) CreateNamespace(ctx context.Context, name string) error {
	return b.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", name))
}

func (b *BaseSQLAdapter) DropNamespace(ctx context.Context, name string) error {
	return b.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", name))
}

func (b *BaseSQLAdapter) Dialect() core.SQLDialect { return b.Dial }

// SplitQualifiedName splits "schema.table" into its parts, defaulting the
// schema to the dialect's default when unqualified.
func SplitQualifiedName(table string, d core.SQLDialect) (schema, name string) {
	if parts := strings.SplitN(table, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return d.DefaultSchema, table
}

// splitStatements breaks a script into top-level statements on ";"
// boundaries. It does not attempt to parse string/quote-embedded
// semicolons — scripts are project-authored SQL, not adversarial input.
func splitStatements(sqlText string) []string {
	raw := strings.Split(sqlText, ";")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
