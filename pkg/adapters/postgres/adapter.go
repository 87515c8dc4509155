// Package postgres implements the warehouse Adapter for PostgreSQL, used
// as a stand-in for the BigQuery target in environments (like this
// exercise's test suite) without live BigQuery access — it exercises the
// same schema-qualified-table, promotion-by-rename semantics.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/carbonfact/lea/pkg/adapter"
	"github.com/carbonfact/lea/pkg/core"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Adapter implements adapter.Adapter for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a Postgres adapter.
func New() *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{Dial: core.PostgresDialect}}
}

// Connect opens a PostgreSQL connection.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildDSN(cfg)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("postgres: open failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("postgres: ping failed: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

func buildDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

var _ adapter.Adapter = (*Adapter)(nil)
