// Package duckdb implements the warehouse Adapter for DuckDB, MotherDuck
// and DuckLake — three targets that share DuckDB's SQL surface and are
// distinguished only by how the DSN is built.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/carbonfact/lea/pkg/adapter"
	"github.com/carbonfact/lea/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" database/sql driver
)

// Adapter implements adapter.Adapter for DuckDB-family targets.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a DuckDB adapter.
func New() *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{Dial: core.DuckDBDialect}}
}

// Connect opens the DuckDB database file (or MotherDuck/DuckLake DSN). An
// empty path opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := dsnFor(cfg)

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("duckdb: open failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("duckdb: ping failed: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// dsnFor builds the connection string for the three DuckDB-family types.
func dsnFor(cfg adapter.Config) string {
	switch cfg.Type {
	case "motherduck":
		if token := cfg.Options["token"]; token != "" {
			return fmt.Sprintf("md:%s?motherduck_token=%s", cfg.Database, token)
		}
		return fmt.Sprintf("md:%s", cfg.Database)
	case "ducklake":
		// DuckLake catalogs are ATTACHed post-connect by the warehouse
		// layer; the physical connection underneath is a plain (or
		// in-memory) DuckDB file.
		if cfg.Path == "" {
			return ":memory:"
		}
		return cfg.Path
	default: // duckdb
		if cfg.Path == "" {
			return ":memory:"
		}
		if abs, err := filepath.Abs(cfg.Path); err == nil {
			return abs
		}
		return cfg.Path
	}
}

var _ adapter.Adapter = (*Adapter)(nil)
