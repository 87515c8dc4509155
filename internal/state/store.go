// Package state is lea's local bookkeeping store: run history and the
// audit-checkpoint ledger the executor's skip logic consults, backed by an
// embedded SQLite database migrated with goose.
package state

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"github.com/carbonfact/lea/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements core.Store on top of modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating and migrating if needed) the bookkeeping database at
// path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("state: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("state: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateRun(env string) (*core.Run, error) {
	run := &core.Run{
		ID:          uuid.NewString(),
		Environment: env,
		Status:      core.RunStatusRunning,
		StartedAt:   timeNow(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Environment, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("state: create run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(runID string, status core.RunStatus, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), timeNow(), errMsg, runID,
	)
	return err
}

func (s *SQLiteStore) GetRun(runID string) (*core.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error FROM runs WHERE id = ?`,
		runID,
	)
	var run core.Run
	var completedAt sql.NullTime
	var status string
	if err := row.Scan(&run.ID, &run.Environment, &status, &run.StartedAt, &completedAt, &run.Error); err != nil {
		return nil, fmt.Errorf("state: get run %s: %w", runID, err)
	}
	run.Status = core.RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

func (s *SQLiteStore) RecordNodeRun(nr *core.NodeRun) error {
	if nr.ID == "" {
		nr.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO node_runs (id, run_id, node_id, status, rows_affected, started_at, completed_at, error, execution_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nr.ID, nr.RunID, nr.NodeID, string(nr.Status), nr.RowsAffected, nr.StartedAt, nr.CompletedAt, nr.Error, nr.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("state: record node run %s: %w", nr.NodeID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateNodeRun(nr *core.NodeRun) error {
	_, err := s.db.Exec(
		`UPDATE node_runs SET status = ?, rows_affected = ?, completed_at = ?, error = ?, execution_ms = ? WHERE id = ?`,
		string(nr.Status), nr.RowsAffected, nr.CompletedAt, nr.Error, nr.ExecutionMS, nr.ID,
	)
	if err != nil {
		return fmt.Errorf("state: update node run %s: %w", nr.NodeID, err)
	}
	return nil
}

func (s *SQLiteStore) GetNodeRunsForRun(runID string) ([]*core.NodeRun, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, node_id, status, rows_affected, started_at, completed_at, error, execution_ms
		 FROM node_runs WHERE run_id = ? ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*core.NodeRun
	for rows.Next() {
		nr := &core.NodeRun{}
		var status string
		var completedAt sql.NullTime
		if err := rows.Scan(&nr.ID, &nr.RunID, &nr.NodeID, &status, &nr.RowsAffected, &nr.StartedAt, &completedAt, &nr.Error, &nr.ExecutionMS); err != nil {
			return nil, err
		}
		nr.Status = core.NodeStatus(status)
		if completedAt.Valid {
			nr.CompletedAt = &completedAt.Time
		}
		out = append(out, nr)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCheckpoint(nodeID string) (*core.AuditCheckpoint, error) {
	row := s.db.QueryRow(
		`SELECT node_id, materialized_at, content_hash FROM audit_checkpoints WHERE node_id = ?`,
		nodeID,
	)
	cp := &core.AuditCheckpoint{}
	if err := row.Scan(&cp.NodeID, &cp.MaterializedAt, &cp.ContentHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return cp, nil
}

func (s *SQLiteStore) SetCheckpoint(cp *core.AuditCheckpoint) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_checkpoints (node_id, materialized_at, content_hash) VALUES (?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET materialized_at = excluded.materialized_at, content_hash = excluded.content_hash`,
		cp.NodeID, cp.MaterializedAt, cp.ContentHash,
	)
	return err
}

func (s *SQLiteStore) DeleteCheckpoint(nodeID string) error {
	_, err := s.db.Exec(`DELETE FROM audit_checkpoints WHERE node_id = ?`, nodeID)
	return err
}

func (s *SQLiteStore) ListCheckpoints() ([]*core.AuditCheckpoint, error) {
	rows, err := s.db.Query(`SELECT node_id, materialized_at, content_hash FROM audit_checkpoints`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*core.AuditCheckpoint
	for rows.Next() {
		cp := &core.AuditCheckpoint{}
		if err := rows.Scan(&cp.NodeID, &cp.MaterializedAt, &cp.ContentHash); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

var _ core.Store = (*SQLiteStore)(nil)

func timeNow() time.Time { return time.Now() }
