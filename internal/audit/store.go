package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-based audit trail storage.
type Store struct {
	db *sql.DB
}

// StoreConfig configures the audit store.
type StoreConfig struct {
	// Path is the SQLite database file path
	Path string
}

// NewStore creates a new audit store.
func NewStore(cfg StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The store is read by CLI commands while consolidation writes,
	// so WAL mode is required.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations. Timestamps are stored as Unix
// nanoseconds so they round-trip without driver-specific formats.
func (s *Store) migrate() error {
	migrations := []string{
		// Consolidation and forget passes
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			cause TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			examined INTEGER NOT NULL,
			promoted INTEGER NOT NULL,
			forgotten INTEGER NOT NULL,
			error TEXT
		)`,

		// Destructive admin operations
		`CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT,
			at INTEGER NOT NULL
		)`,

		// Indexes for common queries
		`CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_agent ON actions(agent_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// RecordRun saves a consolidation pass.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	result, err := s.db.ExecContext(ctx, `INSERT INTO runs (
		agent_id, cause, started_at, duration_ns, examined, promoted, forgotten, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.AgentID, run.Trigger, run.StartedAt.UnixNano(), int64(run.Duration),
		run.Examined, run.Promoted, run.Forgotten, run.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	id, _ := result.LastInsertId()
	run.ID = id

	return nil
}

// RecordAction saves a destructive admin operation.
func (s *Store) RecordAction(ctx context.Context, act *Action) error {
	result, err := s.db.ExecContext(ctx, `INSERT INTO actions (
		agent_id, action, detail, at
	) VALUES (?, ?, ?, ?)`,
		act.AgentID, act.Action, act.Detail, act.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}

	id, _ := result.LastInsertId()
	act.ID = id

	return nil
}

// RecentRuns returns the newest passes first. An empty agent matches
// all agents.
func (s *Store) RecentRuns(ctx context.Context, agentID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, agent_id, cause, started_at, duration_ns,
		examined, promoted, forgotten, error FROM runs`
	args := []interface{}{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		var started, duration int64
		var errMsg sql.NullString

		if err := rows.Scan(
			&r.ID, &r.AgentID, &r.Trigger, &started, &duration,
			&r.Examined, &r.Promoted, &r.Forgotten, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r.StartedAt = time.Unix(0, started).UTC()
		r.Duration = time.Duration(duration)
		if errMsg.Valid {
			r.Error = errMsg.String
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Actions returns the newest admin operations first. An empty agent
// matches all agents.
func (s *Store) Actions(ctx context.Context, agentID string, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, agent_id, action, detail, at FROM actions`
	args := []interface{}{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	acts := make([]Action, 0)
	for rows.Next() {
		var a Action
		var at int64
		var detail sql.NullString

		if err := rows.Scan(&a.ID, &a.AgentID, &a.Action, &detail, &at); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		a.At = time.Unix(0, at).UTC()
		if detail.Valid {
			a.Detail = detail.String
		}

		acts = append(acts, a)
	}

	return acts, rows.Err()
}

// GetStats returns aggregate statistics over every recorded pass.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var total int64
	var examined, promoted, forgotten, lastStarted sql.NullInt64

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(examined), SUM(promoted), SUM(forgotten), MAX(started_at)
		FROM runs
	`).Scan(&total, &examined, &promoted, &forgotten, &lastStarted); err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	byTrigger := make(map[string]int64)
	rows, err := s.db.QueryContext(ctx, `SELECT cause, COUNT(*) FROM runs GROUP BY cause`)
	if err != nil {
		return nil, fmt.Errorf("querying trigger breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cause string
		var count int64
		if err := rows.Scan(&cause, &count); err == nil {
			byTrigger[cause] = count
		}
	}

	stats := &Stats{
		TotalRuns:      total,
		TotalExamined:  examined.Int64,
		TotalPromoted:  promoted.Int64,
		TotalForgotten: forgotten.Int64,
		ByTrigger:      byTrigger,
	}
	if lastStarted.Valid {
		stats.LastRunAt = time.Unix(0, lastStarted.Int64).UTC()
	}
	return stats, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
