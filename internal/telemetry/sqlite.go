//go:build sqlite

package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cwbudde/goeda/internal/engine"
)

// SQLiteSink records runs and their iteration history in a SQLite database.
type SQLiteSink struct {
	path string
	mu   sync.Mutex
	db   *sql.DB
}

// OpenSQLiteSink opens (or creates) the database at path.
func OpenSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLiteSink{path: path, db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			algorithm TEXT NOT NULL,
			status TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			evaluations INTEGER NOT NULL,
			best REAL,
			message TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS iterations (
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			evaluations INTEGER NOT NULL,
			best REAL,
			mean REAL,
			std REAL,
			restarts INTEGER NOT NULL,
			diagnostics TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, iteration)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			payload TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create sqlite tables: %w", err)
		}
	}
	return nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteSink) Publish(e engine.Event) {
	if err := s.record(context.Background(), e); err != nil {
		slog.Warn("Failed to record event in sqlite", "run_id", e.RunID, "type", e.Type, "error", err)
	}
}

func (s *SQLiteSink) record(ctx context.Context, e engine.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("sqlite sink is closed")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ts := stamp(e.Timestamp)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (run_id, type, iteration, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.RunID, string(e.Type), e.Iteration, string(payload), ts); err != nil {
		return err
	}

	switch e.Type {
	case engine.EventRunStarted, engine.EventRunResumed:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, algorithm, status, iteration, evaluations, started_at, updated_at)
			VALUES (?, ?, 'running', ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				status = 'running',
				iteration = excluded.iteration,
				evaluations = excluded.evaluations,
				updated_at = excluded.updated_at`,
			e.RunID, e.AlgorithmID, e.Iteration, e.Evaluations, ts, ts)
	case engine.EventIterationCompleted:
		diag, derr := json.Marshal(finiteDiagnostics(e.Diagnostics))
		if derr != nil {
			return derr
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO iterations (run_id, iteration, evaluations, best, mean, std, restarts, diagnostics, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, iteration) DO UPDATE SET
				evaluations = excluded.evaluations,
				best = excluded.best,
				mean = excluded.mean,
				std = excluded.std,
				restarts = excluded.restarts,
				diagnostics = excluded.diagnostics,
				recorded_at = excluded.recorded_at`,
			e.RunID, e.Iteration, e.Evaluations, nullFloat(e.Best), nullFloat(e.Mean), nullFloat(e.Std),
			e.Restarts, string(diag), ts); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE runs SET iteration = ?, evaluations = ?, best = ?, updated_at = ? WHERE run_id = ?`,
			e.Iteration, e.Evaluations, nullFloat(e.Best), ts, e.RunID)
	case engine.EventRunCompleted, engine.EventRunFailed:
		status := "completed"
		if e.Type == engine.EventRunFailed {
			status = "failed"
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, iteration = ?, evaluations = ?, message = ?, updated_at = ? WHERE run_id = ?`,
			status, e.Iteration, e.Evaluations, e.Message, ts, e.RunID)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func finiteDiagnostics(d map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(d))
	for k, v := range d {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// RunRow is one row of the runs table.
type RunRow struct {
	RunID       string
	AlgorithmID string
	Status      string
	Iteration   int
	Evaluations int64
	Best        sql.NullFloat64
	Message     string
}

// Run returns the summary row of runID.
func (s *SQLiteSink) Run(ctx context.Context, runID string) (RunRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var r RunRow
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, algorithm, status, iteration, evaluations, best, message FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.AlgorithmID, &r.Status, &r.Iteration, &r.Evaluations, &r.Best, &r.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRow{}, fmt.Errorf("run %q not recorded", runID)
	}
	return r, err
}

// BestHistory returns the best fitness per iteration of runID in order.
// Non-finite values are reported as NaN.
func (s *SQLiteSink) BestHistory(ctx context.Context, runID string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT best FROM iterations WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			out = append(out, v.Float64)
		} else {
			out = append(out, math.NaN())
		}
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
