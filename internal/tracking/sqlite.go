package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    experiment TEXT NOT NULL,
    name TEXT NOT NULL,
    parent_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    ended_at DATETIME
);
CREATE TABLE IF NOT EXISTS params (
    run_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (run_id, key)
);
CREATE TABLE IF NOT EXISTS metrics (
    run_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (run_id, key)
);
CREATE TABLE IF NOT EXISTS artifacts (
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    uri TEXT NOT NULL,
    PRIMARY KEY (run_id, name)
);
CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment, seq);
`

// SQLiteRecorder stores runs in a local SQLite file.
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create tracking dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open tracking db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tracking schema: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

func (s *SQLiteRecorder) StartExperiment(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO experiments (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC())
	return err
}

func (s *SQLiteRecorder) StartRun(ctx context.Context, spec RunSpec) (string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM experiments WHERE name = ?`, spec.Experiment).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrExperimentNotFound
	}
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, experiment, name, parent_id, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, spec.Experiment, spec.Name, spec.ParentID, StatusRunning, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteRecorder) LogParams(ctx context.Context, runID string, params map[string]string) error {
	return s.inRunTx(ctx, runID, func(tx *sql.Tx) error {
		for k, v := range params {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO params (run_id, key, value) VALUES (?, ?, ?)`, runID, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteRecorder) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	return s.inRunTx(ctx, runID, func(tx *sql.Tx) error {
		for k, v := range metrics {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO metrics (run_id, key, value) VALUES (?, ?, ?)`, runID, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteRecorder) LogArtifact(ctx context.Context, runID, name, uri string) error {
	return s.inRunTx(ctx, runID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO artifacts (run_id, name, uri) VALUES (?, ?, ?)`, runID, name, uri)
		return err
	})
}

func (s *SQLiteRecorder) EndRun(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ? WHERE id = ?`, status, time.Now().UTC(), runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *SQLiteRecorder) ListRuns(ctx context.Context, experiment string) ([]Run, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM experiments WHERE name = ?`, experiment).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExperimentNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, name, parent_id, status, started_at, ended_at
		 FROM runs WHERE experiment = ? ORDER BY seq`, experiment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	index := make(map[string]int)
	for rows.Next() {
		run := newRun(RunSpec{Experiment: experiment}, "", 0, time.Time{})
		var endedAt sql.NullTime
		if err := rows.Scan(&run.Seq, &run.ID, &run.Name, &run.ParentID, &run.Status, &run.StartedAt, &endedAt); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			run.EndedAt = endedAt.Time
		}
		index[run.ID] = len(runs)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.scanPairs(ctx, experiment, "params", func(runID, key, value string) {
		if i, ok := index[runID]; ok {
			runs[i].Params[key] = value
		}
	}); err != nil {
		return nil, err
	}

	if err := s.scanMetrics(ctx, experiment, runs, index); err != nil {
		return nil, err
	}

	if err := s.scanPairs(ctx, experiment, "artifacts", func(runID, key, value string) {
		if i, ok := index[runID]; ok {
			runs[i].Artifacts[key] = value
		}
	}); err != nil {
		return nil, err
	}

	return runs, nil
}

func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}

// scanPairs walks the text key/value table for every run of an experiment.
func (s *SQLiteRecorder) scanPairs(ctx context.Context, experiment, table string, fn func(runID, key, value string)) error {
	keyCol, valueCol := "key", "value"
	if table == "artifacts" {
		keyCol, valueCol = "name", "uri"
	}

	query := fmt.Sprintf(
		`SELECT t.run_id, t.%s, t.%s FROM %s t JOIN runs r ON r.id = t.run_id WHERE r.experiment = ?`,
		keyCol, valueCol, table)
	rows, err := s.db.QueryContext(ctx, query, experiment)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var runID, key string
		var value string
		if err := rows.Scan(&runID, &key, &value); err != nil {
			return err
		}
		fn(runID, key, value)
	}
	return rows.Err()
}

func (s *SQLiteRecorder) scanMetrics(ctx context.Context, experiment string, runs []Run, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.run_id, m.key, m.value FROM metrics m JOIN runs r ON r.id = m.run_id WHERE r.experiment = ?`,
		experiment)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var runID, key string
		var value float64
		if err := rows.Scan(&runID, &key, &value); err != nil {
			return err
		}
		if i, ok := index[runID]; ok {
			runs[i].Metrics[key] = value
		}
	}
	return rows.Err()
}

func (s *SQLiteRecorder) inRunTx(ctx context.Context, runID string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return ErrRunNotFound
	}
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
