// Package sqlitevec persists run history: the frozen scaling bounds and
// defaults of each training run, its normalized feature rows and the
// recommendations it produced.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"anirec/internal/eval"
	"anirec/internal/features"
)

// ErrNoRun is returned when a run id is unknown.
var ErrNoRun = errors.New("no such run")

// DB wraps a SQLite database holding run history.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		d.SetMaxOpenConns(1)
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
	  id TEXT PRIMARY KEY,
	  created_at INTEGER NOT NULL,
	  username TEXT NOT NULL,
	  train_size INTEGER NOT NULL,
	  eval_size INTEGER NOT NULL,
	  mse REAL NOT NULL,
	  accuracy REAL NOT NULL,
	  final_loss REAL NOT NULL,
	  bounds TEXT NOT NULL,
	  defaults TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE TABLE IF NOT EXISTS feature_rows (
	  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	  split TEXT NOT NULL,
	  idx INTEGER NOT NULL,
	  vector BLOB NOT NULL,
	  meta TEXT,
	  PRIMARY KEY (run_id, split, idx)
	);
	CREATE TABLE IF NOT EXISTS recommendations (
	  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	  source TEXT NOT NULL,
	  position INTEGER NOT NULL,
	  title TEXT NOT NULL,
	  image TEXT,
	  url TEXT,
	  prediction REAL NOT NULL,
	  actual REAL NOT NULL,
	  PRIMARY KEY (run_id, source, position)
	);
	`)
	return err
}

// Run is one persisted training run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Username  string
	TrainSize int
	EvalSize  int
	Report    eval.Report
	FinalLoss float64
	Bounds    features.Bounds
	Defaults  features.Defaults
}

// SaveRun inserts r, assigning a fresh id when r.ID is empty, and returns the id.
func (d *DB) SaveRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	bb, err := json.Marshal(r.Bounds)
	if err != nil {
		return "", err
	}
	dfb, err := json.Marshal(r.Defaults)
	if err != nil {
		return "", err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO runs(id, created_at, username, train_size, eval_size, mse, accuracy, final_loss, bounds, defaults) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.CreatedAt.UnixMilli(), r.Username, r.TrainSize, r.EvalSize, r.Report.MSE, r.Report.Accuracy, r.FinalLoss, string(bb), string(dfb))
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return r.ID, nil
}

// GetRun loads a single run by id.
func (d *DB) GetRun(ctx context.Context, id string) (Run, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT id, created_at, username, train_size, eval_size, mse, accuracy, final_loss, bounds, defaults FROM runs WHERE id=?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNoRun, id)
	}
	return r, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, created_at, username, train_size, eval_size, mse, accuracy, final_loss, bounds, defaults FROM runs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(s scanner) (Run, error) {
	var r Run
	var ms int64
	var bb, dfb string
	if err := s.Scan(&r.ID, &ms, &r.Username, &r.TrainSize, &r.EvalSize, &r.Report.MSE, &r.Report.Accuracy, &r.FinalLoss, &bb, &dfb); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.UnixMilli(ms).UTC()
	r.Report.Total = r.EvalSize
	r.Report.Correct = int(math.Round(r.Report.Accuracy * float64(r.EvalSize)))
	if err := json.Unmarshal([]byte(bb), &r.Bounds); err != nil {
		return Run{}, fmt.Errorf("decode bounds: %w", err)
	}
	if err := json.Unmarshal([]byte(dfb), &r.Defaults); err != nil {
		return Run{}, fmt.Errorf("decode defaults: %w", err)
	}
	return r, nil
}

// PutFeatureRows stores the normalized matrix of one split ("train",
// "eval", ...) with each row's metadata. matrix and meta must be aligned.
func (d *DB) PutFeatureRows(ctx context.Context, runID, split string, matrix [][]float64, meta []features.Metadata) error {
	if len(matrix) != len(meta) {
		return fmt.Errorf("got %d rows but %d metadata entries", len(matrix), len(meta))
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO feature_rows(run_id, split, idx, vector, meta) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, row := range matrix {
		mb, err := json.Marshal(meta[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, split, i, encodeF64(row), string(mb)); err != nil {
			return fmt.Errorf("insert feature row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadFeatureRows returns a stored split in its original order.
func (d *DB) LoadFeatureRows(ctx context.Context, runID, split string) ([][]float64, []features.Metadata, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT vector, COALESCE(meta, '{}') FROM feature_rows WHERE run_id=? AND split=? ORDER BY idx`, runID, split)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var X [][]float64
	var meta []features.Metadata
	for rows.Next() {
		var vb []byte
		var ms string
		if err := rows.Scan(&vb, &ms); err != nil {
			return nil, nil, err
		}
		var m features.Metadata
		if err := json.Unmarshal([]byte(ms), &m); err != nil {
			return nil, nil, fmt.Errorf("decode row meta: %w", err)
		}
		X = append(X, decodeF64(vb))
		meta = append(meta, m)
	}
	return X, meta, rows.Err()
}

// PutRecommendations stores a ranked list under source ("evaluation",
// "Planning", "season:FALL:2023", ...), replacing any previous list for the
// same run and source.
func (d *DB) PutRecommendations(ctx context.Context, runID, source string, recs []eval.Scored) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM recommendations WHERE run_id=? AND source=?`, runID, source); err != nil {
		return err
	}
	for i, r := range recs {
		_, err := tx.ExecContext(ctx, `INSERT INTO recommendations(run_id, source, position, title, image, url, prediction, actual) VALUES(?,?,?,?,?,?,?,?)`,
			runID, source, i, r.Meta.Title, r.Meta.Image, r.Meta.URL, r.Prediction, r.Actual)
		if err != nil {
			return fmt.Errorf("insert recommendation %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadRecommendations returns a stored list in rank order.
func (d *DB) LoadRecommendations(ctx context.Context, runID, source string) ([]eval.Scored, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT title, COALESCE(image, ''), COALESCE(url, ''), prediction, actual FROM recommendations WHERE run_id=? AND source=? ORDER BY position`, runID, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []eval.Scored
	for rows.Next() {
		var s eval.Scored
		if err := rows.Scan(&s.Meta.Title, &s.Meta.Image, &s.Meta.URL, &s.Prediction, &s.Actual); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodeF64(v []float64) []byte {
	b := make([]byte, 8*len(v))
	for i := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v[i]))
	}
	return b
}

func decodeF64(b []byte) []float64 {
	n := len(b) / 8
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v
}
