package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"
)

// SweepDB records parameter sweeps in a SQLite file.
type SweepDB struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

type SweepRecord struct {
	ID        string
	Preset    string
	Metric    string
	CreatedAt time.Time
	Points    []PointRecord
}

type PointRecord struct {
	Index  int
	Params map[string]float64
	Status string
	// Value is NaN when the metric is unavailable.
	Value float64
	RunID string
	Error string
}

func NewSweepDB(path string) *SweepDB {
	return &SweepDB{path: path}
}

func (s *SweepDB) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SweepDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sweeps (
			id TEXT PRIMARY KEY,
			preset TEXT NOT NULL,
			metric TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS points (
			sweep_id TEXT NOT NULL REFERENCES sweeps(id),
			idx INTEGER NOT NULL,
			params TEXT NOT NULL,
			status TEXT NOT NULL,
			value REAL,
			run_id TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (sweep_id, idx)
		);
	`)
	return err
}

func (s *SweepDB) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("sweep database is not initialized")
	}
	return s.db, nil
}

// Save stores a sweep and its points in one transaction. An empty ID is
// filled in and returned.
func (s *SweepDB) Save(ctx context.Context, rec SweepRecord) (string, error) {
	db, err := s.getDB()
	if err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps (id, preset, metric, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Preset, rec.Metric, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", err
	}

	for _, p := range rec.Points {
		params, err := json.Marshal(p.Params)
		if err != nil {
			return "", err
		}
		var value any
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			value = p.Value
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO points (sweep_id, idx, params, status, value, run_id, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, p.Index, string(params), p.Status, value, p.RunID, p.Error)
		if err != nil {
			return "", fmt.Errorf("point %d: %w", p.Index, err)
		}
	}

	return rec.ID, tx.Commit()
}

// Get loads a sweep with its points ordered by index.
func (s *SweepDB) Get(ctx context.Context, id string) (SweepRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return SweepRecord{}, false, err
	}

	rec := SweepRecord{ID: id}
	var created string
	err = db.QueryRowContext(ctx, `SELECT preset, metric, created_at FROM sweeps WHERE id = ?`, id).
		Scan(&rec.Preset, &rec.Metric, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SweepRecord{}, false, nil
		}
		return SweepRecord{}, false, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return SweepRecord{}, false, fmt.Errorf("sweep %s: %w", id, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT idx, params, status, value, run_id, error
		FROM points WHERE sweep_id = ? ORDER BY idx
	`, id)
	if err != nil {
		return SweepRecord{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      PointRecord
			params string
			value  sql.NullFloat64
		)
		if err := rows.Scan(&p.Index, &params, &p.Status, &value, &p.RunID, &p.Error); err != nil {
			return SweepRecord{}, false, err
		}
		if err := json.Unmarshal([]byte(params), &p.Params); err != nil {
			return SweepRecord{}, false, fmt.Errorf("sweep %s point %d: %w", id, p.Index, err)
		}
		p.Value = math.NaN()
		if value.Valid {
			p.Value = value.Float64
		}
		rec.Points = append(rec.Points, p)
	}
	return rec, true, rows.Err()
}

// List returns sweeps without their points, newest first.
func (s *SweepDB) List(ctx context.Context) ([]SweepRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, preset, metric, created_at FROM sweeps ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SweepRecord
	for rows.Next() {
		var rec SweepRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.Preset, &rec.Metric, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
