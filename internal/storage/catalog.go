package storage

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/san-kum/cablesim/internal/sweep"
)

// Catalog indexes sweep outcomes in a SQLite database so sweeps can be
// compared without re-reading their traces.
type Catalog struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

type SweepRecord struct {
	ID        string
	Model     string
	CreatedAt time.Time
	Points    int
	Failed    int
}

// PointRecord is one trace of one sweep point.
type PointRecord struct {
	Index  int
	Amp    float64
	Nseg   int
	Label  string
	Peak   float64 // NaN when nothing was recorded
	Spikes int
	Error  string
}

func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

func (c *Catalog) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return errors.New("catalog path is required")
	}
	if c.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", c.path)
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

	c.db = db
	return nil
}

// SaveSweep stores every outcome under a new sweep id and returns it.
func (c *Catalog) SaveSweep(ctx context.Context, model string, outcomes []sweep.Outcome) (string, error) {
	db, err := c.getDB()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps (id, model, created_at, points, failed)
		VALUES (?, ?, ?, ?, ?)
	`, id, model, time.Now().UTC().Format(time.RFC3339Nano), len(outcomes), failed)
	if err != nil {
		return "", err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (sweep_id, idx, amp, nseg, label, peak, spikes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		labels := make([]string, 0, len(o.Peak))
		for label := range o.Peak {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		if len(labels) == 0 {
			// build failures still leave a row
			labels = append(labels, "")
		}
		for _, label := range labels {
			var peak any
			if p, ok := o.Peak[label]; ok && !math.IsNaN(p) {
				peak = p
			}
			if _, err := stmt.ExecContext(ctx, id, o.Index, o.Amp, o.Nseg, label, peak, o.Spikes[label], errText); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Sweeps lists stored sweeps, newest first.
func (c *Catalog) Sweeps(ctx context.Context) ([]SweepRecord, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, model, created_at, points, failed FROM sweeps ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SweepRecord
	for rows.Next() {
		var rec SweepRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.Model, &created, &rec.Points, &rec.Failed); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Points returns the rows of one sweep in grid order.
func (c *Catalog) Points(ctx context.Context, sweepID string) ([]PointRecord, bool, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, false, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sweeps WHERE id = ?`, sweepID).Scan(&n); err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT idx, amp, nseg, label, peak, spikes, error
		FROM points WHERE sweep_id = ? ORDER BY idx, label
	`, sweepID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []PointRecord
	for rows.Next() {
		var rec PointRecord
		var peak sql.NullFloat64
		if err := rows.Scan(&rec.Index, &rec.Amp, &rec.Nseg, &rec.Label, &peak, &rec.Spikes, &rec.Error); err != nil {
			return nil, false, err
		}
		rec.Peak = math.NaN()
		if peak.Valid {
			rec.Peak = peak.Float64
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Catalog) getDB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.db == nil {
		return nil, errors.New("catalog is not initialized")
	}
	return c.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sweeps (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			created_at TEXT NOT NULL,
			points INTEGER NOT NULL,
			failed INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS points (
			sweep_id TEXT NOT NULL REFERENCES sweeps(id),
			idx INTEGER NOT NULL,
			amp REAL NOT NULL,
			nseg INTEGER NOT NULL,
			label TEXT NOT NULL,
			peak REAL,
			spikes INTEGER NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (sweep_id, idx, label)
		);
	`)
	return err
}
