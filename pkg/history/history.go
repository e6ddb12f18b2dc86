// Package history records generation attempts in SQLite for reporting.
// The log is observational: the JSON budget ledger stays authoritative
// for spending decisions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/appfactory-ai/assetgen/pkg/models"
)

// Tracker records and queries generation history.
type Tracker interface {
	// Record stores one generation record.
	Record(ctx context.Context, rec models.GenerationRecord) error
	// Recent returns the most recent records, newest first.
	Recent(ctx context.Context, limit int) ([]models.GenerationRecord, error)
	// MonthlySummary aggregates cost per category for one YYYY-MM month.
	MonthlySummary(ctx context.Context, month string) ([]models.GenerationSummary, error)
	// TotalCost returns the summed cost of records since a given time.
	TotalCost(ctx context.Context, since time.Time) (float64, error)
	// Prune deletes records older than the retention period and returns
	// how many were removed.
	Prune(ctx context.Context, retentionDays int) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS generation_records (
	id TEXT PRIMARY KEY,
	cache_key TEXT NOT NULL,
	category TEXT NOT NULL,
	prompt TEXT NOT NULL,
	outcome TEXT NOT NULL,
	method TEXT NOT NULL,
	cost REAL NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generation_time ON generation_records(created_at);
CREATE INDEX IF NOT EXISTS idx_generation_category ON generation_records(category, created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores one generation record. A missing ID is filled in.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.GenerationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO generation_records (id, cache_key, category, prompt, outcome, method, cost, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CacheKey, rec.Category, rec.Prompt, rec.Outcome, rec.Method, rec.Cost, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.GenerationRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, cache_key, category, prompt, outcome, method, cost, latency_ms, created_at
		 FROM generation_records ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var r models.GenerationRecord
		if err := rows.Scan(&r.ID, &r.CacheKey, &r.Category, &r.Prompt, &r.Outcome, &r.Method, &r.Cost, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// MonthlySummary aggregates generations and cost per category for month.
func (t *SQLiteTracker) MonthlySummary(ctx context.Context, month string) ([]models.GenerationSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT category, COUNT(*), COALESCE(SUM(cost), 0)
		 FROM generation_records
		 WHERE strftime('%Y-%m', created_at) = ?
		 GROUP BY category ORDER BY SUM(cost) DESC`, month)
	if err != nil {
		return nil, fmt.Errorf("query monthly summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.GenerationSummary
	for rows.Next() {
		s := models.GenerationSummary{Month: month}
		if err := rows.Scan(&s.Category, &s.Generations, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// TotalCost returns the summed cost of records since a given time.
func (t *SQLiteTracker) TotalCost(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM generation_records WHERE created_at >= ?`, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query total cost: %w", err)
	}
	return total, nil
}

// Prune deletes records older than the retention period.
func (t *SQLiteTracker) Prune(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := t.db.ExecContext(ctx,
		`DELETE FROM generation_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
