package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"watchpost/internal/models"
)

// SQLiteStore keeps samples in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history_samples (
			ts_ms INTEGER NOT NULL,
			cpu REAL NOT NULL,
			ram REAL NOT NULL,
			disk REAL NOT NULL,
			net_up REAL NOT NULL,
			net_down REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_samples_ts ON history_samples(ts_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts one sample.
func (s *SQLiteStore) Append(ctx context.Context, sample models.HistorySample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history_samples(ts_ms, cpu, ram, disk, net_up, net_down) VALUES (?, ?, ?, ?, ?, ?)`,
		sample.TimestampMs, sample.CPUPercent, sample.RAMPercent, sample.DiskPercent,
		sample.NetUpBytesPerSec, sample.NetDownBytesPerSec,
	)
	return err
}

// Since returns samples at or after fromMs in insertion order.
func (s *SQLiteStore) Since(ctx context.Context, fromMs int64) ([]models.HistorySample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_ms, cpu, ram, disk, net_up, net_down FROM history_samples WHERE ts_ms >= ? ORDER BY rowid`,
		fromMs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.HistorySample{}
	for rows.Next() {
		var h models.HistorySample
		if err := rows.Scan(&h.TimestampMs, &h.CPUPercent, &h.RAMPercent, &h.DiskPercent, &h.NetUpBytesPerSec, &h.NetDownBytesPerSec); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PruneBefore deletes samples older than cutoffMs and returns how many went.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoffMs int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history_samples WHERE ts_ms < ?`, cutoffMs)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
