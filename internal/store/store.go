// Package store persists history samples. Each backend is an append-only
// record stream that can be pruned by age.
package store

import (
	"context"
	"fmt"

	"watchpost/internal/models"
)

// SampleStore is the durable side of the history store.
type SampleStore interface {
	// Append adds one sample to the end of the stream.
	Append(ctx context.Context, sample models.HistorySample) error
	// Since returns samples with TimestampMs >= fromMs in append order.
	Since(ctx context.Context, fromMs int64) ([]models.HistorySample, error)
	// PruneBefore removes samples with TimestampMs < cutoffMs and returns how many were removed.
	PruneBefore(ctx context.Context, cutoffMs int64) (int, error)
	Close() error
}

// Open returns the backend named by kind ("jsonl" or "sqlite") at path.
func Open(kind, path string) (SampleStore, error) {
	switch kind {
	case "", "jsonl":
		return NewFileStore(path)
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", kind)
	}
}
