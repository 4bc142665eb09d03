package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"watchpost/internal/apperrors"
	"watchpost/internal/models"
	"watchpost/internal/store"
	"watchpost/internal/telemetry"
)

// DefaultRetention is how long samples are kept
const DefaultRetention = 30 * 24 * time.Hour

// MaxWindowHours is the largest query window accepted, one year.
const MaxWindowHours = 24 * 365

// HistoryOptions configures a HistoryStore
type HistoryOptions struct {
	Retention time.Duration
}

// HistoryStore keeps periodic samples in an append-only backend and answers
// bucketed range queries over them.
type HistoryStore struct {
	mu        sync.Mutex // serializes append and prune
	backend   store.SampleStore
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewHistoryStore creates a store over backend
func NewHistoryStore(backend store.SampleStore, opts HistoryOptions, logger zerolog.Logger) *HistoryStore {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &HistoryStore{
		backend:   backend,
		retention: opts.Retention,
		logger:    logger.With().Str("component", "history").Logger(),
		now:       time.Now,
	}
}

// AppendSample persists sample and then drops everything older than the
// retention window.
func (h *HistoryStore) AppendSample(ctx context.Context, sample models.HistorySample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.backend.Append(ctx, sample); err != nil {
		telemetry.HistoryWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to append sample: %w", err)
	}
	telemetry.HistoryWrites.WithLabelValues("ok").Inc()

	cutoff := h.now().Add(-h.retention).UnixMilli()
	removed, err := h.backend.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	if removed > 0 {
		telemetry.HistoryPruned.Add(float64(removed))
		h.logger.Debug().Int("removed", removed).Msg("pruned history")
	}
	return nil
}

// BucketWidth returns the aggregation width used for a window of the given size.
func BucketWidth(windowHours int) time.Duration {
	switch {
	case windowHours <= 24:
		return 5 * time.Minute
	case windowHours <= 168:
		return time.Hour
	default:
		return 4 * time.Hour
	}
}

type bucketSum struct {
	sum   float64
	count int
}

// Query returns the average of metric per bucket over the last windowHours,
// oldest first. Buckets are aligned to the Unix epoch and reported at their
// midpoint. An empty store yields an empty slice.
func (h *HistoryStore) Query(ctx context.Context, metric string, windowHours int) ([]models.HistoryPoint, error) {
	if _, ok := (models.HistorySample{}).Value(metric); !ok {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown metric %q", metric),
			map[string]any{"metric": metric, "allowed": models.HistoryMetrics})
	}
	if windowHours <= 0 || windowHours > MaxWindowHours {
		return nil, apperrors.Invalid("hours must be between 1 and %d, got %d", MaxWindowHours, windowHours)
	}

	from := h.now().Add(-time.Duration(windowHours) * time.Hour).UnixMilli()
	samples, err := h.backend.Since(ctx, from)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to read history", err)
	}

	width := BucketWidth(windowHours).Milliseconds()
	buckets := make(map[int64]*bucketSum)
	for _, s := range samples {
		v, _ := s.Value(metric)
		start := s.TimestampMs - s.TimestampMs%width
		b, ok := buckets[start]
		if !ok {
			b = &bucketSum{}
			buckets[start] = b
		}
		b.sum += v
		b.count++
	}

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	points := make([]models.HistoryPoint, 0, len(starts))
	for _, start := range starts {
		b := buckets[start]
		points = append(points, models.HistoryPoint{
			Timestamp: start + width/2,
			Value:     round2(b.sum / float64(b.count)),
		})
	}
	return points, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// HistoryCollector samples the snapshot bus into a HistoryStore.
type HistoryCollector struct {
	src      SnapshotSource
	history  *HistoryStore
	interval time.Duration
	logger   zerolog.Logger

	prev *models.MetricSnapshot
}

// NewHistoryCollector creates a collector that samples every interval
func NewHistoryCollector(src SnapshotSource, history *HistoryStore, interval time.Duration, logger zerolog.Logger) *HistoryCollector {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &HistoryCollector{
		src:      src,
		history:  history,
		interval: interval,
		logger:   logger.With().Str("component", "history-collector").Logger(),
	}
}

// Run samples every interval until ctx is cancelled. A failed write is
// logged and the loop carries on.
func (c *HistoryCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("history collector started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("history collector stopped")
			return
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				c.logger.Error().Err(err).Msg("history sample not stored")
			}
		}
	}
}

// Collect takes one sample from the latest snapshot. It does nothing when
// no snapshot has been published or the latest one was already sampled.
func (c *HistoryCollector) Collect(ctx context.Context) error {
	snap := c.src.Latest()
	if snap == nil || snap == c.prev {
		return nil
	}

	sample := models.HistorySample{
		TimestampMs: snap.CapturedAt.UnixMilli(),
		CPUPercent:  round2(snap.CPUPercent),
		RAMPercent:  round2(snap.RAMPercent),
		DiskPercent: round2(snap.DiskPercent),
	}
	if c.prev != nil {
		elapsed := snap.CapturedAt.Sub(c.prev.CapturedAt).Seconds()
		sample.NetUpBytesPerSec = rate(c.prev.NetBytesSent, snap.NetBytesSent, elapsed)
		sample.NetDownBytesPerSec = rate(c.prev.NetBytesRecv, snap.NetBytesRecv, elapsed)
	}
	c.prev = snap

	return c.history.AppendSample(ctx, sample)
}

// rate is the per-second increase of a byte counter, zero after a counter reset.
func rate(prev, cur uint64, seconds float64) float64 {
	if seconds <= 0 || cur < prev {
		return 0
	}
	return round2(float64(cur-prev) / seconds)
}
