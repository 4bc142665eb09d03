package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchpost/internal/models"
)

func backends(t *testing.T) map[string]SampleStore {
	t.Helper()
	dir := t.TempDir()

	fs, err := Open("jsonl", filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)
	sq, err := Open("sqlite", filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = fs.Close()
		_ = sq.Close()
	})
	return map[string]SampleStore{"jsonl": fs, "sqlite": sq}
}

func TestSampleStore_AppendSincePrune(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := s.Since(ctx, 0)
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)

			for _, ts := range []int64{1000, 2000, 3000} {
				require.NoError(t, s.Append(ctx, models.HistorySample{TimestampMs: ts, CPUPercent: float64(ts) / 100}))
			}

			got, err := s.Since(ctx, 2000)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, int64(2000), got[0].TimestampMs)
			assert.Equal(t, 30.0, got[1].CPUPercent)

			removed, err := s.PruneBefore(ctx, 2500)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			got, err = s.Since(ctx, 0)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, int64(3000), got[0].TimestampMs)

			removed, err = s.PruneBefore(ctx, 2500)
			require.NoError(t, err)
			assert.Zero(t, removed)
		})
	}
}

func TestFileStore_SkipsTornLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := `{"ts":1000,"cpu":10}
{"ts":2000,"cpu":
{"ts":3000,"cpu":30}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := s.Since(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3000), got[1].TimestampMs)
}

func TestFileStore_AppendAfterTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"ts\":1000,\"cpu\":10}\n{\"ts\":2000,\"cp"), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, models.HistorySample{TimestampMs: 3000}))
	require.NoError(t, s.Append(ctx, models.HistorySample{TimestampMs: 4000}))

	got, err := s.Since(ctx, 0)
	require.NoError(t, err)
	ts := make([]int64, 0, len(got))
	for _, sample := range got {
		ts = append(ts, sample.TimestampMs)
	}
	assert.Equal(t, []int64{1000, 3000, 4000}, ts)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}
