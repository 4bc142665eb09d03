package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache[V any](t *testing.T, probe ProbeFunc[V], timeout time.Duration) (*RevalidatingCache[V], *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c := NewRevalidatingCache("test", probe, CacheOptions{Timeout: timeout}, zerolog.Nop())
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, clock
}

func waitIdle[V any](t *testing.T, c *RevalidatingCache[V], key string) EntryInfo {
	t.Helper()
	var info EntryInfo
	require.Eventually(t, func() bool {
		var ok bool
		info, ok = c.Info(key)
		return ok && !info.Refreshing
	}, 2*time.Second, 5*time.Millisecond)
	return info
}

func TestRevalidatingCache_GetNeverBlocksOnSlowProbe(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32

	c, _ := newTestCache(t, func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "late", nil
	}, time.Minute)

	start := time.Now()
	got := c.Get("status", time.Second, "placeholder")
	assert.Equal(t, "placeholder", got)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestRevalidatingCache_SingleInFlightProbePerKey(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32

	c, _ := newTestCache(t, func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, -1, c.Get("net", time.Second, -1))
		}()
	}
	wg.Wait()

	close(release)
	info := waitIdle(t, c, "net")
	assert.True(t, info.HasValue)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRevalidatingCache_ServesFreshThenStale(t *testing.T) {
	var calls atomic.Int32
	c, clock := newTestCache(t, func(ctx context.Context, key string) (int, error) {
		return int(calls.Add(1)), nil
	}, time.Second)

	assert.Equal(t, 0, c.Get("k", 10*time.Second, 0))
	waitIdle(t, c, "k")

	// Fresh: no probe.
	clock.Advance(5 * time.Second)
	assert.Equal(t, 1, c.Get("k", 10*time.Second, 0))
	assert.Equal(t, int32(1), calls.Load())

	// Stale: old value returned immediately, refresh in the background.
	clock.Advance(6 * time.Second)
	assert.Equal(t, 1, c.Get("k", 10*time.Second, 0))
	waitIdle(t, c, "k")
	assert.Equal(t, 2, c.Get("k", 10*time.Second, 0))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRevalidatingCache_FailureKeepsStaleValue(t *testing.T) {
	var fail atomic.Bool
	c, clock := newTestCache(t, func(ctx context.Context, key string) (string, error) {
		if fail.Load() {
			return "", errors.New("command exited 1")
		}
		return "good", nil
	}, time.Second)

	c.Get("k", time.Second, "")
	waitIdle(t, c, "k")

	fail.Store(true)
	clock.Advance(2 * time.Second)
	assert.Equal(t, "good", c.Get("k", time.Second, ""))

	info := waitIdle(t, c, "k")
	assert.Equal(t, "command exited 1", info.LastError)
	assert.True(t, info.HasValue)
	assert.Equal(t, "good", c.Get("k", time.Second, ""))
}

func TestRevalidatingCache_NeverSucceededServesPlaceholder(t *testing.T) {
	c, _ := newTestCache(t, func(ctx context.Context, key string) ([]string, error) {
		return nil, errors.New("no docker")
	}, time.Second)

	placeholder := []string{}
	assert.Equal(t, placeholder, c.Get("containers", time.Second, placeholder))
	info := waitIdle(t, c, "containers")
	assert.False(t, info.HasValue)
	assert.Equal(t, placeholder, c.Get("containers", time.Second, placeholder))
}

func TestRevalidatingCache_TimeoutIsFailure(t *testing.T) {
	hang := make(chan struct{})
	var calls, running, maxRunning atomic.Int32

	c, _ := newTestCache(t, func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		<-hang // ignores ctx
		return 1, nil
	}, 20*time.Millisecond)

	assert.Equal(t, 0, c.Get("k", time.Second, 0))
	info := waitIdle(t, c, "k")
	assert.Equal(t, ErrProbeTimeout.Error(), info.LastError)
	assert.False(t, info.HasValue)
	assert.True(t, info.ProbeRunning, "abandoned probe has not returned yet")

	// Reads past the timeout must not start a second probe while the first hangs.
	for i := 0; i < 5; i++ {
		assert.Equal(t, 0, c.Get("k", time.Second, 0))
		time.Sleep(30 * time.Millisecond)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), maxRunning.Load())

	close(hang)
	require.Eventually(t, func() bool {
		info, _ := c.Info("k")
		return !info.ProbeRunning
	}, time.Second, time.Millisecond)
	info, _ = c.Info("k")
	assert.False(t, info.HasValue, "late result of an abandoned probe is dropped")

	// Once the hung probe is back, the next read is the retry path.
	c.Get("k", time.Second, 0)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	waitIdle(t, c, "k")
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestRevalidatingCache_KeysAreIndependent(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	c, _ := newTestCache(t, func(ctx context.Context, key string) (string, error) {
		if key == "slow" {
			<-block
		}
		return key, nil
	}, time.Minute)

	c.Get("slow", time.Second, "")
	c.Get("fast", time.Second, "")
	waitIdle(t, c, "fast")
	assert.Equal(t, "fast", c.Get("fast", time.Second, ""))

	info, ok := c.Info("slow")
	require.True(t, ok)
	assert.True(t, info.Refreshing)
}

func TestRevalidatingCache_Warm(t *testing.T) {
	c, _ := newTestCache(t, func(ctx context.Context, key string) (string, error) {
		if key == "broken" {
			return "", errors.New("boom")
		}
		return "v-" + key, nil
	}, time.Second)

	require.NoError(t, c.Warm(context.Background(), []string{"a", "b", "broken"}))

	assert.Equal(t, "v-a", c.Get("a", time.Minute, ""))
	assert.Equal(t, "v-b", c.Get("b", time.Minute, ""))

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "broken", entries[2].Key)
	assert.Equal(t, "boom", entries[2].LastError)
}

func TestRevalidatingCache_PanickingProbeIsFailure(t *testing.T) {
	c, _ := newTestCache(t, func(ctx context.Context, key string) (int, error) {
		panic("parser bug")
	}, time.Second)

	c.Get("k", time.Second, 0)
	info := waitIdle(t, c, "k")
	assert.Contains(t, info.LastError, "parser bug")
}
