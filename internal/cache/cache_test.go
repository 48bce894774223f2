package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestNewRequiresFetchAndTTL(t *testing.T) {
	_, err := New[string, int](Config{TTL: time.Minute}, nil)
	require.Error(t, err)

	_, err = New(Config{}, func(context.Context, string) (int, error) { return 1, nil })
	require.Error(t, err)
}

func TestGetWithinTTLDoesNotRefetch(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	c, err := New(Config{Name: "t", TTL: time.Minute, Now: clock.Now}, func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	})
	require.NoError(t, err)

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(30 * time.Second)
	v, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetAfterTTLRefetchesOnce(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	c, err := New(Config{Name: "t", TTL: time.Minute, Now: clock.Now}, func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "k")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())

	stored, _, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 2, stored)
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c, err := New(Config{Name: "t", TTL: time.Minute}, func(context.Context, struct{}) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "projects", nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), struct{}{})
			assert.NoError(t, err)
			results[i] = v
		}(i)
		if i == 0 {
			<-started
		}
	}

	// let the remaining callers join the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "projects", r)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("rate limited")
	c, err := New(Config{Name: "t", TTL: time.Minute}, func(context.Context, string) (int, error) {
		if calls.Add(1) == 1 {
			return 0, boom
		}
		return 7, nil
	})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "k")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCancelledCallerDoesNotCorruptCache(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c, err := New(Config{Name: "t", TTL: time.Minute}, func(ctx context.Context, _ string) (int, error) {
		calls.Add(1)
		close(started)
		select {
		case <-release:
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k")
		done <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidateAndPurge(t *testing.T) {
	var calls atomic.Int32
	c, err := New(Config{Name: "t", TTL: time.Hour}, func(_ context.Context, k string) (string, error) {
		calls.Add(1)
		return k, nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")
	assert.Equal(t, 2, c.Len())

	c.Invalidate("a")
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, int32(3), calls.Load())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestRefreshReplacesFreshValueAndKeepsOldOnFailure(t *testing.T) {
	clock := newClock()
	var calls atomic.Int32
	var fail atomic.Bool
	c, err := New(Config{Name: "t", TTL: time.Hour, Now: clock.Now}, func(context.Context, string) (int, error) {
		n := int(calls.Add(1))
		if fail.Load() {
			return 0, errors.New("upstream down")
		}
		return n, nil
	})
	require.NoError(t, err)

	v, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.Refresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	fail.Store(true)
	_, err = c.Refresh(context.Background(), "k")
	require.Error(t, err)

	v, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(3), calls.Load())
}
