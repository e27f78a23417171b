package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/forecast"
)

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	readErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return redis.NewStringResult("", f.readErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type countingProvider struct {
	runs  map[id.ID]*forecast.Run
	calls int
}

func (p *countingProvider) Latest(_ context.Context, productID id.ID) (*forecast.Run, error) {
	p.calls++
	return p.runs[productID], nil
}

func makeRun(productID id.ID, n int) *forecast.Run {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	run := &forecast.Run{ID: id.New(), ProductID: productID, CreatedAt: start}
	for i := 0; i < n; i++ {
		run.Points = append(run.Points, forecast.Point{
			Period:    start.AddDate(0, 0, i),
			Predicted: 4.5,
			Lower95:   2,
			Upper95:   7.25,
		})
	}
	return run
}

func TestForecastCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	pid := id.New()
	inner := &countingProvider{runs: map[id.ID]*forecast.Run{pid: makeRun(pid, 3)}}
	rdb := newFakeRedis()

	c, err := NewForecastCache(inner, rdb, time.Minute)
	require.NoError(t, err)

	first, err := c.Latest(ctx, pid)
	require.NoError(t, err)
	second, err := c.Latest(ctx, pid)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, time.Minute, rdb.ttls[cacheKey(pid)])
	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Points, 3)
	assert.Equal(t, 7.25, second.Points[2].Upper95)
	assert.True(t, first.Points[1].Period.Equal(second.Points[1].Period))
}

func TestForecastCache_LargeRunsAreCompressed(t *testing.T) {
	ctx := context.Background()
	pid := id.New()
	inner := &countingProvider{runs: map[id.ID]*forecast.Run{pid: makeRun(pid, 90)}}
	rdb := newFakeRedis()

	c, err := NewForecastCache(inner, rdb, time.Minute)
	require.NoError(t, err)

	_, err = c.Latest(ctx, pid)
	require.NoError(t, err)
	stored := rdb.data[cacheKey(pid)]
	require.NotEmpty(t, stored)
	assert.Equal(t, frameZstd, stored[0])

	got, err := c.Latest(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, got.Points, 90)
	assert.Equal(t, 1, inner.calls)
}

func TestForecastCache_MissingForecastNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{runs: map[id.ID]*forecast.Run{}}
	rdb := newFakeRedis()
	c, err := NewForecastCache(inner, rdb, time.Minute)
	require.NoError(t, err)

	pid := id.New()
	run, err := c.Latest(ctx, pid)
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Empty(t, rdb.data)

	inner.runs[pid] = makeRun(pid, 2)
	run, err = c.Latest(ctx, pid)
	require.NoError(t, err)
	require.NotNil(t, run)
}

func TestForecastCache_RedisFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	pid := id.New()
	inner := &countingProvider{runs: map[id.ID]*forecast.Run{pid: makeRun(pid, 2)}}
	rdb := newFakeRedis()
	rdb.readErr = errors.New("connection refused")

	c, err := NewForecastCache(inner, rdb, time.Minute)
	require.NoError(t, err)

	run, err := c.Latest(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, pid, run.ProductID)
}

func TestForecastCache_CorruptEntryIsReplaced(t *testing.T) {
	ctx := context.Background()
	pid := id.New()
	inner := &countingProvider{runs: map[id.ID]*forecast.Run{pid: makeRun(pid, 2)}}
	rdb := newFakeRedis()
	rdb.data[cacheKey(pid)] = string([]byte{9, 1, 2})

	c, err := NewForecastCache(inner, rdb, time.Minute)
	require.NoError(t, err)

	run, err := c.Latest(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, run.Points, 2)
	assert.Equal(t, frameRaw, rdb.data[cacheKey(pid)][0])
}

func TestForecastCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	pid := id.New()
	inner := &countingProvider{runs: map[id.ID]*forecast.Run{pid: makeRun(pid, 2)}}
	rdb := newFakeRedis()
	c, err := NewForecastCache(inner, rdb, time.Minute)
	require.NoError(t, err)

	_, err = c.Latest(ctx, pid)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, pid))
	_, err = c.Latest(ctx, pid)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestForecastCache_NilClientPassesThrough(t *testing.T) {
	pid := id.New()
	inner := &countingProvider{runs: map[id.ID]*forecast.Run{pid: makeRun(pid, 1)}}
	c, err := NewForecastCache(inner, nil, time.Minute)
	require.NoError(t, err)

	_, _ = c.Latest(context.Background(), pid)
	_, _ = c.Latest(context.Background(), pid)
	assert.Equal(t, 2, inner.calls)
	assert.NoError(t, c.Invalidate(context.Background(), pid))
}

type recordingInvalidator struct{ ids []id.ID }

func (r *recordingInvalidator) Invalidate(_ context.Context, productID id.ID) error {
	r.ids = append(r.ids, productID)
	return nil
}

func TestForecastListener_Handle(t *testing.T) {
	target := &recordingInvalidator{}
	l := NewForecastListener(nil, target)
	l.ctx = context.Background()

	pid := id.New()
	l.handle(" " + pid.String() + "\n")
	l.handle("not-a-uuid")

	assert.Equal(t, []id.ID{pid}, target.ids)
}
