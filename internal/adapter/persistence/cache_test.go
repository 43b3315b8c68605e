package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC)

type countingFetcher struct {
	calls  int
	result map[string]any
	err    error
}

func (m *countingFetcher) FetchMeterHistory(_ context.Context, _, _ string) (map[string]any, error) {
	m.calls++
	return m.result, m.err
}

func TestCachedHistory_Hit(t *testing.T) {
	inner := &countingFetcher{result: map[string]any{"2024-Enero": 100.0}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedHistory(inner, 10, 0, metrics)

	h1, err := cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	require.NoError(t, err)
	h2, err := cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HistoryCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HistoryCache.WithLabelValues("miss")), 0)
}

func TestCachedHistory_ExpiresAfterTTL(t *testing.T) {
	inner := &countingFetcher{result: map[string]any{"2024-Enero": 100.0}}
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(t0)
	cached := NewCachedHistory(inner, 10, time.Minute, metrics)
	cached.clock = clock

	_, _ = cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	clock.Advance(59 * time.Second)
	_, _ = cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	assert.Equal(t, 1, inner.calls, "fresh entry is served from cache")

	inner.result = map[string]any{"2024-Enero": 100.0, "2024-Febrero": 112.0}
	clock.Advance(time.Second)
	h, err := cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "expired entry is refetched")
	assert.Len(t, h, 2)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HistoryCache.WithLabelValues("expired")), 0)

	_, _ = cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	assert.Equal(t, 2, inner.calls, "refetched entry is fresh again")
}

func TestCachedHistory_KeyedByRouteAndMeter(t *testing.T) {
	inner := &countingFetcher{result: map[string]any{"2024-Enero": 100.0}}
	cached := NewCachedHistory(inner, 10, 0, observability.NewMetricsForTesting())

	_, _ = cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	_, _ = cached.FetchMeterHistory(context.Background(), "M-2", "R-7")
	_, _ = cached.FetchMeterHistory(context.Background(), "M-1", "R-8")

	assert.Equal(t, 3, inner.calls)
}

func TestCachedHistory_EmptyNotCached(t *testing.T) {
	inner := &countingFetcher{result: map[string]any{}}
	cached := NewCachedHistory(inner, 10, 0, observability.NewMetricsForTesting())

	_, _ = cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	_, _ = cached.FetchMeterHistory(context.Background(), "M-1", "R-7")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedHistory_ErrorNotCached(t *testing.T) {
	inner := &countingFetcher{err: errors.New("timeout")}
	cached := NewCachedHistory(inner, 10, 0, observability.NewMetricsForTesting())

	_, err := cached.FetchMeterHistory(context.Background(), "M-1", "R-7")
	require.Error(t, err)
	assert.Zero(t, cached.cache.len())
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", map[string]any{"k": "A"}, t0)
	c.put("b", map[string]any{"k": "B"}, t0)
	c.put("c", map[string]any{"k": "C"}, t0) // evicts "a"

	_, _, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	v, _, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", v["k"])
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", map[string]any{"k": "A"}, t0)
	c.put("b", map[string]any{"k": "B"}, t0)
	c.get("a")
	c.put("c", map[string]any{"k": "C"}, t0) // evicts "b"

	_, _, ok := c.get("a")
	assert.True(t, ok)
	_, _, ok = c.get("b")
	assert.False(t, ok)
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", map[string]any{"k": "A"}, t0)
	c.put("a", map[string]any{"k": "A2"}, t0)

	v, _, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", v["k"])
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_MinimumSize(t *testing.T) {
	c := newLRUCache(0)
	c.put("a", map[string]any{}, t0)
	c.put("b", map[string]any{}, t0)
	assert.Equal(t, 1, c.len())
}
