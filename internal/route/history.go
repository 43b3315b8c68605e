package route

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/navigation"
)

// HistorySource fetches a meter's raw history from the persistence service.
type HistorySource interface {
	FetchMeterHistory(ctx context.Context, meterID, routeID string) (map[string]any, error)
}

// historyLoader coalesces concurrent fetches for the same meter and period and
// hands out per-meter generation tokens. A completion is applied only while its
// token is still the newest one issued for that meter.
//
// tokens is guarded by the owning Session's mutex.
type historyLoader struct {
	source HistorySource
	group  singleflight.Group
	tokens map[string]uint64
	next   uint64
}

func newHistoryLoader(source HistorySource) *historyLoader {
	return &historyLoader{source: source, tokens: make(map[string]uint64)}
}

func (l *historyLoader) begin(meterID string) uint64 {
	l.next++
	l.tokens[meterID] = l.next
	return l.next
}

func (l *historyLoader) current(meterID string, token uint64) bool {
	return l.tokens[meterID] == token
}

func (l *historyLoader) invalidate() {
	clear(l.tokens)
}

// fetch runs at most one request per (meter, period) at a time; concurrent
// callers share its result. The shared request ignores the cancellation of
// whichever caller started it and is bounded by the source's own timeout;
// each caller stops waiting when its own ctx is done.
func (l *historyLoader) fetch(ctx context.Context, meterID, routeID string, period domain.PeriodKey) (map[string]any, error) {
	key := meterID + "|" + period.String()
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		return l.source.FetchMeterHistory(shared, meterID, routeID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch history for meter %s: %w", meterID, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, fmt.Errorf("fetch history for meter %s: %w", meterID, r.Err)
		}
		raw, _ := r.Val.(map[string]any)
		return raw, nil
	}
}

// RefreshHistory fetches the current meter's history from the persistence
// service. The session lock is released during the request; the result is
// applied only if no newer refresh started for the meter and the cursor
// still shows it. A failed fetch keeps the previous history and reports a
// warning instead of an error. When the source is cached, a refresh inside
// the cache's freshness window returns the cached copy.
func (s *Session) RefreshHistory(ctx context.Context) (HistoryResult, error) {
	s.mu.Lock()
	idx, meter, err := s.currentMeter()
	if err != nil {
		s.mu.Unlock()
		return HistoryResult{}, err
	}
	token := s.loader.begin(meter.ID)
	period := s.target
	s.mu.Unlock()

	raw, fetchErr := s.loader.fetch(ctx, meter.ID, s.routeID, period)

	s.mu.Lock()
	defer s.mu.Unlock()

	res := HistoryResult{MeterID: meter.ID}
	if !s.loader.current(meter.ID, token) || s.cursor != navigation.MeterCursor(idx) {
		s.metrics.HistoryStaleDiscards.Inc()
		s.logger.Debug("discarding stale history", "meter_id", meter.ID)
		res.Stale = true
		return res, nil
	}

	if fetchErr != nil {
		s.metrics.HistoryFetches.WithLabelValues("error").Inc()
		s.logger.Warn("history fetch failed, keeping previous data", "meter_id", meter.ID, "error", fetchErr)
		res.Warning = "no se pudo obtener el historial; se usan los datos disponibles"
		s.historyWarnings[meter.ID] = res.Warning
		res.Entries = len(s.historyFor(meter))
		return res, nil
	}

	history := domain.ParseHistory(raw)
	if len(history) == 0 {
		s.metrics.HistoryFetches.WithLabelValues("empty").Inc()
	} else {
		s.metrics.HistoryFetches.WithLabelValues("success").Inc()
	}
	s.histories[meter.ID] = history
	delete(s.historyWarnings, meter.ID)
	res.Applied = true
	res.Entries = len(history)
	return res, nil
}
