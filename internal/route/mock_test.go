package route

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/observability"
	"github.com/couchcryptid/meter-route-service/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type mockHistory struct {
	mu      sync.Mutex
	calls   int
	data    map[string]map[string]any
	err     error
	started chan string
	release chan struct{}
}

func (m *mockHistory) FetchMeterHistory(ctx context.Context, meterID, _ string) (map[string]any, error) {
	m.mu.Lock()
	m.calls++
	started, release := m.started, m.release
	m.mu.Unlock()

	if started != nil {
		started <- meterID
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.data[meterID], nil
}

func (m *mockHistory) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// failingKV rejects writes to keys ending in failSuffix while it is set.
type failingKV struct {
	*session.MemoryKV
	mu         sync.Mutex
	failSuffix string
}

func (k *failingKV) Set(key, value string) error {
	k.mu.Lock()
	suffix := k.failSuffix
	k.mu.Unlock()
	if suffix != "" && strings.HasSuffix(key, suffix) {
		return errors.New("disk full")
	}
	return k.MemoryKV.Set(key, value)
}

func (k *failingKV) setFailSuffix(suffix string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failSuffix = suffix
}

type mockSubmitter struct {
	calls int
	last  domain.Submission
	err   error
}

func (m *mockSubmitter) SubmitRouteReadings(_ context.Context, sub domain.Submission) error {
	m.calls++
	m.last = sub
	return m.err
}

type mockNotifier struct {
	calls int
	err   error
}

func (m *mockNotifier) Notify(_ context.Context, _ domain.Submission) error {
	m.calls++
	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.March, 12, 9, 15, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// testMeters have an average consumption of 10 and a previous reading of 110
// for March 2024, except M-3 which has no history.
func testMeters() []domain.MeterRecord {
	return []domain.MeterRecord{
		{ID: "M-1", Address: "Calle 1", History: map[string]any{"2024-Enero": 100.0, "2024-Febrero": 110.0}},
		{ID: "M-2", Address: "Calle 2", History: map[string]any{"2024-Enero": "200", "2024-Febrero": "210"}},
		{ID: "M-3", Address: "Calle 3"},
	}
}

type fixture struct {
	session   *Session
	store     *session.Store
	kv        *session.MemoryKV
	history   *mockHistory
	submitter *mockSubmitter
	notifier  *mockNotifier
	metrics   *observability.Metrics
}

func newFixtureWithKV(t *testing.T, kv *session.MemoryKV) *fixture {
	t.Helper()
	f := newFixtureOver(t, kv)
	f.kv = kv
	return f
}

// newFixtureOver builds a fixture on any KV. f.kv stays nil.
func newFixtureOver(t *testing.T, kv session.KV) *fixture {
	t.Helper()
	freezeClock(t)
	f := &fixture{
		store:     session.NewStore(kv, discardLogger()),
		history:   &mockHistory{data: map[string]map[string]any{}},
		submitter: &mockSubmitter{},
		notifier:  &mockNotifier{},
		metrics:   observability.NewMetricsForTesting(),
	}
	s, err := New(Options{RouteID: "R-7", User: "ana", TargetPeriod: domain.PeriodKey{Year: 2024, Month: time.March}},
		testMeters(), f.store, f.history, f.submitter, f.notifier, discardLogger(), f.metrics)
	require.NoError(t, err)
	f.session = s
	return f
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithKV(t, session.NewMemoryKV())
}

// atMeter moves the cursor to meter i with nothing entered on the current screen.
func (f *fixture) atMeter(t *testing.T, i int) {
	t.Helper()
	res, err := f.session.Navigate("select", i)
	require.NoError(t, err)
	require.Equal(t, "proceed", string(res.Decision))
}

func (f *fixture) sessionOf(t *testing.T, meterID string) domain.ReadingSession {
	t.Helper()
	sess, err := f.store.Get(meterID)
	require.NoError(t, err)
	return sess
}
