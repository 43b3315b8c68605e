package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/meter-route-service/internal/adapter/persistence"
	"github.com/couchcryptid/meter-route-service/internal/adapter/routefile"
	"github.com/couchcryptid/meter-route-service/internal/config"
	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMeterSource struct {
	calls  int
	meters []domain.MeterRecord
	err    error
}

func (s *stubMeterSource) FetchRouteMeters(_ context.Context, _ string) ([]domain.MeterRecord, error) {
	s.calls++
	return s.meters, s.err
}

func (s *stubMeterSource) FetchMeterHistory(_ context.Context, _, _ string) (map[string]any, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadRoute_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,ADDRESS,2024-Enero,2024-Febrero\nM-1,Calle 1,100,110\n,sin id,1,2\n"), 0o600))
	remote := &stubMeterSource{}

	meters, history, err := loadRoute(context.Background(), &config.Config{RouteID: "R-7", RouteFile: path},
		remote, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err, "rejected rows are only a warning")

	require.Len(t, meters, 1)
	assert.Equal(t, "M-1", meters[0].ID)
	assert.IsType(t, &routefile.Dataset{}, history)
	assert.Zero(t, remote.calls)
}

func TestLoadRoute_MissingFile(t *testing.T) {
	_, _, err := loadRoute(context.Background(), &config.Config{RouteFile: filepath.Join(t.TempDir(), "nope.csv")},
		&stubMeterSource{}, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
}

func TestLoadRoute_FromPersistence(t *testing.T) {
	remote := &stubMeterSource{meters: []domain.MeterRecord{{ID: "M-1"}, {ID: "M-2"}}}

	meters, history, err := loadRoute(context.Background(), &config.Config{RouteID: "R-7", HistoryCacheSize: 10},
		remote, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	assert.Len(t, meters, 2)
	assert.IsType(t, &persistence.CachedHistory{}, history)
	assert.Equal(t, 1, remote.calls)
}

func TestLoadRoute_PersistenceError(t *testing.T) {
	remote := &stubMeterSource{err: errors.New("connection refused")}

	_, history, err := loadRoute(context.Background(), &config.Config{RouteID: "R-7"},
		remote, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, history)
}
