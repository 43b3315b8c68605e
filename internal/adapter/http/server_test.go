package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/meter-route-service/internal/adapter/http"
	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/observability"
	"github.com/couchcryptid/meter-route-service/internal/route"
	"github.com/couchcryptid/meter-route-service/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noHistory struct{}

func (noHistory) FetchMeterHistory(context.Context, string, string) (map[string]any, error) {
	return nil, nil
}

type mockSubmitter struct {
	calls int
	err   error
}

func (m *mockSubmitter) SubmitRouteReadings(context.Context, domain.Submission) error {
	m.calls++
	return m.err
}

type mockReadiness struct {
	httpadapter.RouteService
	err error
}

func (m *mockReadiness) CheckReadiness(context.Context) error { return m.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, sub *mockSubmitter) *httpadapter.Server {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.March, 12, 9, 15, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	meters := []domain.MeterRecord{
		{ID: "M-1", Address: "Calle 1", History: map[string]any{"2024-Enero": 100.0, "2024-Febrero": 110.0}},
		{ID: "M-2", Address: "Calle 2", History: map[string]any{"2024-Enero": "200", "2024-Febrero": "210"}},
	}
	store := session.NewStore(session.NewMemoryKV(), discardLogger())
	sess, err := route.New(
		route.Options{RouteID: "R-7", User: "ana", TargetPeriod: domain.PeriodKey{Year: 2024, Month: time.March}},
		meters, store, noHistory{}, sub, nil, discardLogger(), observability.NewMetricsForTesting(),
	)
	require.NoError(t, err)
	return httpadapter.NewServer(":0", sess, discardLogger())
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, discardLogger())
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	ready := httpadapter.NewServer(":0", &mockReadiness{}, discardLogger())
	assert.Equal(t, http.StatusOK, do(t, ready, http.MethodGet, "/readyz", "").Code)

	notReady := httpadapter.NewServer(":0", &mockReadiness{err: errors.New("route not loaded")}, discardLogger())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, notReady, http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, discardLogger())
	rec := do(t, srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPanicIsRecovered(t *testing.T) {
	// The embedded RouteService is nil, so View panics.
	srv := httpadapter.NewServer(":0", &mockReadiness{}, discardLogger())
	rec := do(t, srv, http.MethodGet, "/api/route", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouteView(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})

	rec := do(t, srv, http.MethodGet, "/api/route", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "R-7", body["routeId"])
	assert.Nil(t, body["cursor"])
	assert.Len(t, body["meters"], 2)

	rec = do(t, srv, http.MethodGet, "/api/route/current", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReadingAndConfirm(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})

	rec := do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"meter","index":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "proceed", decode(t, rec)["decision"])

	rec = do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"abc"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/route/confirm", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"120"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/route/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "normal", body["classification"])
	assert.Equal(t, true, body["confirmed"])

	rec = do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"121"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "confirmed reading is locked")

	rec = do(t, srv, http.MethodGet, "/api/route/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode(t, rec)["session"].(map[string]any)
	assert.Equal(t, "120", sess["inputText"])
}

func TestNavigationPrompt(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})
	do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"meter","index":0}`)
	do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"125"}`)

	rec := do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"next"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "prompt", body["decision"])
	assert.InDelta(t, 0, body["cursor"], 0)

	rec = do(t, srv, http.MethodPost, "/api/route/navigation/resolve", `{"choice":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/route/navigation/resolve", `{"choice":"leave"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "navigate", body["outcome"])
	assert.InDelta(t, 1, body["cursor"], 0)

	rec = do(t, srv, http.MethodPost, "/api/route/navigation/resolve", `{"choice":"leave"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNavigateRejectsBadTarget(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"meter","index":9}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"sideways"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/route/navigate", `{`).Code)
}

func TestLowReadingWorkflow(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})
	do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"meter","index":1}`)
	do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"212"}`)

	rec := do(t, srv, http.MethodPost, "/api/route/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "low", body["classification"])
	assert.Equal(t, false, body["confirmed"])

	rec = do(t, srv, http.MethodPost, "/api/route/workflow", `{"action":"complete"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "door question unanswered")

	rec = do(t, srv, http.MethodPost, "/api/route/workflow", `{"action":"answer_door","answered":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "low", decode(t, rec)["kind"])

	rec = do(t, srv, http.MethodPost, "/api/route/workflow", `{"action":"residence","months":"doce"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/route/workflow", `{"action":"residence","months":"12"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["canComplete"])

	rec = do(t, srv, http.MethodPost, "/api/route/workflow", `{"action":"complete"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["confirmed"])

	rec = do(t, srv, http.MethodGet, "/api/route/workflow", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "no dialog open")
}

func TestUnknownWorkflowAction(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})
	rec := do(t, srv, http.MethodPost, "/api/route/workflow", `{"action":"dance"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnconfirm(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})
	do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"meter","index":0}`)

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/route/unconfirm", "").Code)

	do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"120"}`)
	do(t, srv, http.MethodPost, "/api/route/confirm", "")
	require.Equal(t, http.StatusNoContent, do(t, srv, http.MethodPost, "/api/route/unconfirm", "").Code)
	require.Equal(t, http.StatusNoContent, do(t, srv, http.MethodPost, "/api/route/unconfirm/resolve", `{"accept":true}`).Code)

	rec := do(t, srv, http.MethodGet, "/api/route/current", "")
	sess := decode(t, rec)["session"].(map[string]any)
	assert.Equal(t, false, sess["isConfirmed"])
	assert.Equal(t, "120", sess["inputText"])
}

func TestFinalizeAndReport(t *testing.T) {
	sub := &mockSubmitter{}
	srv := newTestServer(t, sub)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/route/report.csv", "").Code)

	do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"meter","index":0}`)
	do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"120"}`)
	do(t, srv, http.MethodPost, "/api/route/confirm", "")

	rec := do(t, srv, http.MethodPost, "/api/route/finalize", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, "R-7", decode(t, rec)["routeId"])

	rec = do(t, srv, http.MethodGet, "/api/route/report.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ID,DIRECCION,"))
	assert.Contains(t, rec.Body.String(), "M-1,Calle 1,110,120,10,")

	rec = do(t, srv, http.MethodGet, "/api/route", "")
	assert.Equal(t, "summary", decode(t, rec)["screen"])
}

func TestFinalizeSubmitterFailure(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{err: errors.New("connection refused")})

	rec := do(t, srv, http.MethodPost, "/api/route/finalize", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "connection refused")
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/route/submission", "").Code)
}

func TestReset(t *testing.T) {
	srv := newTestServer(t, &mockSubmitter{})
	do(t, srv, http.MethodPost, "/api/route/navigate", `{"target":"meter","index":1}`)
	do(t, srv, http.MethodPut, "/api/route/reading", `{"text":"230"}`)

	require.Equal(t, http.StatusNoContent, do(t, srv, http.MethodPost, "/api/route/reset", "").Code)

	rec := do(t, srv, http.MethodGet, "/api/route", "")
	body := decode(t, rec)
	for _, m := range body["meters"].([]any) {
		assert.Equal(t, "pending", m.(map[string]any)["status"])
	}
}
