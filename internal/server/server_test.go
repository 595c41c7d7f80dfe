package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/app"
	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/handlers"
	"github.com/ternarybob/dartseries/internal/metrics"
	"github.com/ternarybob/dartseries/internal/models"
)

type stubSeries struct{}

func (stubSeries) GetSeries(ctx context.Context, company, period string) (*models.Series, error) {
	if company == "" {
		return nil, models.NewError(models.ErrorInvalidInput, "pipeline.GetSeries", "company name is empty", nil)
	}
	return &models.Series{CorpCode: "00126380", CompanyName: company, Reference: period}, nil
}

func (s stubSeries) Refresh(ctx context.Context, company, period string) (*models.Series, error) {
	return s.GetSeries(ctx, company, period)
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, name string) (models.Corporation, error) {
	return models.Corporation{}, nil
}

func (stubResolver) Search(ctx context.Context, name string, limit int) ([]models.Candidate, error) {
	return nil, nil
}

func (stubResolver) RefreshDirectory(ctx context.Context) (int, error) { return 7, nil }

func newTestServer(t *testing.T) *Server {
	logger := arbor.NewLogger()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.IncrementRequest("get_series", "ok")

	return New(&app.App{
		Config:        common.NewDefaultConfig(),
		Logger:        logger,
		Registry:      registry,
		Metrics:       m,
		SeriesHandler: handlers.NewSeriesHandler(stubSeries{}, stubResolver{}, logger),
		StatusHandler: handlers.NewStatusHandler(),
	})
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		method   string
		target   string
		status   int
		contains string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, `"status":"ok"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "dartseries_series_requests_total"},
		{"series", http.MethodGet, "/api/series?company=acme&period=202409", http.StatusOK, `"rows"`},
		{"series invalid", http.MethodGet, "/api/series?period=202409", http.StatusBadRequest, `"kind"`},
		{"refresh", http.MethodPost, "/api/refresh?company=acme&period=202409", http.StatusOK, `"rows"`},
		{"resolve", http.MethodGet, "/api/resolve?q=acme", http.StatusOK, `"candidates":[]`},
		{"directory refresh", http.MethodPost, "/api/directory/refresh", http.StatusOK, `"corporations":7`},
		{"unknown route", http.MethodGet, "/api/unknown", http.StatusNotFound, "Not found"},
		{"wrong method", http.MethodDelete, "/api/series", http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestLoggingMiddleware_RecordsRoutePattern(t *testing.T) {
	srv := newTestServer(t)

	for _, target := range []string{"/api/series?company=acme&period=202409", "/api/series?period=202409", "/nope"} {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.app.Metrics.HTTPRequests.WithLabelValues("/api/series", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.app.Metrics.HTTPRequests.WithLabelValues("/api/series", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.app.Metrics.HTTPRequests.WithLabelValues(unmatchedRoute, "404")))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/series", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
