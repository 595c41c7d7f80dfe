package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/models"
)

type fakeSeries struct {
	lastCompany, lastPeriod string
	refreshed               bool
	err                     error
}

func (f *fakeSeries) result(company, period string) (*models.Series, error) {
	f.lastCompany, f.lastPeriod = company, period
	if f.err != nil {
		return nil, f.err
	}
	rec := models.NormalizedRecord{
		CorpCode: "00126380", Period: models.FiscalPeriod{Year: 2024, Quarter: models.Q3},
		Revenue: 79_098_700_000_000, OperatingProfit: 9_183_400_000_000, StatementDiv: models.StatementConsolidated,
	}
	return &models.Series{
		CorpCode: "00126380", CompanyName: "삼성전자", Reference: period,
		Entries: []models.SeriesEntry{{Period: rec.Period, Record: &rec}},
	}, nil
}

func (f *fakeSeries) GetSeries(ctx context.Context, company, period string) (*models.Series, error) {
	return f.result(company, period)
}

func (f *fakeSeries) Refresh(ctx context.Context, company, period string) (*models.Series, error) {
	f.refreshed = true
	return f.result(company, period)
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, name string) (models.Corporation, error) {
	return models.Corporation{}, nil
}

func (fakeResolver) Search(ctx context.Context, name string, limit int) ([]models.Candidate, error) {
	if name == "" {
		return nil, models.NewError(models.ErrorInvalidInput, "resolver.Search", "company name is empty", nil)
	}
	return []models.Candidate{{Corporation: models.Corporation{CorpCode: "00126380", Name: "삼성전자"}, Score: 1}}, nil
}

func (fakeResolver) RefreshDirectory(ctx context.Context) (int, error) { return 3, nil }

func newHandler(series *fakeSeries) *SeriesHandler {
	h := NewSeriesHandler(series, fakeResolver{}, arbor.NewLogger())
	h.now = func() time.Time { return time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC) }
	return h
}

func TestGetSeriesHandler(t *testing.T) {
	series := &fakeSeries{}
	rec := httptest.NewRecorder()
	newHandler(series).GetSeriesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/series?company=%EC%82%BC%EC%84%B1%EC%A0%84%EC%9E%90&period=202409", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "삼성전자", series.lastCompany)
	assert.Equal(t, "202409", series.lastPeriod)

	var body struct {
		CorpCode string             `json:"corp_code"`
		Rows     []models.SeriesRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "00126380", body.CorpCode)
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "79,098,700", body.Rows[0].Revenue)
	assert.Equal(t, "11.6", body.Rows[0].Margin)
}

func TestGetSeriesHandler_DefaultPeriod(t *testing.T) {
	series := &fakeSeries{}
	rec := httptest.NewRecorder()
	newHandler(series).GetSeriesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/series?company=x", nil))
	assert.Equal(t, "202502", series.lastPeriod)
}

func TestGetSeriesHandler_ErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.NewError(models.ErrorInvalidInput, "planner.Plan", "bad", nil), http.StatusBadRequest},
		{models.NewError(models.ErrorNotFound, "resolver.Resolve", "none", nil), http.StatusNotFound},
		{models.NewAmbiguousError("resolver.Resolve", "동명기업", []string{"동명기업 (00888001)", "동명기업 (00888002)"}), http.StatusConflict},
		{models.NewError(models.ErrorUpstreamUnavailable, "resolver.RefreshDirectory", "down", nil), http.StatusBadGateway},
		{models.NewError(models.ErrorRateLimited, "resolver.RefreshDirectory", "slow down", nil), http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(models.KindOf(tt.err)), func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHandler(&fakeSeries{err: tt.err}).GetSeriesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/series?company=x", nil))
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, string(models.KindOf(tt.err)), body.Kind)
			if tt.status == http.StatusConflict {
				assert.Len(t, body.Candidates, 2)
			}
		})
	}
}

func TestRefreshHandler(t *testing.T) {
	series := &fakeSeries{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(`{"company":"삼성전자","period":"202406"}`))
	newHandler(series).RefreshHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, series.refreshed)
	assert.Equal(t, "202406", series.lastPeriod)

	rec = httptest.NewRecorder()
	newHandler(series).RefreshHandler(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(`{bad`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(&fakeSeries{}).ResolveHandler(rec, httptest.NewRequest(http.MethodGet, "/api/resolve?q=%EC%82%BC%EC%84%B1%EC%A0%84%EC%9E%90", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"corp_code":"00126380"`)

	rec = httptest.NewRecorder()
	newHandler(&fakeSeries{}).ResolveHandler(rec, httptest.NewRequest(http.MethodGet, "/api/resolve", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshDirectoryHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(&fakeSeries{}).RefreshDirectoryHandler(rec, httptest.NewRequest(http.MethodPost, "/api/directory/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"corporations":3}`, rec.Body.String())
}
