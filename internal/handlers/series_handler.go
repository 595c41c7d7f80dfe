package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

const maxSearchLimit = 50

// SeriesHandler serves the quarterly series API
type SeriesHandler struct {
	series   interfaces.SeriesService
	resolver interfaces.IdentifierResolver
	logger   arbor.ILogger
	now      func() time.Time
}

// NewSeriesHandler creates a new SeriesHandler
func NewSeriesHandler(series interfaces.SeriesService, resolver interfaces.IdentifierResolver, logger arbor.ILogger) *SeriesHandler {
	return &SeriesHandler{
		series:   series,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// SeriesResponse carries the series and its display rows
type SeriesResponse struct {
	*models.Series
	Rows []models.SeriesRow `json:"rows"`
}

// SeriesRequest is the body of POST /api/refresh
type SeriesRequest struct {
	Company string `json:"company"`
	Period  string `json:"period"`
}

// GetSeriesHandler handles GET /api/series?company=...&period=YYYYMM
func (h *SeriesHandler) GetSeriesHandler(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	period := h.period(r.URL.Query().Get("period"))

	series, err := h.series.GetSeries(r.Context(), company, period)
	if err != nil {
		h.logger.Debug().Str("company", company).Str("period", period).Err(err).Msg("Series request failed")
		WritePipelineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, SeriesResponse{Series: series, Rows: series.Rows()})
}

// RefreshHandler handles POST /api/refresh with a JSON body or query parameters
func (h *SeriesHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	req := SeriesRequest{
		Company: r.URL.Query().Get("company"),
		Period:  r.URL.Query().Get("period"),
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	series, err := h.series.Refresh(r.Context(), req.Company, h.period(req.Period))
	if err != nil {
		h.logger.Warn().Str("company", req.Company).Err(err).Msg("Refresh request failed")
		WritePipelineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, SeriesResponse{Series: series, Rows: series.Rows()})
}

// ResolveHandler handles GET /api/resolve?q=...&limit=N
func (h *SeriesHandler) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := min(QueryInt(r, "limit", 10), maxSearchLimit)

	candidates, err := h.resolver.Search(r.Context(), q, limit)
	if err != nil {
		WritePipelineError(w, err)
		return
	}
	if candidates == nil {
		candidates = []models.Candidate{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":      q,
		"candidates": candidates,
	})
}

// RefreshDirectoryHandler handles POST /api/directory/refresh
func (h *SeriesHandler) RefreshDirectoryHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.resolver.RefreshDirectory(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Directory refresh failed")
		WritePipelineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"corporations": count,
	})
}

// period defaults to the current month
func (h *SeriesHandler) period(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return h.now().Format("200601")
}
