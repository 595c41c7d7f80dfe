package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the series pipeline.
type Metrics struct {
	// Cache lookups by result ("hit", "miss", "error")
	CacheLookups *prometheus.CounterVec

	// DART requests by endpoint and outcome
	UpstreamRequests *prometheus.CounterVec

	// Fetch + normalize duration of one fiscal year
	YearFetchLatency prometheus.Histogram

	// Incomplete series entries by reason
	IncompletePeriods *prometheus.CounterVec

	// Series requests by operation and result
	SeriesRequests *prometheus.CounterVec

	// HTTP API requests by route pattern and status code
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates a Metrics instance registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dartseries_cache_lookups_total",
			Help: "Cache lookups per planned period by result",
		}, []string{"result"}),

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dartseries_upstream_requests_total",
			Help: "Requests to the DART API by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		YearFetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dartseries_year_fetch_duration_seconds",
			Help:    "Duration of fetching and normalizing one fiscal year",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		IncompletePeriods: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dartseries_incomplete_periods_total",
			Help: "Series entries returned without figures, by reason",
		}, []string{"reason"}),

		SeriesRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dartseries_series_requests_total",
			Help: "Series requests by operation and result kind",
		}, []string{"op", "result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dartseries_http_requests_total",
			Help: "HTTP API requests by route and status",
		}, []string{"route", "status"}),

		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dartseries_http_request_duration_seconds",
			Help:    "HTTP API request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveCacheLookup records hit/miss counts for one request.
func (m *Metrics) ObserveCacheLookup(hits, misses int) {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Add(float64(hits))
		m.CacheLookups.WithLabelValues("miss").Add(float64(misses))
	}
}

// IncrementCacheError records a failed cache read or write.
func (m *Metrics) IncrementCacheError() {
	if m != nil {
		m.CacheLookups.WithLabelValues("error").Inc()
	}
}

// ObserveUpstream matches dart.RequestObserver.
func (m *Metrics) ObserveUpstream(endpoint, outcome string) {
	if m != nil {
		m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	}
}

// ObserveYearFetch records the duration of one fiscal-year fetch.
func (m *Metrics) ObserveYearFetch(d time.Duration) {
	if m != nil {
		m.YearFetchLatency.Observe(d.Seconds())
	}
}

// IncrementIncomplete records an entry returned without figures.
func (m *Metrics) IncrementIncomplete(reason string) {
	if m != nil {
		m.IncompletePeriods.WithLabelValues(reason).Inc()
	}
}

// IncrementRequest records the outcome of a GetSeries or Refresh call.
func (m *Metrics) IncrementRequest(op, result string) {
	if m != nil {
		m.SeriesRequests.WithLabelValues(op, result).Inc()
	}
}

// ObserveHTTP records one served API request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
	}
}
