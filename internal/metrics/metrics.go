package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/i474232898/weather-ranker/internal/weather"
)

// Collector provides application metrics collection. It implements weather.Recorder.
type Collector struct {
	// Provider metrics
	ProviderRequestsTotal *prometheus.CounterVec
	ProviderDuration      *prometheus.HistogramVec

	// Aggregation metrics
	AggregatesTotal   *prometheus.CounterVec
	SuccessfulSources prometheus.Histogram

	// Geocoding metrics
	GeocodeFallbacksTotal prometheus.Counter

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
}

// NewCollector registers the collector's metrics on reg.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of provider fetches by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Provider fetch duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"provider"},
		),

		AggregatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregates_total",
				Help:      "Total number of aggregation cycles by outcome",
			},
			[]string{"outcome"},
		),

		SuccessfulSources: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregate_successful_sources",
				Help:      "Number of providers that succeeded per aggregation cycle",
				Buckets:   []float64{0, 1, 2, 3},
			},
		),

		GeocodeFallbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geocode_fallbacks_total",
				Help:      "Total number of location searches answered from the cache",
			},
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"route"},
		),
	}
}

// ObserveProvider records one provider fetch.
func (c *Collector) ObserveProvider(source weather.Source, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.ProviderRequestsTotal.WithLabelValues(string(source), outcome).Inc()
	c.ProviderDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// ObserveAggregate records the outcome of one aggregation cycle.
func (c *Collector) ObserveAggregate(successes, failures int) {
	outcome := "ok"
	switch {
	case successes == 0:
		outcome = "all_failed"
	case failures > 0:
		outcome = "partial"
	}
	c.AggregatesTotal.WithLabelValues(outcome).Inc()
	c.SuccessfulSources.Observe(float64(successes))
}

// ObserveGeocodeFallback counts a cache-served location search.
func (c *Collector) ObserveGeocodeFallback() {
	c.GeocodeFallbacksTotal.Inc()
}

// RecordAPIRequest increments the API request counter and observes its latency.
func (c *Collector) RecordAPIRequest(route, method, status string, elapsed time.Duration) {
	c.APIRequestsTotal.WithLabelValues(route, method, status).Inc()
	c.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
