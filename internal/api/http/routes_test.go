package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/weather-ranker/internal/metrics"
	"github.com/i474232898/weather-ranker/internal/store"
	"github.com/i474232898/weather-ranker/internal/weather"
)

type stubProvider struct {
	source weather.Source
	temp   int
	err    error
}

func (s stubProvider) Source() weather.Source { return s.source }

func (s stubProvider) Fetch(_ context.Context, c weather.Coordinates) (weather.Record, error) {
	if s.err != nil {
		return weather.Record{}, s.err
	}
	return weather.Record{
		Source:    s.source,
		Location:  "Seattle, WA, US",
		Latitude:  c.Lat,
		Longitude: c.Lon,
		Current:   weather.Current{Temperature: s.temp},
		Hourly:    []weather.HourlyPoint{},
		Daily:     []weather.DailyPoint{},
		FetchedAt: time.Now().UTC(),
	}, nil
}

type stubGeocoder struct {
	err error
}

func (g stubGeocoder) Geocode(context.Context, string) ([]weather.Location, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []weather.Location{{Name: "Seattle", Lat: 47.6062, Lon: -122.3321, Country: "US", State: "Washington"}}, nil
}

func newTestApp(provs []weather.Provider, geo weather.Geocoder) *fiber.App {
	app := fiber.New()
	agg := weather.NewAggregator(provs, weather.NewStaticScorer())
	res := weather.NewResolver(geo, store.NewMemoryStore(0, 0), nil)
	RegisterRoutes(app, weather.NewService(agg, res, store.NewMemoryStore(10, time.Hour)))
	return app
}

func get(t *testing.T, app *fiber.App, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

// TestWeatherQueryValidation verifies that the weather endpoint rejects
// incomplete or out-of-range parameters.
func TestWeatherQueryValidation(t *testing.T) {
	app := newTestApp([]weather.Provider{stubProvider{source: weather.SourceOpenWeather, temp: 55}}, stubGeocoder{})

	for _, target := range []string{
		"/api/v1/weather",
		"/api/v1/weather?lat=47.6",
		"/api/v1/weather?lat=abc&lon=1",
		"/api/v1/weather?lat=95&lon=1",
		"/api/v1/locations/search",
		"/api/v1/locations/search?q=%20%20",
		"/api/v1/weather/history?lat=47.6&lon=-122.3",
	} {
		resp, _ := get(t, app, target)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestWeatherReturnsBestAndFailures(t *testing.T) {
	app := newTestApp([]weather.Provider{
		stubProvider{source: weather.SourceOpenWeather, temp: 55},
		stubProvider{source: weather.SourceWeatherAPI, temp: 56},
		stubProvider{source: weather.SourceAccuWeather, err: errors.New("timeout")},
	}, stubGeocoder{})

	resp, body := get(t, app, "/api/v1/weather?lat=47.6062&lon=-122.3321")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, body)
	}

	var payload struct {
		All        []weather.Record `json:"all"`
		Best       weather.Record   `json:"best"`
		Aggregated weather.Record   `json:"aggregated"`
		Failures   []failureView    `json:"failures"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.All) != 2 || payload.Best.Source != weather.SourceOpenWeather || payload.Aggregated.Source != weather.SourceOpenWeather {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Best.Accuracy != 0.94 {
		t.Fatalf("expected best accuracy 0.94, got %v", payload.Best.Accuracy)
	}
	if len(payload.Failures) != 1 || payload.Failures[0].Source != weather.SourceAccuWeather {
		t.Fatalf("unexpected failures: %+v", payload.Failures)
	}
}

func TestWeatherByLocationAndHistory(t *testing.T) {
	app := newTestApp([]weather.Provider{stubProvider{source: weather.SourceWeatherAPI, temp: 56}}, stubGeocoder{})

	resp, body := get(t, app, "/api/v1/weather?location=Seattle")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, body)
	}

	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	resp, body = get(t, app, "/api/v1/weather/history?lat=47.6062&lon=-122.3321&from="+from+"&to="+to)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, body)
	}
	var payload struct {
		Records []weather.Record `json:"records"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Records) != 1 {
		t.Fatalf("expected one persisted record, got %d", len(payload.Records))
	}

	resp, _ = get(t, app, "/api/v1/weather/history?lat=10&lon=10&from="+from+"&to="+to)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestWeatherAllSourcesFailed(t *testing.T) {
	app := newTestApp([]weather.Provider{
		stubProvider{source: weather.SourceOpenWeather, err: errors.New("boom")},
		stubProvider{source: weather.SourceWeatherAPI, err: errors.New("boom")},
	}, stubGeocoder{})

	resp, _ := get(t, app, "/api/v1/weather?lat=47.6062&lon=-122.3321")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}
}

func TestLocationSearchFallsBackToCache(t *testing.T) {
	app := newTestApp(nil, stubGeocoder{err: errors.New("geocoder down")})

	resp, body := get(t, app, "/api/v1/locations/search?q=Paris")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var payload weather.Resolution
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.FromCache || payload.Locations == nil || len(payload.Locations) != 0 {
		t.Fatalf("expected empty cache fallback, got %+v", payload)
	}

	resp, _ = get(t, app, "/api/v1/weather?location=Paris")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := fiber.New()
	reg := prometheus.NewRegistry()
	RegisterMetrics(app, metrics.NewCollector("weather_ranker", reg), reg)
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	if resp, _ := get(t, app, "/ping"); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp, body := get(t, app, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if !strings.Contains(string(body), `weather_ranker_api_requests_total{method="GET",route="/ping",status="200"} 1`) {
		t.Fatalf("expected /ping to be counted, got:\n%s", body)
	}
}
