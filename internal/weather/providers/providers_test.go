package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-ranker/internal/weather"
)

var seattle = weather.Coordinates{Lat: 47.6062, Lon: -122.3321}

// jsonRoutes serves canned JSON bodies by path and 404s everything else.
func jsonRoutes(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const owmCurrentBody = `{
  "dt": 1710072000,
  "name": "Seattle",
  "weather": [{"main": "Clouds", "description": "broken clouds", "icon": "04d"}],
  "main": {"temp": 300, "feels_like": 300, "pressure": 1012.5, "humidity": 71},
  "visibility": 10000,
  "wind": {"speed": 10, "deg": 200},
  "sys": {"country": "US"}
}`

const owmForecastBody = `{
  "city": {"name": "Seattle", "country": "US", "timezone": 0},
  "list": [
    {"dt": 1710082800, "main": {"temp": 295, "temp_min": 290, "temp_max": 298}, "weather": [{"main": "Clear", "description": "clear sky", "icon": "01d"}], "pop": 0.2},
    {"dt": 1710072000, "main": {"temp": 290, "temp_min": 285, "temp_max": 295}, "weather": [{"main": "Rain", "description": "light rain", "icon": "10d"}], "pop": 0.5},
    {"dt": 1710158400, "main": {"temp": 285, "temp_min": 285, "temp_max": 290}, "weather": [{"main": "Snow", "description": "snow", "icon": "13d"}], "pop": 0}
  ]
}`

func TestOpenWeatherNormalizesToImperial(t *testing.T) {
	srv := jsonRoutes(t, map[string]string{
		"/data/2.5/weather":  owmCurrentBody,
		"/data/2.5/forecast": owmForecastBody,
	})
	p := NewOpenWeatherProvider(srv.Client(), "key", WithBaseURL(srv.URL))

	rec, err := p.Fetch(context.Background(), seattle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Source != weather.SourceOpenWeather || rec.Location != "Seattle, US" {
		t.Fatalf("unexpected identity: %s %q", rec.Source, rec.Location)
	}
	cur := rec.Current
	if cur.Temperature != 80 || cur.WindSpeed != 22 || cur.Visibility != 6 || cur.Humidity != 71 {
		t.Fatalf("unexpected current conditions: %+v", cur)
	}
	if cur.Pressure != 1012.5 {
		t.Fatalf("expected pressure kept as supplied, got %v", cur.Pressure)
	}
	if cur.Condition != weather.ConditionCloudy {
		t.Fatalf("expected cloudy, got %s", cur.Condition)
	}

	if len(rec.Hourly) != 3 {
		t.Fatalf("expected 3 hourly points, got %d", len(rec.Hourly))
	}
	for i := 1; i < len(rec.Hourly); i++ {
		if rec.Hourly[i].Time.Before(rec.Hourly[i-1].Time) {
			t.Fatalf("hourly points out of order")
		}
	}
	if rec.Hourly[0].Label != "12 PM" || rec.Hourly[0].PrecipProbability != 50 {
		t.Fatalf("unexpected first hourly point: %+v", rec.Hourly[0])
	}

	if len(rec.Daily) != 2 {
		t.Fatalf("expected 2 daily points, got %d", len(rec.Daily))
	}
	day := rec.Daily[0]
	if day.High != 77 || day.Low != 53 || day.PrecipProbability != 50 || day.Condition != weather.ConditionRain {
		t.Fatalf("unexpected first day: %+v", day)
	}
	if day.Label != "Sun" {
		t.Fatalf("expected Sun, got %q", day.Label)
	}
}

func TestOpenWeatherRejectsMissingTemperature(t *testing.T) {
	srv := jsonRoutes(t, map[string]string{
		"/data/2.5/weather":  `{"name": "Nowhere", "main": {}}`,
		"/data/2.5/forecast": owmForecastBody,
	})
	p := NewOpenWeatherProvider(srv.Client(), "key", WithBaseURL(srv.URL))

	_, err := p.Fetch(context.Background(), seattle)
	if !errors.Is(err, errMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

const weatherAPIBody = `{
  "location": {"name": "Seattle", "region": "Washington", "country": "USA", "tz_id": "UTC", "localtime_epoch": 1710073800},
  "current": {
    "last_updated_epoch": 1710073800,
    "temp_f": 54.6, "feelslike_f": 52.2, "humidity": 80,
    "wind_mph": 8.1, "wind_degree": 190, "vis_miles": 9.0,
    "pressure_mb": 1012.5, "uv": 2.0,
    "condition": {"text": "Partly cloudy", "icon": "//cdn.weatherapi.com/weather/64x64/day/116.png"}
  },
  "forecast": {"forecastday": [{
    "date": "2024-03-10",
    "day": {"maxtemp_f": 57.9, "mintemp_f": 44.2, "daily_chance_of_rain": 80, "daily_chance_of_snow": 0,
            "condition": {"text": "Patchy rain possible", "icon": "//cdn.weatherapi.com/weather/64x64/day/176.png"}},
    "hour": [
      {"time_epoch": 1710068400, "temp_f": 50.0, "chance_of_rain": 10, "chance_of_snow": 0, "condition": {"text": "Cloudy", "icon": ""}},
      {"time_epoch": 1710075600, "temp_f": 55.4, "chance_of_rain": 20, "chance_of_snow": 30, "condition": {"text": "Light snow", "icon": ""}},
      {"time_epoch": 1710072000, "temp_f": 54.4, "chance_of_rain": 30, "chance_of_snow": 0, "condition": {"text": "Light rain shower", "icon": ""}}
    ]
  }]}
}`

func TestWeatherAPIUsesImperialFields(t *testing.T) {
	srv := jsonRoutes(t, map[string]string{"/forecast.json": weatherAPIBody})
	p := NewWeatherAPIProvider(srv.Client(), "key", WithBaseURL(srv.URL))

	rec, err := p.Fetch(context.Background(), seattle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Location != "Seattle, Washington, USA" {
		t.Fatalf("unexpected location %q", rec.Location)
	}
	if rec.Current.Temperature != 55 || rec.Current.Pressure != 1012.5 || rec.Current.Condition != weather.ConditionCloudy {
		t.Fatalf("unexpected current conditions: %+v", rec.Current)
	}

	// The 11:00 hour is before the current local hour and is dropped.
	if len(rec.Hourly) != 2 {
		t.Fatalf("expected 2 hourly points, got %+v", rec.Hourly)
	}
	if rec.Hourly[0].Label != "12 PM" || rec.Hourly[0].Condition != weather.ConditionRain || rec.Hourly[0].PrecipProbability != 30 {
		t.Fatalf("unexpected first hourly point: %+v", rec.Hourly[0])
	}
	if rec.Hourly[1].Condition != weather.ConditionSnow || rec.Hourly[1].PrecipProbability != 30 {
		t.Fatalf("unexpected second hourly point: %+v", rec.Hourly[1])
	}

	if len(rec.Daily) != 1 {
		t.Fatalf("expected 1 daily point, got %d", len(rec.Daily))
	}
	day := rec.Daily[0]
	if day.High != 58 || day.Low != 44 || day.PrecipProbability != 80 || day.Condition != weather.ConditionRain {
		t.Fatalf("unexpected day: %+v", day)
	}
	if day.Icon != "https://cdn.weatherapi.com/weather/64x64/day/176.png" {
		t.Fatalf("expected absolute icon url, got %q", day.Icon)
	}
}

// 07:10 UTC is 12:40 in Kolkata (+05:30); the 12:00 local hour starts at 06:30 UTC.
const weatherAPIKolkataBody = `{
  "location": {"name": "Kolkata", "region": "West Bengal", "country": "India", "tz_id": "Asia/Kolkata", "localtime_epoch": 1710054600},
  "current": {"last_updated_epoch": 1710054600, "temp_f": 91.4, "condition": {"text": "Sunny", "icon": ""}},
  "forecast": {"forecastday": [{
    "date": "2024-03-10",
    "day": {"maxtemp_f": 95.0, "mintemp_f": 75.0, "condition": {"text": "Sunny", "icon": ""}},
    "hour": [
      {"time_epoch": 1710048600, "temp_f": 88.0, "condition": {"text": "Sunny", "icon": ""}},
      {"time_epoch": 1710052200, "temp_f": 90.0, "condition": {"text": "Sunny", "icon": ""}},
      {"time_epoch": 1710055800, "temp_f": 92.0, "condition": {"text": "Sunny", "icon": ""}}
    ]
  }]}
}`

func TestWeatherAPIKeepsCurrentHourInHalfHourZones(t *testing.T) {
	srv := jsonRoutes(t, map[string]string{"/forecast.json": weatherAPIKolkataBody})
	p := NewWeatherAPIProvider(srv.Client(), "key", WithBaseURL(srv.URL))

	rec, err := p.Fetch(context.Background(), weather.Coordinates{Lat: 22.5726, Lon: 88.3639})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Hourly) != 2 {
		t.Fatalf("expected the 12 PM and 1 PM hours, got %+v", rec.Hourly)
	}
	if rec.Hourly[0].Label != "12 PM" || rec.Hourly[0].Temperature != 90 {
		t.Fatalf("expected current local hour first, got %+v", rec.Hourly[0])
	}
}

const accuLocationBody = `{
  "Key": "351409",
  "LocalizedName": "Seattle",
  "AdministrativeArea": {"ID": "WA", "LocalizedName": "Washington"},
  "Country": {"ID": "US", "LocalizedName": "United States"},
  "TimeZone": {"Name": "UTC"}
}`

const accuCurrentBody = `[{
  "EpochTime": 1710072000,
  "WeatherText": "Mostly cloudy",
  "WeatherIcon": 6,
  "Temperature": {"Metric": {"Value": 12.8}, "Imperial": {"Value": 55.0}},
  "RealFeelTemperature": {"Metric": {"Value": 11.0}, "Imperial": {"Value": 52.0}},
  "RelativeHumidity": 77,
  "Wind": {"Direction": {"Degrees": 180}, "Speed": {"Metric": {"Value": 14.8}, "Imperial": {"Value": 9.2}}},
  "UVIndex": 1,
  "Visibility": {"Metric": {"Value": 16.1}, "Imperial": {"Value": 10.0}},
  "Pressure": {"Metric": {"Value": 1013.0}, "Imperial": {"Value": 29.91}}
}]`

const accuDailyBody = `{"DailyForecasts": [
  {"EpochDate": 1710158400, "Temperature": {"Minimum": {"Value": 41}, "Maximum": {"Value": 54}},
   "Day": {"Icon": 12, "IconPhrase": "Showers", "LongPhrase": "Periods of rain", "PrecipitationProbability": 70}},
  {"EpochDate": 1710072000, "Temperature": {"Minimum": {"Value": 43}, "Maximum": {"Value": 56}},
   "Day": {"Icon": 3, "IconPhrase": "Partly sunny", "LongPhrase": "Partly sunny", "PrecipitationProbability": 10}}
]}`

func TestAccuWeatherResolvesLocationKey(t *testing.T) {
	srv := jsonRoutes(t, map[string]string{
		"/locations/v1/cities/geoposition/search": accuLocationBody,
		"/currentconditions/v1/351409":            accuCurrentBody,
		"/forecasts/v1/daily/5day/351409":         accuDailyBody,
	})
	p := NewAccuWeatherProvider(srv.Client(), "key", WithBaseURL(srv.URL))

	rec, err := p.Fetch(context.Background(), seattle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Location != "Seattle, WA, US" {
		t.Fatalf("unexpected location %q", rec.Location)
	}
	if rec.Current.Temperature != 55 || rec.Current.Pressure != 1013 || rec.Current.Condition != weather.ConditionCloudy {
		t.Fatalf("unexpected current conditions: %+v", rec.Current)
	}
	if rec.Hourly == nil || len(rec.Hourly) != 0 {
		t.Fatalf("expected empty non-nil hourly strip, got %#v", rec.Hourly)
	}
	if len(rec.Daily) != 2 || rec.Daily[0].High != 56 || rec.Daily[1].Condition != weather.ConditionRain {
		t.Fatalf("unexpected daily strip: %+v", rec.Daily)
	}
}

func TestAccuWeatherMissingLocationKey(t *testing.T) {
	srv := jsonRoutes(t, map[string]string{
		"/locations/v1/cities/geoposition/search": `{}`,
	})
	p := NewAccuWeatherProvider(srv.Client(), "key", WithBaseURL(srv.URL))

	_, err := p.Fetch(context.Background(), seattle)
	var pe *weather.ProviderError
	if !errors.As(err, &pe) || pe.Op != "location" {
		t.Fatalf("expected location ProviderError, got %v", err)
	}
}

func TestProvidersRequireAPIKey(t *testing.T) {
	provs := []weather.Provider{
		NewOpenWeatherProvider(http.DefaultClient, ""),
		NewWeatherAPIProvider(http.DefaultClient, ""),
		NewAccuWeatherProvider(http.DefaultClient, ""),
	}
	for _, p := range provs {
		_, err := p.Fetch(context.Background(), seattle)
		if !errors.Is(err, weather.ErrMissingAPIKey) {
			t.Errorf("%s: expected ErrMissingAPIKey, got %v", p.Source(), err)
		}
	}
}

func TestUpstreamStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusInternalServerError, errServerError},
		{http.StatusTooManyRequests, errRateLimited},
		{http.StatusUnauthorized, errUnauthorized},
		{http.StatusNotFound, errUnexpected},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		p := NewWeatherAPIProvider(srv.Client(), "key", WithBaseURL(srv.URL))

		_, err := p.Fetch(context.Background(), seattle)
		var pe *weather.ProviderError
		if !errors.As(err, &pe) || pe.Source != weather.SourceWeatherAPI {
			t.Errorf("status %d: expected ProviderError, got %v", c.status, err)
		}
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: expected %v, got %v", c.status, c.want, err)
		}
		srv.Close()
	}
}

func TestCircuitBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "key",
		WithBaseURL(srv.URL),
		WithBreakerSettings(gobreaker.Settings{
			Timeout: time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 1
			},
		}),
	)

	if _, err := p.Fetch(context.Background(), seattle); !errors.Is(err, errServerError) {
		t.Fatalf("expected server error, got %v", err)
	}
	if _, err := p.Fetch(context.Background(), seattle); !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single upstream hit, got %d", hits.Load())
	}
}

func TestOpenWeatherGeocoder(t *testing.T) {
	srv := jsonRoutes(t, map[string]string{
		"/geo/1.0/direct": `[
		  {"name": "Springfield", "lat": 39.7817, "lon": -89.6501, "country": "US", "state": "Illinois"},
		  {"name": "Springfield", "lat": 37.2153, "lon": -93.2982, "country": "US", "state": "Missouri"}
		]`,
	})
	g := NewOpenWeatherGeocoder(srv.Client(), "key", WithBaseURL(srv.URL))

	locs, err := g.Geocode(context.Background(), "Springfield")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != 2 || locs[1].State != "Missouri" || locs[0].Lat != 39.7817 {
		t.Fatalf("unexpected locations: %+v", locs)
	}

	if _, err := NewOpenWeatherGeocoder(srv.Client(), "").Geocode(context.Background(), "x"); !errors.Is(err, weather.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGoogleGeocoderRequiresKey(t *testing.T) {
	if _, err := NewGoogleGeocoder("").Geocode(context.Background(), "Paris"); !errors.Is(err, weather.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestConditionMapping(t *testing.T) {
	if got := mapWeatherAPICondition("Moderate or heavy rain with thunder"); got != weather.ConditionStorm {
		t.Errorf("expected storm, got %s", got)
	}
	if got := mapWeatherAPICondition("Sunny"); got != weather.ConditionClear {
		t.Errorf("expected clear, got %s", got)
	}
	if got := mapOpenWeatherCondition("Drizzle"); got != weather.ConditionRain {
		t.Errorf("expected rain, got %s", got)
	}
	if got := mapAccuWeatherIcon(22); got != weather.ConditionSnow {
		t.Errorf("expected snow, got %s", got)
	}
	if got := mapAccuWeatherIcon(99); got != weather.ConditionUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
}
