package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-ranker/internal/weather"
)

// OpenWeatherGeocoder resolves free text with OpenWeatherMap's direct geocoding API.
type OpenWeatherGeocoder struct {
	apiKey string
	limit  int
	client client
}

func NewOpenWeatherGeocoder(httpClient *http.Client, apiKey string, opts ...Option) *OpenWeatherGeocoder {
	return &OpenWeatherGeocoder{
		apiKey: apiKey,
		limit:  5,
		client: newClient(httpClient, buildOptions("openweather-geocoding", openWeatherBaseURL, opts)),
	}
}

func (g *OpenWeatherGeocoder) Geocode(ctx context.Context, query string) ([]weather.Location, error) {
	if g.apiKey == "" {
		return nil, weather.ErrMissingAPIKey
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(g.limit))
	values.Set("appid", g.apiKey)

	var payload []struct {
		Name    string  `json:"name"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		Country string  `json:"country"`
		State   string  `json:"state"`
	}
	if err := g.client.getJSON(ctx, "/geo/1.0/direct", values, &payload); err != nil {
		return nil, fmt.Errorf("openweather geocoding: %w", err)
	}

	locs := make([]weather.Location, 0, len(payload))
	for _, p := range payload {
		locs = append(locs, weather.Location{
			Name:    p.Name,
			Lat:     p.Lat,
			Lon:     p.Lon,
			Country: p.Country,
			State:   p.State,
		})
	}
	return locs, nil
}

// geocoderMu guards writes to the geocoder package's global API key.
var geocoderMu sync.Mutex

// GoogleGeocoder resolves free text with the Google Geocoding API through
// github.com/kelvins/geocoder. It returns at most one location.
//
// The library takes no context, uses a client without a timeout and indexes
// into the result list unchecked, so every call runs in its own goroutine with
// panics converted to errors and the caller's context as the deadline.
type GoogleGeocoder struct {
	apiKey string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey}
}

type googleResult struct {
	loc weather.Location
	err error
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) ([]weather.Location, error) {
	if g.apiKey == "" {
		return nil, weather.ErrMissingAPIKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	geocoderMu.Lock()
	if geocoder.ApiKey != g.apiKey {
		geocoder.ApiKey = g.apiKey
	}
	geocoderMu.Unlock()

	done := make(chan googleResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- googleResult{err: fmt.Errorf("google geocoding: panic: %v", r)}
			}
		}()
		loc, err := googleLookup(query)
		done <- googleResult{loc: loc, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return []weather.Location{res.loc}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("google geocoding: %w", ctx.Err())
	}
}

// googleLookup does the forward lookup, then a best-effort reverse lookup for
// the descriptive fields. The library concatenates the address into the URL,
// so the query is escaped here.
func googleLookup(query string) (weather.Location, error) {
	point, err := geocoder.Geocoding(geocoder.Address{City: url.QueryEscape(strings.TrimSpace(query))})
	if err != nil {
		return weather.Location{}, fmt.Errorf("google geocoding: %w", err)
	}
	if point.Latitude == 0 && point.Longitude == 0 {
		return weather.Location{}, errors.New("google geocoding: no results")
	}

	loc := weather.Location{
		Name: strings.TrimSpace(query),
		Lat:  point.Latitude,
		Lon:  point.Longitude,
	}

	if addrs := googleReverse(point); len(addrs) > 0 {
		a := addrs[0]
		if a.City != "" {
			loc.Name = a.City
		}
		loc.State = a.State
		loc.Country = a.Country
	}
	return loc, nil
}

// googleReverse returns nil when the reverse lookup fails or panics; the
// coordinates are still usable without it.
func googleReverse(point geocoder.Location) (addrs []geocoder.Address) {
	defer func() {
		if r := recover(); r != nil {
			addrs = nil
		}
	}()
	addrs, err := geocoder.GeocodingReverse(point)
	if err != nil {
		return nil
	}
	return addrs
}
