package weather

import (
	"context"
	"time"
)

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, AccuWeather).
// Fetch returns a Record with Accuracy unset, or a *ProviderError.
type Provider interface {
	Source() Source
	Fetch(ctx context.Context, coords Coordinates) (Record, error)
}

// Geocoder resolves free text to candidate locations.
type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]Location, error)
}

// LocationStore is the location cache contract.
type LocationStore interface {
	// Find returns a cached location within tolerance of lat/lon, or ErrNotFound.
	Find(ctx context.Context, lat, lon, tolerance float64) (Location, error)
	// Save inserts or updates a location; ErrDuplicateLocation when nothing changed.
	Save(ctx context.Context, loc Location) (Location, error)
	// Search returns locations whose name, country or state contains text (case-insensitive).
	Search(ctx context.Context, text string) ([]Location, error)
}

// RecordStore persists weather records.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec Record) (Record, error)
	Range(ctx context.Context, coords Coordinates, from, to time.Time) ([]Record, error)
}

// AccuracyHistory is a pluggable store of learned per-source accuracy.
// ok is false when no history exists for the pair.
type AccuracyHistory interface {
	Lookup(ctx context.Context, source Source, location string) (score float64, ok bool, err error)
}

// Recorder receives aggregation side effects for observability. Implementations must be
// safe for concurrent use.
type Recorder interface {
	ObserveProvider(source Source, elapsed time.Duration, err error)
	ObserveAggregate(successes, failures int)
	ObserveGeocodeFallback()
}

type nopRecorder struct{}

func (nopRecorder) ObserveProvider(Source, time.Duration, error) {}
func (nopRecorder) ObserveAggregate(int, int)                    {}
func (nopRecorder) ObserveGeocodeFallback()                      {}
