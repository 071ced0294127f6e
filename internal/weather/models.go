package weather

import (
	"fmt"
	"math"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Source identifies one of the upstream weather providers.
type Source string

const (
	SourceOpenWeather Source = "openweathermap"
	SourceWeatherAPI  Source = "weatherapi"
	SourceAccuWeather Source = "accuweather"
)

// KnownSources lists every provider identifier a Record may carry.
var KnownSources = []Source{SourceOpenWeather, SourceWeatherAPI, SourceAccuWeather}

// Valid reports whether s is one of the known provider identifiers.
func (s Source) Valid() bool {
	for _, k := range KnownSources {
		if s == k {
			return true
		}
	}
	return false
}

// ProximityTolerance is the max lat/lon delta (degrees) for two points to be the same place.
const ProximityTolerance = 0.01

// Location is a named geographic place as returned by a geocoder or the location cache.
type Location struct {
	Name    string  `json:"name" db:"name"`
	Lat     float64 `json:"lat" db:"lat"`
	Lon     float64 `json:"lon" db:"lon"`
	Country string  `json:"country,omitempty" db:"country"`
	State   string  `json:"state,omitempty" db:"state"`
}

// Near reports whether the location lies within ProximityTolerance of lat/lon on both axes.
func (l Location) Near(lat, lon float64) bool {
	return l.Within(lat, lon, ProximityTolerance)
}

// Within is Near with an explicit tolerance; a non-positive tolerance means ProximityTolerance.
func (l Location) Within(lat, lon, tolerance float64) bool {
	if tolerance <= 0 {
		tolerance = ProximityTolerance
	}
	return math.Abs(l.Lat-lat) < tolerance && math.Abs(l.Lon-lon) < tolerance
}

// SameDetails reports whether both locations carry the same descriptive fields.
func (l Location) SameDetails(other Location) bool {
	return l.Name == other.Name && l.Country == other.Country && l.State == other.State
}

// Coordinates returns the location's point.
func (l Location) Coordinates() Coordinates {
	return Coordinates{Lat: l.Lat, Lon: l.Lon}
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinates are within range.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidQuery, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidQuery, c.Lon)
	}
	return nil
}

// Key returns a canonical string key for indexing records in stores.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.2f,%.2f", c.Lat, c.Lon)
}

// Current holds the normalized current conditions (imperial units).
type Current struct {
	Temperature   int       `json:"temperature"`
	FeelsLike     int       `json:"feelsLike"`
	Humidity      int       `json:"humidity"`
	WindSpeed     int       `json:"windSpeed"`
	WindDirection int       `json:"windDirection"`
	Visibility    int       `json:"visibility"`
	Pressure      float64   `json:"pressure"`
	UVIndex       int       `json:"uvIndex"`
	Condition     Condition `json:"condition"`
	Description   string    `json:"description"`
}

// HourlyPoint is a single step of an hourly forecast strip.
type HourlyPoint struct {
	Time              time.Time `json:"time"`
	Label             string    `json:"label"`
	Condition         Condition `json:"condition"`
	PrecipProbability int       `json:"precipProbability"`
	Temperature       int       `json:"temperature"`
	Icon              string    `json:"icon"`
}

// DailyPoint is a single day of a daily forecast strip.
type DailyPoint struct {
	Date              time.Time `json:"date"`
	Label             string    `json:"label"`
	Condition         Condition `json:"condition"`
	Description       string    `json:"description"`
	PrecipProbability int       `json:"precipProbability"`
	High              int       `json:"high"`
	Low               int       `json:"low"`
	Icon              string    `json:"icon"`
}

const (
	MaxHourlyPoints = 24
	MaxDailyPoints  = 10
)

// Record is the canonical, provider-agnostic weather result produced by an adapter.
// Hourly and Daily are ordered by time ascending.
type Record struct {
	ID        string        `json:"id,omitempty"`
	Source    Source        `json:"source"`
	Location  string        `json:"location"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Current   Current       `json:"current"`
	Hourly    []HourlyPoint `json:"hourly"`
	Daily     []DailyPoint  `json:"daily"`
	Accuracy  float64       `json:"accuracy"`
	FetchedAt time.Time     `json:"fetchedAt"` // always UTC
}

// WithAccuracy returns a copy of r annotated with the given score.
func (r Record) WithAccuracy(score float64) Record {
	out := r
	out.Hourly = make([]HourlyPoint, len(r.Hourly))
	copy(out.Hourly, r.Hourly)
	out.Daily = make([]DailyPoint, len(r.Daily))
	copy(out.Daily, r.Daily)
	out.Accuracy = score
	return out
}

// Coordinates returns the point the record was fetched for.
func (r Record) Coordinates() Coordinates {
	return Coordinates{Lat: r.Latitude, Lon: r.Longitude}
}

// Query identifies what the caller wants weather for: coordinates, or free text to resolve.
type Query struct {
	Lat      *float64
	Lon      *float64
	Location string
}

// HasCoordinates reports whether both coordinates were supplied.
func (q Query) HasCoordinates() bool {
	return q.Lat != nil && q.Lon != nil
}
