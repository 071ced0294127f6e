package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ranker/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a given query.
	ErrNotFound = weather.ErrNotFound
)

// RecordHistory holds a time-ordered list of weather records for one coordinate key.
type RecordHistory struct {
	Records []weather.Record
}

// MemoryStore is a concurrency-safe in-memory implementation of both the
// record store and the location cache.
type MemoryStore struct {
	mu sync.RWMutex

	// key: coordinates key, value: history
	records map[string]*RecordHistory

	locations []weather.Location

	// retention configuration
	maxHistory int           // max number of records per coordinate key
	maxAge     time.Duration // optional max age for records

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*RecordHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveRecord appends a record for its coordinates, assigns an id and enforces retention.
func (s *MemoryStore) SaveRecord(_ context.Context, rec weather.Record) (weather.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	key := rec.Coordinates().Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.records[key]
	if !ok {
		history = &RecordHistory{}
		s.records[key] = history
	}

	history.Records = append(history.Records, rec)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Records) > s.maxHistory {
		over := len(history.Records) - s.maxHistory
		history.Records = history.Records[over:]
	}

	// Enforce retention by age. Records arrive in save order, not FetchedAt order.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		kept := history.Records[:0]
		for _, r := range history.Records {
			if !r.FetchedAt.Before(cutoff) {
				kept = append(kept, r)
			}
		}
		history.Records = kept
	}

	return rec, nil
}

// Range returns all records for the coordinates between from and to (inclusive).
func (s *MemoryStore) Range(_ context.Context, coords weather.Coordinates, from, to time.Time) ([]weather.Record, error) {
	key := coords.Key()

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.records[key]
	if !ok || len(history.Records) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.Record
	for _, rec := range history.Records {
		if !rec.FetchedAt.Before(from) && !rec.FetchedAt.After(to) {
			result = append(result, rec)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}

// Find returns the first cached location within tolerance of lat/lon.
func (s *MemoryStore) Find(_ context.Context, lat, lon, tolerance float64) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexNear(lat, lon, tolerance); i >= 0 {
		return s.locations[i], nil
	}
	return weather.Location{}, ErrNotFound
}

// Save inserts a new location, updates a nearby one whose details differ, or
// reports ErrDuplicateLocation when an identical nearby entry exists.
func (s *MemoryStore) Save(_ context.Context, loc weather.Location) (weather.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexNear(loc.Lat, loc.Lon, weather.ProximityTolerance); i >= 0 {
		if s.locations[i].SameDetails(loc) {
			return s.locations[i], weather.ErrDuplicateLocation
		}
		s.locations[i] = loc
		return loc, nil
	}

	s.locations = append(s.locations, loc)
	return loc, nil
}

// Search returns locations whose name, country or state contains text, case-insensitively.
func (s *MemoryStore) Search(_ context.Context, text string) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []weather.Location{}
	for _, loc := range s.locations {
		if loc.MatchesText(text) {
			result = append(result, loc)
		}
	}
	return result, nil
}

func (s *MemoryStore) indexNear(lat, lon, tolerance float64) int {
	for i, loc := range s.locations {
		if loc.Within(lat, lon, tolerance) {
			return i
		}
	}
	return -1
}
