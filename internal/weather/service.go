package weather

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Service orchestrates resolution, aggregation and persistence for callers
// (HTTP handlers and the scheduler).
type Service struct {
	aggregator *Aggregator
	resolver   *Resolver
	records    RecordStore
}

// NewService creates a new Service. records may be nil to disable persistence.
func NewService(aggregator *Aggregator, resolver *Resolver, records RecordStore) *Service {
	return &Service{
		aggregator: aggregator,
		resolver:   resolver,
		records:    records,
	}
}

// Search resolves free text to candidate locations.
func (s *Service) Search(ctx context.Context, query string) Resolution {
	return s.resolver.Resolve(ctx, query)
}

// Weather aggregates every provider for the query. Text-only queries are resolved
// first and the top geocoding result is used.
func (s *Service) Weather(ctx context.Context, q Query) (Result, error) {
	coords, err := s.coordinatesFor(ctx, q)
	if err != nil {
		return Result{}, err
	}

	log.Printf("DEBUG: Weather called for %s with %d providers", coords.Key(), len(s.aggregator.providers))

	res, err := s.aggregator.Aggregate(ctx, coords)
	if err != nil {
		return res, err
	}

	s.persist(ctx, res.All)
	return res, nil
}

// History returns persisted records for the coordinates between from and to (inclusive).
func (s *Service) History(ctx context.Context, coords Coordinates, from, to time.Time) ([]Record, error) {
	if err := coords.Validate(); err != nil {
		return nil, err
	}
	if s.records == nil {
		return nil, ErrNotFound
	}
	return s.records.Range(ctx, coords, from, to)
}

func (s *Service) coordinatesFor(ctx context.Context, q Query) (Coordinates, error) {
	if q.HasCoordinates() {
		c := Coordinates{Lat: *q.Lat, Lon: *q.Lon}
		return c, c.Validate()
	}
	if q.Location == "" {
		return Coordinates{}, fmt.Errorf("%w: coordinates or location required", ErrInvalidQuery)
	}

	res := s.resolver.Resolve(ctx, q.Location)
	if len(res.Locations) == 0 {
		return Coordinates{}, fmt.Errorf("%w: %q", ErrLocationNotFound, q.Location)
	}
	c := res.Locations[0].Coordinates()
	return c, c.Validate()
}

// persist stores each record; failures are logged, never returned.
func (s *Service) persist(ctx context.Context, records []Record) {
	if s.records == nil {
		return
	}
	for _, r := range records {
		if _, err := s.records.SaveRecord(ctx, r); err != nil {
			log.Printf("ERROR: failed to persist %s record for %s: %v", r.Source, r.Coordinates().Key(), err)
		}
	}
}
