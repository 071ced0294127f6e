package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Resolution is the outcome of resolving a free-text location query.
// Swallowed failures are reported here instead of as errors.
type Resolution struct {
	Query     string     `json:"query"`
	Locations []Location `json:"locations"`
	// FromCache is true when the geocoder failed and the cache answered instead.
	FromCache bool `json:"fromCache"`
	// GeocodeErr wraps ErrGeocodingUnavailable when the fallback path ran.
	GeocodeErr error `json:"-"`
	// Duplicates counts locations the cache already held.
	Duplicates int `json:"-"`
}

// DefaultGeocodeTimeout bounds a single geocoder call when none is configured.
const DefaultGeocodeTimeout = 8 * time.Second

// Resolver turns free text into coordinates via a geocoder, with the cache as fallback.
type Resolver struct {
	geocoder Geocoder
	cache    LocationStore
	recorder Recorder
	timeout  time.Duration
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithGeocodeTimeout sets the deadline for one geocoder call.
func WithGeocodeTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver creates a Resolver. recorder may be nil.
func NewResolver(geocoder Geocoder, cache LocationStore, recorder Recorder, opts ...ResolverOption) *Resolver {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	r := &Resolver{geocoder: geocoder, cache: cache, recorder: recorder, timeout: DefaultGeocodeTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: geocoder errors fall back to a cache search, and an empty
// match set is a valid result.
func (r *Resolver) Resolve(ctx context.Context, query string) Resolution {
	query = strings.TrimSpace(query)
	res := Resolution{Query: query, Locations: []Location{}}
	if query == "" {
		return res
	}

	locs, err := r.geocode(ctx, query)
	if err != nil {
		r.recorder.ObserveGeocodeFallback()
		res.FromCache = true
		res.GeocodeErr = fmt.Errorf("%w: %w", ErrGeocodingUnavailable, err)
		log.Printf("resolver: geocoding %q failed, searching cache: %v", query, err)
		res.Locations = r.searchCache(ctx, query)
		return res
	}

	for _, loc := range locs {
		if r.cache == nil {
			break
		}
		if _, err := r.cache.Save(ctx, loc); err != nil {
			if errors.Is(err, ErrDuplicateLocation) {
				res.Duplicates++
				continue
			}
			log.Printf("resolver: failed to cache location %q: %v", loc.Name, err)
		}
	}
	if locs != nil {
		res.Locations = locs
	}
	return res
}

type geocodeResult struct {
	locs []Location
	err  error
}

// geocode calls the geocoder under the resolver's deadline. A geocoder that
// panics or ignores cancellation is reported as an error.
func (r *Resolver) geocode(ctx context.Context, query string) ([]Location, error) {
	if r.geocoder == nil {
		return nil, errors.New("no geocoder configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan geocodeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- geocodeResult{err: fmt.Errorf("geocoder panic: %v", p)}
			}
		}()
		locs, err := r.geocoder.Geocode(ctx, query)
		done <- geocodeResult{locs: locs, err: err}
	}()

	select {
	case res := <-done:
		return res.locs, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("geocoder stalled: %w", ctx.Err())
	}
}

func (r *Resolver) searchCache(ctx context.Context, query string) []Location {
	if r.cache == nil {
		return []Location{}
	}
	matches, err := r.cache.Search(ctx, query)
	if err != nil {
		log.Printf("resolver: cache search for %q failed: %v", query, err)
		return []Location{}
	}
	if matches == nil {
		return []Location{}
	}
	return matches
}

// MatchesText reports whether text occurs case-insensitively in the name, country or state.
func (l Location) MatchesText(text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return false
	}
	for _, field := range []string{l.Name, l.Country, l.State} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
