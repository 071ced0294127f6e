package weather

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAllSourcesFailed is returned when no provider produced a record.
	ErrAllSourcesFailed = errors.New("all weather sources failed")
	// ErrGeocodingUnavailable wraps a geocoder failure that was recovered from the cache.
	ErrGeocodingUnavailable = errors.New("geocoding provider unavailable")
	// ErrDuplicateLocation is returned by a LocationStore when the location is already cached.
	ErrDuplicateLocation = errors.New("location already cached")
	// ErrNotFound is returned by stores when nothing matches.
	ErrNotFound = errors.New("not found")
	// ErrNoRecords is returned by Select on empty input.
	ErrNoRecords = errors.New("no records to select from")
	// ErrLocationNotFound is returned when a free-text query resolves to nothing.
	ErrLocationNotFound = errors.New("location not found")
	// ErrInvalidQuery marks caller input errors.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrMissingAPIKey is returned by adapters that were configured without credentials.
	ErrMissingAPIKey = errors.New("api key is not configured")
	// ErrUnknownSource marks a record whose source is not one of KnownSources.
	ErrUnknownSource = errors.New("unknown weather source")
)

// ProviderError reports a single provider failure. It is recovered by the Aggregator.
type ProviderError struct {
	Source Source
	Op     string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("provider %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err unless it already is a ProviderError.
func NewProviderError(source Source, op string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Source: source, Op: op, Err: err}
}

// AllSourcesFailedError carries every provider failure of one aggregation cycle.
type AllSourcesFailedError struct {
	Failures []*ProviderError
}

func (e *AllSourcesFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	if len(parts) == 0 {
		return ErrAllSourcesFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrAllSourcesFailed, strings.Join(parts, "; "))
}

func (e *AllSourcesFailedError) Is(target error) bool {
	return target == ErrAllSourcesFailed
}
