package weather

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultProviderTimeout bounds a single provider call when none is configured.
const DefaultProviderTimeout = 8 * time.Second

// Result is the outcome of one aggregation cycle.
type Result struct {
	All []Record `json:"all"`
	// Best is the highest-scored record; ties go to the earliest configured provider.
	Best Record `json:"best"`
	// Aggregated currently equals Best; there is no blending step.
	Aggregated Record           `json:"aggregated"`
	Failures   []*ProviderError `json:"-"`
}

// Aggregator fans out to every provider concurrently and ranks the successes.
type Aggregator struct {
	providers []Provider
	scorer    Scorer
	timeout   time.Duration
	recorder  Recorder
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithProviderTimeout sets the per-provider deadline.
func WithProviderTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithRecorder sets the observability hook.
func WithRecorder(r Recorder) AggregatorOption {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// NewAggregator creates an Aggregator. Provider order is the tie-break order.
func NewAggregator(providers []Provider, scorer Scorer, opts ...AggregatorOption) *Aggregator {
	if scorer == nil {
		scorer = NewStaticScorer()
	}
	a := &Aggregator{
		providers: providers,
		scorer:    scorer,
		timeout:   DefaultProviderTimeout,
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type outcome struct {
	record Record
	err    *ProviderError
}

// Aggregate fetches from all providers, waits for every one of them to settle and
// selects the best record. It fails with ErrAllSourcesFailed only if nothing succeeded.
func (a *Aggregator) Aggregate(ctx context.Context, coords Coordinates) (Result, error) {
	if err := coords.Validate(); err != nil {
		return Result{}, err
	}
	if len(a.providers) == 0 {
		log.Printf("ERROR: aggregator: no providers configured")
		return Result{}, &AllSourcesFailedError{}
	}

	outcomes := make([]outcome, len(a.providers))

	var wg sync.WaitGroup
	for i, p := range a.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			outcomes[i] = a.fetchOne(ctx, p, coords)
		}(i, p)
	}
	wg.Wait()

	var (
		records  []Record
		failures []*ProviderError
	)
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, o.err)
			continue
		}
		records = append(records, o.record)
	}

	a.recorder.ObserveAggregate(len(records), len(failures))

	if len(records) == 0 {
		log.Printf("aggregator: no successful provider records for %s", coords.Key())
		return Result{Failures: failures}, &AllSourcesFailedError{Failures: failures}
	}

	scored := make([]Record, 0, len(records))
	for _, r := range records {
		scored = append(scored, r.WithAccuracy(a.scorer.Score(ctx, r.Source, r.Location)))
	}

	best, err := Select(scored)
	if err != nil {
		return Result{}, err
	}

	return Result{
		All:        scored,
		Best:       best,
		Aggregated: best,
		Failures:   failures,
	}, nil
}

type fetchResult struct {
	record Record
	err    error
}

// fetchOne runs a single provider under its own deadline. A provider that ignores
// cancellation is abandoned once the deadline passes.
func (a *Aggregator) fetchOne(ctx context.Context, p Provider, coords Coordinates) (out outcome) {
	source := p.Source()
	start := time.Now()

	defer func() {
		var err error
		if out.err != nil {
			err = out.err
			// Log and continue; we want partial success when possible.
			log.Printf("aggregator: provider %s failed for %s: %v", source, coords.Key(), out.err)
		}
		a.recorder.ObserveProvider(source, time.Since(start), err)
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		rec, err := p.Fetch(ctx, coords)
		done <- fetchResult{record: rec, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = fetchResult{err: fmt.Errorf("provider stalled: %w", ctx.Err())}
	}

	if res.err != nil {
		return outcome{err: NewProviderError(source, "fetch", res.err)}
	}
	rec := res.record
	if !rec.Source.Valid() {
		return outcome{err: NewProviderError(source, "validate", fmt.Errorf("%w: %q", ErrUnknownSource, rec.Source))}
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}
	return outcome{record: rec}
}

// Select returns the record with the highest accuracy. Ties keep the first one.
func Select(records []Record) (Record, error) {
	if len(records) == 0 {
		return Record{}, ErrNoRecords
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.Accuracy > best.Accuracy {
			best = r
		}
	}
	return best, nil
}
