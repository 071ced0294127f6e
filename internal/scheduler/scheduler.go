package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-ranker/internal/weather"
)

// Refresher is the part of weather.Service the scheduler drives.
type Refresher interface {
	Weather(ctx context.Context, q weather.Query) (weather.Result, error)
}

// Scheduler periodically aggregates weather for tracked locations so their
// records are persisted.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Refresher
	locations []string
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler.
func New(locations []string, interval time.Duration, service Refresher) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		locations: locations,
		interval:  interval,
		timeout:   30 * time.Second,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce refreshes every tracked location concurrently and waits for all of them.
func (s *Scheduler) RunOnce() {
	log.Println("scheduler: running weather refresh job")

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		wg.Add(1)
		go func(loc string) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			res, err := s.service.Weather(ctx, weather.Query{Location: loc})
			if err != nil {
				log.Printf("scheduler: refresh failed for %q: %v", loc, err)
				return
			}
			log.Printf("scheduler: refreshed %q from %d sources, best=%s", loc, len(res.All), res.Best.Source)
		}(loc)
	}
	wg.Wait()
	log.Println("scheduler: completed weather refresh job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
