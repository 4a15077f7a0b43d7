// Package tides answers the control loop's two questions, "when is the next
// tide?" and "what is the level now?", from NOAA with a local cache.
package tides

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/tide-display/internal/logic"
	"github.com/sweeney/tide-display/internal/noaa"
)

// LevelSource selects where CurrentLevel gets its answer.
type LevelSource string

const (
	LevelPredicted LevelSource = "predicted"
	LevelObserved  LevelSource = "observed"
)

// ParseLevelSource parses a -level-source flag value.
func ParseLevelSource(s string) (LevelSource, error) {
	switch LevelSource(s) {
	case LevelPredicted, LevelObserved:
		return LevelSource(s), nil
	}
	return "", fmt.Errorf("unknown level source %q (want predicted or observed)", s)
}

const (
	// HiLoHours is how much hi/lo data to ask for. The service starts at
	// midnight whatever the requested time, so a day is not always enough.
	HiLoHours = 48

	// DefaultTimeout bounds each call into the network.
	DefaultTimeout = 10 * time.Second
)

// Fetcher is the network side; *noaa.Client implements it.
type Fetcher interface {
	HiLo(ctx context.Context, begin time.Time, hours int) ([]logic.TideEvent, error)
	LevelPredictions(ctx context.Context, day time.Time) ([]float64, error)
	WaterLevel(ctx context.Context) (float64, time.Time, error)
}

// Cache is the persistent side; *store.Store implements it.
type Cache interface {
	SaveTides(station string, begin, end time.Time, events []logic.TideEvent) error
	TidesAfter(station string, t time.Time) ([]logic.TideEvent, error)
	SaveLevels(station string, day time.Time, levels []float64) error
	Levels(station string, day time.Time) ([]float64, error)
}

// Source implements logic.NextTideFunc and logic.LevelFunc. Failures are
// logged and reported as unavailable, never returned.
type Source struct {
	fetcher Fetcher
	cache   Cache
	station string
	levels  LevelSource
	timeout time.Duration
	now     func() time.Time
}

// NewSource creates a Source. cache may be nil.
func NewSource(fetcher Fetcher, cache Cache, station string, levels LevelSource, now func() time.Time) *Source {
	return &Source{
		fetcher: fetcher,
		cache:   cache,
		station: station,
		levels:  levels,
		timeout: DefaultTimeout,
		now:     now,
	}
}

// NextTide returns the first predicted high or low tide strictly after now.
func (s *Source) NextTide() logic.TideEvent {
	now := s.now()

	if s.cache != nil {
		if cached, err := s.cache.TidesAfter(s.station, now); err == nil {
			return cached[0]
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	events, err := s.fetcher.HiLo(ctx, now, HiLoHours)
	if err != nil {
		log.Printf("tides: next tide: %v", err)
		return logic.TideEvent{}
	}

	if s.cache != nil {
		begin := now.UTC().Truncate(24 * time.Hour)
		if err := s.cache.SaveTides(s.station, begin, begin.Add(HiLoHours*time.Hour), events); err != nil {
			log.Printf("tides: caching predictions: %v", err)
		}
	}

	for _, e := range events {
		if e.Time.After(now) {
			return e
		}
	}
	log.Printf("tides: no tide after %s in %d predictions", now.UTC().Format(time.RFC3339), len(events))
	return logic.TideEvent{}
}

// CurrentLevel returns the water level to display now.
func (s *Source) CurrentLevel() (float64, bool) {
	if s.levels == LevelObserved {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		v, _, err := s.fetcher.WaterLevel(ctx)
		if err == nil {
			return v, true
		}
		log.Printf("tides: observed level: %v; using prediction", err)
	}
	return s.predictedLevel(s.now())
}

func (s *Source) predictedLevel(now time.Time) (float64, bool) {
	now = now.UTC()
	day := now.Truncate(24 * time.Hour)
	idx := int(now.Sub(day) / noaa.LevelInterval)

	var levels []float64
	if s.cache != nil {
		if cached, err := s.cache.Levels(s.station, day); err == nil && len(cached) == noaa.LevelsPerDay {
			levels = cached
		}
	}

	if levels == nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		fetched, err := s.fetcher.LevelPredictions(ctx, day)
		if err != nil {
			log.Printf("tides: level predictions: %v", err)
			return 0, false
		}
		levels = fetched
		if s.cache != nil {
			if err := s.cache.SaveLevels(s.station, day, levels); err != nil {
				log.Printf("tides: caching levels: %v", err)
			}
		}
	}

	if idx < 0 || idx >= len(levels) {
		return 0, false
	}
	return levels[idx], true
}
