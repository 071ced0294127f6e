package weather

import (
	"context"
	"log"
)

// BaselineAccuracy applies to any source missing from the static table.
const BaselineAccuracy = 0.5

// DefaultAccuracy is the static reliability table used until history is learned.
var DefaultAccuracy = map[Source]float64{
	SourceOpenWeather: 0.94,
	SourceWeatherAPI:  0.87,
	SourceAccuWeather: 0.91,
}

// Scorer returns a trust score in [0,1] for a source at a location.
type Scorer interface {
	Score(ctx context.Context, source Source, location string) float64
}

// StaticScorer scores by provider identity only.
type StaticScorer struct {
	Table map[Source]float64
}

// NewStaticScorer returns a scorer backed by DefaultAccuracy.
func NewStaticScorer() StaticScorer {
	return StaticScorer{Table: DefaultAccuracy}
}

func (s StaticScorer) Score(_ context.Context, source Source, _ string) float64 {
	table := s.Table
	if table == nil {
		table = DefaultAccuracy
	}
	if v, ok := table[source]; ok {
		return clampScore(v)
	}
	return BaselineAccuracy
}

// HistoryScorer consults an AccuracyHistory and falls back when it has nothing.
type HistoryScorer struct {
	history  AccuracyHistory
	fallback Scorer
}

// NewHistoryScorer creates a HistoryScorer; a nil fallback means the static table.
func NewHistoryScorer(history AccuracyHistory, fallback Scorer) *HistoryScorer {
	if fallback == nil {
		fallback = NewStaticScorer()
	}
	return &HistoryScorer{history: history, fallback: fallback}
}

func (h *HistoryScorer) Score(ctx context.Context, source Source, location string) float64 {
	if h.history == nil {
		return h.fallback.Score(ctx, source, location)
	}
	v, ok, err := h.history.Lookup(ctx, source, location)
	if err != nil {
		log.Printf("scorer: history lookup failed for %s at %q: %v", source, location, err)
		return h.fallback.Score(ctx, source, location)
	}
	if !ok {
		return h.fallback.Score(ctx, source, location)
	}
	return clampScore(v)
}

func clampScore(v float64) float64 {
	switch {
	case v != v: // NaN
		return BaselineAccuracy
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
