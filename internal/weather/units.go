package weather

import (
	"math"
	"sort"
	"time"
)

// Canonical units are imperial: °F, mph, miles, mb.

func KelvinToFahrenheit(k float64) float64 {
	return (k-273.15)*9/5 + 32
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

func MetersPerSecondToMPH(ms float64) float64 {
	return ms * 2.2369362920544
}

func KPHToMPH(kph float64) float64 {
	return kph * 0.62137119223733
}

func MetersToMiles(m float64) float64 {
	return m / 1609.344
}

func KilometersToMiles(km float64) float64 {
	return km * 0.62137119223733
}

// Round rounds half away from zero to the nearest integer.
func Round(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}

// Percent converts a 0..1 probability to an integer percent clamped to 0..100.
func Percent(p float64) int {
	return ClampPercent(Round(p * 100))
}

// ClampPercent clamps an integer percent to 0..100.
func ClampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// HourLabel formats a timestamp as a short hour label, e.g. "3 PM".
func HourLabel(t time.Time) string {
	return t.Format("3 PM")
}

// DayLabel formats a date as a short weekday label, e.g. "Mon".
func DayLabel(t time.Time) string {
	return t.Format("Mon")
}

// SortHourly orders points by time ascending (stable) and caps them at MaxHourlyPoints.
// A nil input yields an empty, non-nil slice.
func SortHourly(points []HourlyPoint) []HourlyPoint {
	if points == nil {
		return []HourlyPoint{}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	if len(points) > MaxHourlyPoints {
		points = points[:MaxHourlyPoints]
	}
	return points
}

// SortDaily orders points by date ascending (stable) and caps them at MaxDailyPoints.
func SortDaily(points []DailyPoint) []DailyPoint {
	if points == nil {
		return []DailyPoint{}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	if len(points) > MaxDailyPoints {
		points = points[:MaxDailyPoints]
	}
	return points
}
