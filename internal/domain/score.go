package domain

import "math"

// ScaledScore returns (score-min)/(max-min) clamped to [-1, 1]. An empty
// or inverted range scales to 0.
func ScaledScore(score, min, max float64) float64 {
	span := max - min
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) || math.IsNaN(score) {
		return 0
	}
	scaled := (score - min) / span
	if scaled > 1 {
		return 1
	}
	if scaled < -1 {
		return -1
	}
	return roundTo(scaled, 4)
}

// ClampScore clamps score into [min, max] when the range is valid.
func ClampScore(score, min, max float64) float64 {
	if math.IsNaN(score) {
		return min
	}
	if min > max {
		return score
	}
	return math.Max(min, math.Min(max, score))
}

// FormatScore renders a score the way CMI elements expect it.
func FormatScore(v float64) string {
	if v == math.Trunc(v) {
		return formatInt(int64(v))
	}
	return trimFloat(roundTo(v, 4))
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
