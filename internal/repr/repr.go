// Package repr implements the genotype representations: domains, random
// initialization, validity, deterministic repair and summaries.
package repr

import (
	"math"
	"unicode/utf8"

	"github.com/cwbudde/goeda/internal/eda"
)

// maxSummary bounds Summarize output, in runes.
const maxSummary = 64

func summarize(g eda.Genotype) string {
	if g == nil {
		return "<nil>"
	}
	s := g.String()
	if utf8.RuneCountInString(s) <= maxSummary {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxSummary-3]) + "..."
}

func clampFloat(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// floorMod wraps v into [0, n).
func floorMod(v, n int) int {
	m := v % n
	if m < 0 {
		m += n
	}
	return m
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// checkBounds requires finite bounds with a finite, non-negative width.
func checkBounds(rep string, lower, upper float64) error {
	if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
		return paramError(rep, "lower and upper must be finite")
	}
	if upper < lower {
		return paramError(rep, "upper must be >= lower")
	}
	if math.IsInf(upper-lower, 0) {
		return paramError(rep, "upper - lower overflows")
	}
	return nil
}

func paramError(rep, reason string) error {
	return &eda.ConfigError{Component: "representation " + rep, Reason: reason}
}

// resize copies src into a slice of length n, zero-filling the tail.
func resize[T any](src []T, n int) []T {
	out := make([]T, n)
	copy(out, src)
	return out
}
