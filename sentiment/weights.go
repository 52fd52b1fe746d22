package sentiment

import (
	"math"
	"strings"
)

// Tolerance is the absolute difference under which two readings are treated as equal
const Tolerance = 0.00001

// EqualWithTolerance reports whether a and b are within Tolerance of each other
func EqualWithTolerance(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}

// IsZero reports whether v is zero within Tolerance
func IsZero(v float64) bool {
	return EqualWithTolerance(v, 0.0)
}

// WeightedAverage returns sum(values[i]*weights[i]) / sum(weights).
// Empty input or a total weight of ~0 yields 0.0. Both slices must have the same length;
// extra entries in the longer slice are ignored.
func WeightedAverage(values, weights []float64) float64 {
	n := min(len(values), len(weights))
	if n == 0 {
		return 0.0
	}

	var numerator, denominator float64
	for i := 0; i < n; i++ {
		numerator += values[i] * weights[i]
		denominator += weights[i]
	}

	if IsZero(denominator) {
		return 0.0
	}

	return numerator / denominator
}

// NormalizeMagnitudes converts magnitudes into weights that sum to 1.
// When the total is within Tolerance of zero the input is returned unchanged
// rather than divided by ~0 or replaced with uniform weights.
func NormalizeMagnitudes(magnitudes []float64) []float64 {
	var total float64
	for _, m := range magnitudes {
		total += m
	}

	if total <= Tolerance {
		return magnitudes
	}

	weights := make([]float64, len(magnitudes))
	for i, m := range magnitudes {
		weights[i] = m / total
	}
	return weights
}

// MagnitudeWeightedAverage averages scores using their normalized magnitudes as weights
func MagnitudeWeightedAverage(scores, magnitudes []float64) float64 {
	return WeightedAverage(scores, NormalizeMagnitudes(magnitudes))
}

// MentionRelevance returns the fraction of the target's whitespace-delimited words
// that appear as substrings of text, compared case-insensitively.
// A multi-word target partially echoed in text gets partial credit.
func MentionRelevance(target, text string) float64 {
	words := strings.Fields(strings.ToLower(target))
	if len(words) == 0 {
		return 0.0
	}

	text = strings.ToLower(text)
	found := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			found++
		}
	}

	return float64(found) / float64(len(words))
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
