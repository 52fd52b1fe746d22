package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		weights []float64
		want    float64
	}{
		{"empty", nil, nil, 0.0},
		{"single", []float64{0.5}, []float64{2}, 0.5},
		{"uniform", []float64{1, -1, 0.5}, []float64{1, 1, 1}, 0.5 / 3},
		{"weighted", []float64{0.8, 0.2}, []float64{3, 1}, 0.65},
		{"unnormalized weights", []float64{1, 0}, []float64{10, 30}, 0.25},
		{"zero total weight", []float64{0.9, -0.4}, []float64{0, 0}, 0.0},
		{"near zero total weight", []float64{0.9}, []float64{0.000001}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, WeightedAverage(tt.values, tt.weights), 1e-9)
		})
	}
}

func TestNormalizeMagnitudes(t *testing.T) {
	t.Run("sums to one", func(t *testing.T) {
		weights := NormalizeMagnitudes([]float64{10, 5, 5})
		assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.25}, weights, 1e-9)
		assert.InDelta(t, 1.0, sum(weights), Tolerance)
	})

	t.Run("all zero returned unchanged", func(t *testing.T) {
		in := []float64{0, 0, 0}
		assert.Equal(t, in, NormalizeMagnitudes(in))
	})

	t.Run("degenerate total returned unchanged", func(t *testing.T) {
		in := []float64{0.000001, 0.000002}
		assert.Equal(t, in, NormalizeMagnitudes(in))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, NormalizeMagnitudes(nil))
	})

	t.Run("does not modify input", func(t *testing.T) {
		in := []float64{2, 2}
		NormalizeMagnitudes(in)
		assert.Equal(t, []float64{2, 2}, in)
	})
}

func TestMentionRelevance(t *testing.T) {
	tests := []struct {
		name   string
		target string
		text   string
		want   float64
	}{
		{"all words", "Barack Obama", "President Barack Obama spoke today", 1.0},
		{"no words", "Barack Obama", "The senator spoke today", 0.0},
		{"partial", "Barack Obama", "Obama spoke today", 0.5},
		{"case insensitive", "acme corp", "ACME CORP announced", 1.0},
		{"substring match", "net", "the internet", 1.0},
		{"empty target", "", "anything", 0.0},
		{"whitespace target", "   ", "anything", 0.0},
		{"three words one hit", "New York Times", "the times they are a-changin", 1.0 / 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MentionRelevance(tt.target, tt.text)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestEqualWithTolerance(t *testing.T) {
	assert.True(t, EqualWithTolerance(0.1, 0.100001))
	assert.False(t, EqualWithTolerance(0.1, 0.1001))
	assert.True(t, IsZero(-0.000009))
	assert.False(t, IsZero(0.00002))
}
