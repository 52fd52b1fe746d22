package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateCorpusScenario(t *testing.T) {
	// Lengths 200/100/100 give length weights 0.5/0.25/0.25
	infos := []TextInfo{
		{Score: 0.8, Magnitude: 10, ContentLength: 200},
		{Score: 0.2, Magnitude: 5, ContentLength: 100},
		{Score: -0.2, Magnitude: 5, ContentLength: 100},
	}

	corrected := CorrectedMagnitudes(infos)
	assert.InDeltaSlice(t, []float64{5, 3.75, 3.75}, corrected, 1e-9)

	got := AggregateCorpus(infos)
	want := (0.8*5 + 0.2*3.75 - 0.2*3.75) / 12.5
	assert.InDelta(t, want, got.Score, 1e-9)
	assert.InDelta(t, 12.5, got.Magnitude, 1e-9)
}

func TestCorrectedMagnitudesPenalizesLongerPage(t *testing.T) {
	infos := []TextInfo{
		{Score: 0.4, Magnitude: 6, ContentLength: 2000},
		{Score: 0.4, Magnitude: 6, ContentLength: 1000},
	}

	corrected := CorrectedMagnitudes(infos)
	assert.Less(t, corrected[0], corrected[1])
}

func TestAggregateCorpusEmpty(t *testing.T) {
	got := AggregateCorpus(nil)
	assert.Equal(t, 0.0, got.Score)
	assert.Equal(t, 0.0, got.Magnitude)
}

func TestAggregateCorpusSinglePageKeepsMagnitude(t *testing.T) {
	got := AggregateCorpus([]TextInfo{{Score: -0.35, Magnitude: 4, ContentLength: 5000}})
	assert.InDelta(t, -0.35, got.Score, 1e-9)
	assert.InDelta(t, 4.0, got.Magnitude, 1e-9)
}

func TestAggregateCorpusZeroMagnitudes(t *testing.T) {
	got := AggregateCorpus([]TextInfo{
		{Score: 0.5, Magnitude: 0, ContentLength: 100},
		{Score: -0.5, Magnitude: 0, ContentLength: 100},
	})
	assert.Equal(t, 0.0, got.Score)
}

func TestMergeCategories(t *testing.T) {
	infos := []TextInfo{
		{Categories: []Category{{Name: "News", Confidence: 0.5}, {Name: "Politics", Confidence: 0.7}}},
		{Categories: []Category{{Name: "Sports", Confidence: 0.6}, {Name: "News", Confidence: 0.9}}},
		{Categories: []Category{{Name: "Politics", Confidence: 0.2}}},
	}

	assert.Equal(t, []Category{
		{Name: "News", Confidence: 0.9},
		{Name: "Politics", Confidence: 0.7},
		{Name: "Sports", Confidence: 0.6},
	}, MergeCategories(infos))

	assert.Empty(t, MergeCategories(nil))
	assert.NotNil(t, MergeCategories(nil))
}
