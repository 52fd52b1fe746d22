package sentiment

import "math"

// RealisticRadius bounds displayed scores. Whole corpora rarely polarize past it.
const RealisticRadius = 0.3

// Descriptor thresholds on the absolute clamped score
const (
	slightThreshold = 0.1
	strongThreshold = 0.2
)

// Presentation is the display form of an overall score
type Presentation struct {
	Clamped    float64 `json:"clamped"`
	Percent    float64 `json:"percent"` // 0 = most negative, 100 = most positive
	Descriptor string  `json:"descriptor"`
}

// Present clamps score to RealisticRadius, maps it onto 0-100% and describes it
func Present(score float64) Presentation {
	clamped := math.Max(-RealisticRadius, math.Min(RealisticRadius, score))

	return Presentation{
		Clamped:    clamped,
		Percent:    (clamped + RealisticRadius) / (2 * RealisticRadius) * 100,
		Descriptor: describe(clamped),
	}
}

func describe(score float64) string {
	if IsZero(score) {
		return "neutral"
	}

	polarity := "positive"
	if score < 0 {
		polarity = "negative"
	}

	switch abs := math.Abs(score); {
	case abs < slightThreshold:
		return "slightly " + polarity
	case abs < strongThreshold:
		return polarity
	default:
		return "very " + polarity
	}
}
