package sentiment

// AggregateCorpus blends per-page results into one reading for the entity.
//
// Raw magnitude grows with text length, so each page's magnitude is discounted by its
// share of the corpus' total content length before being used as a weight: pages much
// longer than the rest are pulled down, short pages are pulled up. A corpus of fewer
// than two pages is left uncorrected since the lone page would otherwise get zero weight.
func AggregateCorpus(infos []TextInfo) Sentiment {
	if len(infos) == 0 {
		return Sentiment{}
	}

	scores := make([]float64, len(infos))
	for i, info := range infos {
		scores[i] = info.Score
	}

	magnitudes := CorrectedMagnitudes(infos)
	return Sentiment{
		Score:     MagnitudeWeightedAverage(scores, magnitudes),
		Magnitude: sum(magnitudes),
	}
}

// CorrectedMagnitudes returns each page's magnitude scaled by (1 - length weight),
// where length weights are the normalized content lengths of the corpus
func CorrectedMagnitudes(infos []TextInfo) []float64 {
	magnitudes := make([]float64, len(infos))
	if len(infos) < 2 {
		for i, info := range infos {
			magnitudes[i] = info.Magnitude
		}
		return magnitudes
	}

	lengths := make([]float64, len(infos))
	for i, info := range infos {
		lengths[i] = float64(info.ContentLength)
	}

	lengthWeights := NormalizeMagnitudes(lengths)
	for i, info := range infos {
		magnitudes[i] = info.Magnitude * (1 - lengthWeights[i])
	}
	return magnitudes
}

// MergeCategories collapses the categories of every page into one list.
// Categories keep first-seen order; a category seen on several pages keeps its highest confidence.
func MergeCategories(infos []TextInfo) []Category {
	merged := []Category{}
	index := make(map[string]int)

	for _, info := range infos {
		for _, c := range info.Categories {
			if i, ok := index[c.Name]; ok {
				if c.Confidence > merged[i].Confidence {
					merged[i].Confidence = c.Confidence
				}
				continue
			}
			index[c.Name] = len(merged)
			merged = append(merged, c)
		}
	}

	return merged
}
