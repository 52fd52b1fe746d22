// Package sentiment combines provider sentiment signals into per-page and
// per-entity scores.
//
// A page produces up to three signals (entity, sentence and document level).
// Signals are blended by magnitude so that a strong reading outweighs a weak one,
// and readings with no polarity or no strength are dropped instead of being
// counted as neutral votes. Pages are then blended into a corpus score with a
// correction that keeps one long page from dominating the result.
package sentiment

import (
	"sort"
	"strings"

	"github.com/docutag/sentimint/language"
)

// MinSalience is the salience below which entities are ignored.
// Entities are visited in descending salience, so the walk stops at the first one below it.
const MinSalience = 0.001

// SignalName identifies where a sentiment reading came from
type SignalName string

const (
	SignalEntity   SignalName = "entity"
	SignalSentence SignalName = "sentence"
	SignalDocument SignalName = "document"
)

// Sentiment is a named sentiment reading
type Sentiment struct {
	Score     float64    `json:"score"`
	Magnitude float64    `json:"magnitude"`
	Name      SignalName `json:"name,omitempty"`
}

// informative reports whether the reading carries both polarity and strength
func (s Sentiment) informative() bool {
	return !IsZero(s.Score) && !IsZero(s.Magnitude)
}

// Category is a leaf topic name and the provider's confidence in it
type Category struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// TextInfo is the aggregated result for one fetched page.
// It is built once by AggregatePage and not modified afterwards.
type TextInfo struct {
	Score         float64    `json:"score"`
	Magnitude     float64    `json:"magnitude"`
	Categories    []Category `json:"categories"`
	Site          string     `json:"site"`
	ContentLength int        `json:"content_length"`
}

// AggregatePage combines the entity, sentence and document signals of one page
func AggregatePage(ann *language.Annotations, target, site string, contentLength int) TextInfo {
	info := TextInfo{
		Site:          site,
		ContentLength: contentLength,
		Categories:    []Category{},
	}
	if ann == nil {
		return info
	}

	signals := []Sentiment{
		EntitySignal(ann.Entities, target),
		{
			Score:     ann.DocumentSentiment.Score,
			Magnitude: ann.DocumentSentiment.Magnitude,
			Name:      SignalDocument,
		},
		SentenceSignal(ann.Sentences, target),
	}

	combined := Combine(signals)
	info.Score = combined.Score
	info.Magnitude = combined.Magnitude
	info.Categories = LeafCategories(ann.Categories)

	return info
}

// Combine blends signals by magnitude, skipping those with ~0 score or magnitude.
// The resulting magnitude is the sum over the surviving signals only.
func Combine(signals []Sentiment) Sentiment {
	var scores, magnitudes []float64
	for _, s := range signals {
		if !s.informative() {
			continue
		}
		scores = append(scores, s.Score)
		magnitudes = append(magnitudes, s.Magnitude)
	}

	return Sentiment{
		Score:     MagnitudeWeightedAverage(scores, magnitudes),
		Magnitude: sum(magnitudes),
	}
}

// EntitySignal derives the entity-level reading for a page.
// Entities with no sentiment of their own fall back to their mentions, weighted by
// how much of the target name each mention echoes.
func EntitySignal(entities []language.Entity, target string) Sentiment {
	sorted := make([]language.Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Salience > sorted[j].Salience
	})

	var scores, magnitudes []float64
	for _, e := range sorted {
		if e.Salience < MinSalience {
			break
		}

		score := e.Sentiment.Score
		if IsZero(score) {
			score = mentionScore(e.Mentions, target)
		}

		scores = append(scores, score)
		magnitudes = append(magnitudes, e.Sentiment.Magnitude)
	}

	return Sentiment{
		Score:     MagnitudeWeightedAverage(scores, magnitudes),
		Magnitude: sum(magnitudes),
		Name:      SignalEntity,
	}
}

// mentionScore averages relevance-weighted mention scores by mention magnitude
func mentionScore(mentions []language.Mention, target string) float64 {
	var scores, magnitudes []float64
	for _, m := range mentions {
		if IsZero(m.Sentiment.Score) {
			continue
		}
		scores = append(scores, m.Sentiment.Score*MentionRelevance(target, m.Text))
		magnitudes = append(magnitudes, m.Sentiment.Magnitude)
	}
	return MagnitudeWeightedAverage(scores, magnitudes)
}

// SentenceSignal derives the sentence-level reading for a page.
// Every polarized sentence counts; sentences that mention the target count up to twice as much.
func SentenceSignal(sentences []language.Sentence, target string) Sentiment {
	var scores, adjusted, raw []float64
	for _, s := range sentences {
		if IsZero(s.Sentiment.Score) {
			continue
		}
		weight := MentionRelevance(target, s.Text) + 1
		scores = append(scores, s.Sentiment.Score)
		adjusted = append(adjusted, s.Sentiment.Magnitude*weight)
		raw = append(raw, s.Sentiment.Magnitude)
	}

	return Sentiment{
		Score:     MagnitudeWeightedAverage(scores, adjusted),
		Magnitude: sum(raw),
		Name:      SignalSentence,
	}
}

// LeafCategories reduces provider category paths to their last segment, keeping provider order
func LeafCategories(classifications []language.Classification) []Category {
	categories := make([]Category, 0, len(classifications))
	for _, c := range classifications {
		categories = append(categories, Category{
			Name:       leaf(c.Path),
			Confidence: c.Confidence,
		})
	}
	return categories
}

func leaf(path string) string {
	path = strings.TrimRight(path, "/")
	if idx := strings.LastIndex(path, "/"); idx != -1 {
		return path[idx+1:]
	}
	return path
}
