// Package language defines the contract between the sentiment pipeline and an
// external text-analysis provider, along with the providers shipped with the
// service.
package language

import "context"

// DocumentType tells the provider how to interpret the submitted content
type DocumentType string

const (
	// HTML content is parsed for markup before analysis
	HTML DocumentType = "HTML"
	// PlainText content is analyzed as-is
	PlainText DocumentType = "PLAIN_TEXT"
)

// Sentiment is a raw provider sentiment reading
type Sentiment struct {
	Score     float64 `json:"score"`     // Polarity in [-1.0, 1.0]
	Magnitude float64 `json:"magnitude"` // Strength in [0, +inf), grows with text volume
}

// Mention is a single textual occurrence of an entity
type Mention struct {
	Text      string    `json:"text"`
	Sentiment Sentiment `json:"sentiment"`
}

// Entity is a named thing the provider found in the document
type Entity struct {
	Name      string    `json:"name"`
	Salience  float64   `json:"salience"` // Importance within the document, [0, 1]
	Sentiment Sentiment `json:"sentiment"`
	Mentions  []Mention `json:"mentions"`
}

// Sentence is one sentence of the analyzed document
type Sentence struct {
	Text      string    `json:"text"`
	Sentiment Sentiment `json:"sentiment"`
}

// Classification is a topic category assigned to the whole document
type Classification struct {
	Path       string  `json:"path"` // Slash-delimited taxonomy, e.g. "/Arts & Entertainment/Music"
	Confidence float64 `json:"confidence"`
}

// Annotations is everything the pipeline needs back from a provider
type Annotations struct {
	Entities          []Entity         `json:"entities"`
	Sentences         []Sentence       `json:"sentences"`
	DocumentSentiment Sentiment        `json:"document_sentiment"`
	Categories        []Classification `json:"categories"`
}

// Analyzer is implemented by every text-analysis provider.
// Entities are expected, but not guaranteed, in descending salience order.
type Analyzer interface {
	Analyze(ctx context.Context, text string, docType DocumentType) (*Annotations, error)
}

// NewAnalyzer returns the provider client when cfg carries an API key and the
// offline lexicon analyzer otherwise. Provider failures are returned to the
// caller as errors; nothing falls back to the lexicon.
func NewAnalyzer(cfg ClientConfig) Analyzer {
	if cfg.APIKey == "" {
		return NewLexiconAnalyzer()
	}
	return NewClient(cfg)
}
