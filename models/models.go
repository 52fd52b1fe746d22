package models

import "time"

// SentimentResult is the complete output of one sentiment estimate for an entity
type SentimentResult struct {
	ID               string     `json:"id"`
	Entity           string     `json:"entity"`
	Score            float64    `json:"score"`      // Magnitude-weighted corpus score in [-1, 1]
	Magnitude        float64    `json:"magnitude"`  // Total length-corrected magnitude
	Percent          float64    `json:"percent"`    // Score clamped to the realistic range, mapped to 0-100
	Descriptor       string     `json:"descriptor"` // e.g. "slightly positive"
	Categories       []Category `json:"categories"`
	Sites            []string   `json:"sites"`
	Snapshots        []string   `json:"snapshots,omitempty"` // Stored copies of the analyzed pages
	PagesAnalyzed    int        `json:"pages_analyzed"`
	InsufficientData bool       `json:"insufficient_data"` // No page survived fetching and analysis
	ProcessingTime   float64    `json:"processing_time_seconds"`
	CreatedAt        time.Time  `json:"created_at"`
	Cached           bool       `json:"cached"`             // Served from the result history
	Warnings         []string   `json:"warnings,omitempty"` // Skipped links and other non-fatal issues
}

// Category is a topic detected across the analyzed pages
type Category struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // Highest confidence seen on any page
}

// SentimentRequest is the body of a sentiment request
type SentimentRequest struct {
	Entity string `json:"entity"`
	Force  bool   `json:"force"` // Recompute even if a recent result is stored
}

// ResultList is a page of stored results
type ResultList struct {
	Data   []*SentimentResult `json:"data"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}
