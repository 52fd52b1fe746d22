package language

import (
	"context"
	"testing"
)

func TestLexiconAnalyzer(t *testing.T) {
	a := NewLexiconAnalyzer()

	ann, err := a.Analyze(context.Background(),
		"<div><p>The new phone is great and reliable.</p><script>var bad = 1;</script><p>Battery life is terrible. It ships in May.</p></div>",
		HTML)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(ann.Sentences) != 3 {
		t.Fatalf("Expected 3 sentences, got %d: %+v", len(ann.Sentences), ann.Sentences)
	}

	if got := ann.Sentences[0].Sentiment; got.Score != 1.0 || got.Magnitude != 2*hitMagnitude {
		t.Errorf("First sentence sentiment = %+v, want score 1 magnitude %v", got, 2*hitMagnitude)
	}
	if got := ann.Sentences[1].Sentiment.Score; got != -1.0 {
		t.Errorf("Second sentence score = %v, want -1", got)
	}
	if got := ann.Sentences[2].Sentiment; got.Score != 0 || got.Magnitude != 0 {
		t.Errorf("Third sentence should be neutral, got %+v", got)
	}

	// (1*0.5 + -1*0.25) / 0.75
	want := (0.5 - 0.25) / 0.75
	if diff := ann.DocumentSentiment.Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Document score = %v, want %v", ann.DocumentSentiment.Score, want)
	}
	if ann.Entities == nil || ann.Categories == nil {
		t.Error("Expected non-nil entities and categories")
	}
}

func TestLexiconAnalyzerNegation(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		want     float64
	}{
		{"plain positive", "This is good.", 1},
		{"negated positive", "This is not good.", -1},
		{"negated negative", "It was never bad.", 1},
		{"mixed", "Good camera, bad screen.", 0},
		{"none", "It is a phone.", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreSentence(tt.sentence).Score; got != tt.want {
				t.Errorf("scoreSentence(%q) = %v, want %v", tt.sentence, got, tt.want)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second one! Version 2.0 is out? trailing")
	want := []string{"First one.", "Second one!", "Version 2.0 is out?", "trailing"}

	if len(got) != len(want) {
		t.Fatalf("splitSentences returned %d sentences, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
