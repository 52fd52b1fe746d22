package language

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// hitMagnitude is the strength contributed by each polar word in a sentence
const hitMagnitude = 0.25

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "amazing": true, "awesome": true,
	"best": true, "better": true, "love": true, "loved": true, "like": true, "liked": true,
	"positive": true, "success": true, "successful": true, "win": true, "wins": true,
	"won": true, "strong": true, "happy": true, "brilliant": true, "impressive": true,
	"praise": true, "praised": true, "admire": true, "admired": true, "wonderful": true,
	"fantastic": true, "favorable": true, "popular": true, "beneficial": true, "reliable": true,
	"innovative": true, "inspiring": true, "recommend": true, "recommended": true, "support": true,
}

var negativeWords = map[string]bool{
	"bad": true, "worse": true, "worst": true, "terrible": true, "awful": true, "horrible": true,
	"hate": true, "hated": true, "dislike": true, "poor": true, "negative": true, "fail": true,
	"failed": true, "failure": true, "lose": true, "lost": true, "weak": true, "sad": true,
	"angry": true, "scandal": true, "criticism": true, "criticized": true, "controversial": true,
	"disappointing": true, "disappointed": true, "problem": true, "problems": true, "fraud": true,
	"corrupt": true, "dangerous": true, "harmful": true, "unreliable": true, "lawsuit": true,
	"decline": true, "crisis": true,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "isn't": true, "wasn't": true, "don't": true,
	"doesn't": true, "didn't": true, "can't": true, "won't": true,
}

// LexiconAnalyzer is an offline, rule-based Analyzer.
// It scores sentences by counting polar words from a fixed word list and
// reports no entities or categories. It stands in for a real provider when
// no API key is configured; its scores are not comparable with the provider's,
// so the two are never mixed within one deployment.
type LexiconAnalyzer struct{}

// NewLexiconAnalyzer creates a new LexiconAnalyzer
func NewLexiconAnalyzer() *LexiconAnalyzer {
	return &LexiconAnalyzer{}
}

// Analyze scores every sentence of text and derives the document sentiment from them
func (a *LexiconAnalyzer) Analyze(ctx context.Context, text string, docType DocumentType) (*Annotations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if docType == HTML {
		text = textFromHTML(text)
	}

	ann := &Annotations{
		Entities:   []Entity{},
		Sentences:  []Sentence{},
		Categories: []Classification{},
	}

	var weighted, total float64
	for _, s := range splitSentences(text) {
		sent := scoreSentence(s)
		ann.Sentences = append(ann.Sentences, Sentence{Text: s, Sentiment: sent})
		weighted += sent.Score * sent.Magnitude
		total += sent.Magnitude
	}

	if total > 0 {
		ann.DocumentSentiment = Sentiment{Score: weighted / total, Magnitude: total}
	}

	return ann, nil
}

// scoreSentence counts polar words, flipping a word preceded by a negator
func scoreSentence(sentence string) Sentiment {
	words := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	var pos, neg int
	for i, w := range words {
		polarity := 0
		switch {
		case positiveWords[w]:
			polarity = 1
		case negativeWords[w]:
			polarity = -1
		default:
			continue
		}
		if i > 0 && negators[words[i-1]] {
			polarity = -polarity
		}
		if polarity > 0 {
			pos++
		} else {
			neg++
		}
	}

	hits := pos + neg
	if hits == 0 {
		return Sentiment{}
	}

	return Sentiment{
		Score:     float64(pos-neg) / float64(hits),
		Magnitude: float64(hits) * hitMagnitude,
	}
}

// splitSentences splits on terminal punctuation followed by whitespace
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// textFromHTML returns the text content of an HTML fragment, skipping scripts and styles
func textFromHTML(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	var buf strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)

	return strings.TrimSpace(buf.String())
}
