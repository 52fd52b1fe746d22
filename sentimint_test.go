package sentimint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/sentimint/language"
)

// stubAnalyzer answers with canned annotations chosen by a marker word in the content
type stubAnalyzer struct {
	mu        sync.Mutex
	responses map[string]*language.Annotations
	failOn    string
	calls     []string
}

func (a *stubAnalyzer) Analyze(ctx context.Context, text string, docType language.DocumentType) (*language.Annotations, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, text)

	if a.failOn != "" && strings.Contains(text, a.failOn) {
		return nil, errors.New("quota exceeded")
	}
	for marker, ann := range a.responses {
		if strings.Contains(text, marker) {
			return ann, nil
		}
	}
	return &language.Annotations{}, nil
}

func (a *stubAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func documentSentiment(score, magnitude float64) *language.Annotations {
	return &language.Annotations{
		DocumentSentiment: language.Sentiment{Score: score, Magnitude: magnitude},
	}
}

// articleHTML renders a page whose body is long enough to pass the minimum size gate
func articleHTML(marker string) string {
	return `<!DOCTYPE html>
<html>
<head><title>` + marker + `</title><script>track()</script></head>
<body>
<nav><a href="/">Home</a></nav>
<article><p>` + marker + ` This article discusses Acme Corp at length, covering its products, its history and what customers think of it.</p></article>
</body>
</html>`
}

// testSite serves search results and the pages they link to
type testSite struct {
	server *httptest.Server
	pages  map[string]string // path -> HTML body
	status map[string]int    // path -> status override
	links  []string          // result paths in search order
	query  string
	mu     sync.Mutex
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{
		pages:  map[string]string{},
		status: map[string]int{},
	}
	site.server = httptest.NewServer(http.HandlerFunc(site.handle))
	t.Cleanup(site.server.Close)
	return site
}

func (s *testSite) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.URL.Path == "/search" {
		s.query = r.URL.Query().Get("q")
		var b strings.Builder
		b.WriteString("<html><body>")
		for _, p := range s.links {
			fmt.Fprintf(&b, `<div><a href="/url?q=%s&amp;sa=U">result</a></div>`, url.QueryEscape(s.server.URL+p))
		}
		b.WriteString("</body></html>")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(b.String()))
		return
	}

	if code, ok := s.status[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}
	body, ok := s.pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(body))
}

func (s *testSite) url(path string) string {
	return s.server.URL + path
}

func testConfig(searchBase string) Config {
	config := DefaultConfig()
	config.SearchURL = searchBase + "/search?q=%s"
	config.RequestsPerSecond = 1000
	config.Burst = 100
	config.FetchRetries = 1
	config.RetryDelay = time.Millisecond
	config.HTTPTimeout = 5 * time.Second
	return config
}

func TestGetSentimentScore(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/a", "/b"}
	site.pages["/a"] = articleHTML("alpha")
	site.pages["/b"] = articleHTML("bravo")

	analyzer := &stubAnalyzer{responses: map[string]*language.Annotations{
		"alpha": documentSentiment(0.25, 1),
		"bravo": documentSentiment(0.25, 1),
	}}

	s := New(testConfig(site.server.URL), analyzer, nil)
	result, err := s.GetSentimentScore(context.Background(), "  Acme Corp ")
	require.NoError(t, err)

	assert.Equal(t, "opinion of Acme Corp", site.query)
	assert.Equal(t, "Acme Corp", result.Entity)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 2, result.PagesAnalyzed)
	assert.False(t, result.InsufficientData)
	assert.Equal(t, []string{site.url("/a"), site.url("/b")}, result.Sites)

	// Equal lengths give equal weights of 0.5, so each magnitude halves
	assert.InDelta(t, 0.25, result.Score, 1e-9)
	assert.InDelta(t, 1.0, result.Magnitude, 1e-9)
	assert.Equal(t, "very positive", result.Descriptor)
	assert.InDelta(t, (0.25+0.3)/0.6*100, result.Percent, 1e-9)
}

func TestGetSentimentScoreNoLinks(t *testing.T) {
	site := newTestSite(t)
	analyzer := &stubAnalyzer{}

	s := New(testConfig(site.server.URL), analyzer, nil)
	result, err := s.GetSentimentScore(context.Background(), "Nobody In Particular")
	require.NoError(t, err)

	assert.True(t, result.InsufficientData)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, 0.0, result.Magnitude)
	assert.NotNil(t, result.Categories)
	assert.Empty(t, result.Categories)
	assert.Equal(t, "neutral", result.Descriptor)
	assert.InDelta(t, 50.0, result.Percent, 1e-9)
	assert.Equal(t, 0, analyzer.callCount())
}

func TestGetSentimentScoreShortPageExcluded(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/short", "/long"}
	site.pages["/short"] = "<html><body><p>shorty</p></body></html>"
	site.pages["/long"] = articleHTML("longpage")

	analyzer := &stubAnalyzer{responses: map[string]*language.Annotations{
		"shorty":   documentSentiment(-0.9, 5),
		"longpage": documentSentiment(0.5, 2),
	}}

	s := New(testConfig(site.server.URL), analyzer, nil)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, 1, result.PagesAnalyzed)
	assert.Equal(t, []string{site.url("/long")}, result.Sites)
	// A lone page keeps its own magnitude
	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.InDelta(t, 2.0, result.Magnitude, 1e-9)
	assert.Equal(t, 1, analyzer.callCount())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], string(ReasonTooSmall))
}

func TestGetSentimentScoreStopsAtMaxPages(t *testing.T) {
	site := newTestSite(t)
	for _, p := range []string{"/1", "/2", "/3", "/4", "/5"} {
		site.links = append(site.links, p)
		site.pages[p] = articleHTML("page" + p[1:])
	}

	analyzer := &stubAnalyzer{}
	config := testConfig(site.server.URL)
	config.MaxPages = 2

	s := New(config, analyzer, nil)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, 2, result.PagesAnalyzed)
	assert.Equal(t, []string{site.url("/1"), site.url("/2")}, result.Sites)
	assert.Equal(t, 2, analyzer.callCount())
}

func TestGetSentimentScoreConcurrentKeepsSearchOrder(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/gone", "/1", "/2", "/3", "/4"}
	site.status["/gone"] = http.StatusNotFound
	for _, p := range site.links[1:] {
		site.pages[p] = articleHTML("page" + p[1:])
	}

	config := testConfig(site.server.URL)
	config.Concurrency = 3
	config.MaxPages = 3

	s := New(config, &stubAnalyzer{}, nil)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, []string{site.url("/1"), site.url("/2"), site.url("/3")}, result.Sites)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], string(ReasonHTTPStatus))
}

func TestGetSentimentScoreAnalysisFailureSkipsPage(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/bad", "/good"}
	site.pages["/bad"] = articleHTML("broken")
	site.pages["/good"] = articleHTML("fine")

	analyzer := &stubAnalyzer{
		failOn:    "broken",
		responses: map[string]*language.Annotations{"fine": documentSentiment(-0.4, 1)},
	}

	s := New(testConfig(site.server.URL), analyzer, nil)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, 1, result.PagesAnalyzed)
	assert.InDelta(t, -0.4, result.Score, 1e-9)
	assert.Equal(t, "very negative", result.Descriptor)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], string(ReasonAnalysisFailed))
}

// TestGetSentimentScoreProviderFailureSkipsPage wires the analyzer the way cmd/api does
// with an API key: a page the provider refuses is skipped, never scored some other way.
func TestGetSentimentScoreProviderFailureSkipsPage(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/bad", "/good"}
	site.pages["/bad"] = articleHTML("broken")
	site.pages["/good"] = articleHTML("fine")

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Document struct {
				Content string `json:"content"`
			} `json:"document"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if strings.Contains(req.Document.Content, "broken") {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": {"message": "quota exceeded"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"documentSentiment": {"score": 0.4, "magnitude": 1}}`))
	}))
	defer provider.Close()

	clientConfig := language.DefaultClientConfig()
	clientConfig.BaseURL = provider.URL
	clientConfig.APIKey = "test-key"
	clientConfig.RetryDelay = time.Millisecond

	s := New(testConfig(site.server.URL), language.NewAnalyzer(clientConfig), nil)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, 1, result.PagesAnalyzed)
	assert.Equal(t, []string{site.url("/good")}, result.Sites)
	assert.InDelta(t, 0.4, result.Score, 1e-9)
	assert.Equal(t, "very positive", result.Descriptor)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], site.url("/bad"))
	assert.Contains(t, result.Warnings[0], string(ReasonAnalysisFailed))
}

func TestGetSentimentScoreCategories(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/a", "/b"}
	site.pages["/a"] = articleHTML("alpha")
	site.pages["/b"] = articleHTML("bravo")

	analyzer := &stubAnalyzer{responses: map[string]*language.Annotations{
		"alpha": {
			DocumentSentiment: language.Sentiment{Score: 0.1, Magnitude: 1},
			Categories:        []language.Classification{{Path: "/Science/Rockets", Confidence: 0.6}},
		},
		"bravo": {
			DocumentSentiment: language.Sentiment{Score: 0.1, Magnitude: 1},
			Categories: []language.Classification{
				{Path: "/Business/Industrial", Confidence: 0.5},
				{Path: "/Science/Rockets", Confidence: 0.9},
			},
		},
	}}

	s := New(testConfig(site.server.URL), analyzer, nil)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	require.Len(t, result.Categories, 2)
	assert.Equal(t, "Rockets", result.Categories[0].Name)
	assert.InDelta(t, 0.9, result.Categories[0].Confidence, 1e-9)
	assert.Equal(t, "Industrial", result.Categories[1].Name)
}

func TestGetSentimentScoreSearchUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := New(testConfig(server.URL), &stubAnalyzer{}, nil)
	_, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestGetSentimentScoreEmptyEntity(t *testing.T) {
	s := New(DefaultConfig(), &stubAnalyzer{}, nil)

	for _, entity := range []string{"", "   "} {
		_, err := s.GetSentimentScore(context.Background(), entity)
		assert.ErrorIs(t, err, ErrEmptyEntity)
	}
}

func TestGetSentimentScoreCancelledContext(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/a"}
	site.pages["/a"] = articleHTML("alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(testConfig(site.server.URL), &stubAnalyzer{}, nil)
	_, err := s.GetSentimentScore(ctx, "Acme Corp")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetSentimentScoreLimiterDeadline(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/a"}
	site.pages["/a"] = articleHTML("alpha")

	// The search request takes the only token; the page fetch cannot get another before the deadline
	config := testConfig(site.server.URL)
	config.RequestsPerSecond = 0.01
	config.Burst = 1

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	s := New(config, &stubAnalyzer{}, nil)
	_, err := s.GetSentimentScore(ctx, "Acme Corp")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type memorySnapshots struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (m *memorySnapshots) SaveSnapshot(ctx context.Context, key, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("disk full")
	}
	m.keys = append(m.keys, key)
	return "snapshots/" + key, nil
}

func TestGetSentimentScoreSavesSnapshots(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/news/acme"}
	site.pages["/news/acme"] = articleHTML("alpha")

	snapshots := &memorySnapshots{}
	s := New(testConfig(site.server.URL), &stubAnalyzer{}, snapshots)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	require.Len(t, snapshots.keys, 1)
	assert.Equal(t, "acme-corp/127-0-0-1-news-acme.html", snapshots.keys[0])
	assert.Equal(t, []string{"snapshots/acme-corp/127-0-0-1-news-acme.html"}, result.Snapshots)
}

func TestGetSentimentScoreSkippedPagesAreNotSnapshotted(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/bad", "/good"}
	site.pages["/bad"] = articleHTML("broken")
	site.pages["/good"] = articleHTML("fine")

	snapshots := &memorySnapshots{}
	s := New(testConfig(site.server.URL), &stubAnalyzer{failOn: "broken"}, snapshots)
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, []string{"acme-corp/127-0-0-1-good.html"}, snapshots.keys)
	assert.Len(t, result.Snapshots, 1)
}

func TestGetSentimentScoreSnapshotFailureIsNotFatal(t *testing.T) {
	site := newTestSite(t)
	site.links = []string{"/a"}
	site.pages["/a"] = articleHTML("alpha")

	s := New(testConfig(site.server.URL), &stubAnalyzer{}, &memorySnapshots{fail: true})
	result, err := s.GetSentimentScore(context.Background(), "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, 1, result.PagesAnalyzed)
	assert.Empty(t, result.Snapshots)
}

// TestHTTPClientUsesOtelTransport verifies outbound requests carry trace context
func TestHTTPClientUsesOtelTransport(t *testing.T) {
	s := New(Config{HTTPTimeout: 30 * time.Second}, nil, nil)

	if _, ok := s.httpClient.Transport.(*otelhttp.Transport); !ok {
		t.Error("Service HTTP client does not use otelhttp.Transport for trace propagation")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Config{}, nil, nil)
	config := s.Config()

	assert.Equal(t, 3, config.MaxPages)
	assert.Equal(t, 1, config.Concurrency)
	assert.Equal(t, 900000, config.MaxContentLength)
	assert.NotEmpty(t, config.UserAgent)
	assert.IsType(t, &language.LexiconAnalyzer{}, s.analyzer)
}
