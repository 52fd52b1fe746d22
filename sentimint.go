// Package sentimint estimates public sentiment toward a named entity.
//
// It searches the web for pages discussing the entity, fetches and sanitizes
// the first few results, has each page annotated by a text analysis provider
// and folds the per-page signals into one score with a length-bias correction.
package sentimint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/docutag/sentimint/language"
	"github.com/docutag/sentimint/metrics"
	"github.com/docutag/sentimint/models"
	"github.com/docutag/sentimint/sentiment"
	"github.com/docutag/sentimint/slug"
	"github.com/docutag/sentimint/tracing"
)

var (
	// ErrSearchUnavailable is returned when the search provider cannot be reached or refuses the query
	ErrSearchUnavailable = errors.New("search provider unavailable")
	// ErrEmptyEntity is returned when the entity name is blank
	ErrEmptyEntity = errors.New("entity is required")
)

// SkipReason classifies why a candidate page was left out
type SkipReason string

const (
	ReasonFetchFailed    SkipReason = "fetch_failed"
	ReasonHTTPStatus     SkipReason = "http_status"
	ReasonContentType    SkipReason = "content_type"
	ReasonTooLarge       SkipReason = "too_large"
	ReasonTooSmall       SkipReason = "too_small"
	ReasonAnalysisFailed SkipReason = "analysis_failed"
)

// SkipError reports a page that failed one of the acquisition or analysis gates
type SkipError struct {
	URL    string
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("skipped %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("skipped %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// Config contains pipeline configuration
type Config struct {
	QueryPrefix      string // Prepended to the entity to form the search query
	SearchURL        string // Search endpoint with one %s for the escaped query
	ResultLinkPrefix string // href prefix marking a search result redirect
	ProviderDomain   string // Result hosts starting with this belong to the provider and are ignored
	UserAgent        string // Browser-like User-Agent for all outbound requests

	MaxPages    int // Successfully analyzed pages to keep
	Concurrency int // Pages fetched at once; 1 is sequential

	// Politeness limit shared by all outbound requests
	RequestsPerSecond float64
	Burst             int

	FetchRetries     int           // Retries after a transport error
	RetryDelay       time.Duration // Initial backoff between fetch retries
	HTTPTimeout      time.Duration
	MaxBodyBytes     int64 // Bytes read from a page body
	MaxContentLength int   // Sanitized pages longer than this are skipped
	MinContentLength int   // Sanitized pages shorter than this are skipped
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		QueryPrefix:       "opinion of ",
		SearchURL:         "https://www.google.com/search?q=%s",
		ResultLinkPrefix:  "/url?q=",
		ProviderDomain:    "google.",
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		MaxPages:          3,
		Concurrency:       1,
		RequestsPerSecond: 1,
		Burst:             1,
		FetchRetries:      2,
		RetryDelay:        500 * time.Millisecond,
		HTTPTimeout:       30 * time.Second,
		MaxBodyBytes:      10 * 1024 * 1024, // 10MB
		MaxContentLength:  900000,           // provider limit of 1,000,000 bytes minus 10%
		MinContentLength:  100,
	}
}

// SnapshotStore keeps a copy of every analyzed page
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key, content string) (string, error)
}

// Service runs the sentiment pipeline.
// It holds only configuration and shared clients; per-request state lives in a run,
// so one Service can serve concurrent requests.
type Service struct {
	config     Config
	httpClient *http.Client
	analyzer   language.Analyzer
	snapshots  SnapshotStore
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

// New creates a new Service.
// A nil analyzer falls back to the offline lexicon analyzer; snapshots can be
// nil if page snapshots are not needed.
func New(config Config, analyzer language.Analyzer, snapshots SnapshotStore) *Service {
	defaults := DefaultConfig()
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.FetchRetries < 0 {
		config.FetchRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaults.HTTPTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.MaxContentLength <= 0 {
		config.MaxContentLength = defaults.MaxContentLength
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if analyzer == nil {
		analyzer = language.NewLexiconAnalyzer()
	}

	return &Service{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		analyzer:  analyzer,
		snapshots: snapshots,
		limiter:   rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		tracer:    tracing.Tracer(),
	}
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.config
}

// run is the aggregation state of one GetSentimentScore call
type run struct {
	entity     string
	entitySlug string
	pages      []sentiment.TextInfo
	sites      []string
	snapshots  []string
	warnings   []string
}

// GetSentimentScore estimates public sentiment toward entity.
// Pages that cannot be fetched or analyzed are skipped and listed in the result
// warnings; when no page survives the result has InsufficientData set and a
// neutral score. Only a blank entity, an unavailable search provider or a
// cancelled context produce an error.
func (s *Service) GetSentimentScore(ctx context.Context, entity string) (*models.SentimentResult, error) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, ErrEmptyEntity
	}

	ctx, span := s.tracer.Start(ctx, "sentimint.GetSentimentScore",
		trace.WithAttributes(attribute.String("entity", entity)))
	defer span.End()

	links, err := s.DiscoverLinks(ctx, entity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrSearchUnavailable) {
			metrics.RequestsTotal.WithLabelValues("search_unavailable").Inc()
		} else {
			metrics.RequestsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	r := &run{
		entity:     entity,
		entitySlug: slug.GenerateWithFallback(entity, "entity"),
	}
	if len(links) == 0 {
		r.warnings = append(r.warnings, "search returned no usable links")
	}

	if err := s.collect(ctx, r, links); err != nil {
		span.RecordError(err)
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := s.buildResult(r, start)
	span.SetAttributes(
		attribute.Int("pages.analyzed", result.PagesAnalyzed),
		attribute.Float64("sentiment.score", result.Score),
	)

	if result.InsufficientData {
		metrics.RequestsTotal.WithLabelValues("insufficient_data").Inc()
	} else {
		metrics.RequestsTotal.WithLabelValues("ok").Inc()
		metrics.Scores.Observe(result.Score)
	}

	slog.Info("sentiment computed",
		"entity", entity,
		"score", result.Score,
		"magnitude", result.Magnitude,
		"descriptor", result.Descriptor,
		"pages", result.PagesAnalyzed,
		"links", len(links),
	)

	return result, nil
}

// collect processes links in windows until MaxPages pages were analyzed.
// Pages inside a window are fetched concurrently but consumed in link order,
// so the kept pages are always the first successes in search order.
func (s *Service) collect(ctx context.Context, r *run, links []string) error {
	next := 0
	for next < len(links) && len(r.pages) < s.config.MaxPages {
		size := min(s.config.Concurrency, s.config.MaxPages-len(r.pages), len(links)-next)
		window := links[next : next+size]
		next += size

		outcomes := make([]pageOutcome, len(window))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.Concurrency)
		for i, link := range window {
			g.Go(func() error {
				info, snapshot, err := s.processLink(gctx, r.entity, r.entitySlug, link)
				var skip *SkipError
				if err != nil && !errors.As(err, &skip) {
					return err
				}
				outcomes[i] = pageOutcome{info: info, snapshot: snapshot, skip: skip}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, o := range outcomes {
			if o.skip != nil {
				slog.Info("skipping page", "url", window[i], "reason", o.skip.Reason, "error", o.skip.Err)
				metrics.RecordPage(metrics.PageSkipped, string(o.skip.Reason))
				r.warnings = append(r.warnings, fmt.Sprintf("skipped %s: %s", window[i], o.skip.Reason))
				continue
			}
			metrics.RecordPage(metrics.PageAnalyzed, "")
			r.pages = append(r.pages, o.info)
			r.sites = append(r.sites, window[i])
			if o.snapshot != "" {
				r.snapshots = append(r.snapshots, o.snapshot)
			}
		}
	}

	return nil
}

type pageOutcome struct {
	info     sentiment.TextInfo
	snapshot string
	skip     *SkipError
}

// processLink fetches and analyzes one page, then snapshots it when analysis succeeded.
// The returned snapshot path is empty when no snapshot was stored.
func (s *Service) processLink(ctx context.Context, entity, entitySlug, link string) (sentiment.TextInfo, string, error) {
	content, err := s.FetchAndSanitize(ctx, link)
	if err != nil {
		return sentiment.TextInfo{}, "", err
	}

	analysisStart := time.Now()
	ann, err := s.analyzer.Analyze(ctx, content, language.HTML)
	metrics.AnalysisDuration.Observe(time.Since(analysisStart).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return sentiment.TextInfo{}, "", ctx.Err()
		}
		return sentiment.TextInfo{}, "", &SkipError{URL: link, Reason: ReasonAnalysisFailed, Err: err}
	}

	info := sentiment.AggregatePage(ann, entity, siteName(link), len(content))

	var snapshot string
	if s.snapshots != nil {
		key := entitySlug + "/" + slug.GenerateWithFallback(slug.FromURL(link), "page") + ".html"
		if path, err := s.snapshots.SaveSnapshot(ctx, key, content); err != nil {
			slog.Warn("failed to save page snapshot", "url", link, "error", err)
		} else {
			slog.Debug("saved page snapshot", "url", link, "path", path)
			snapshot = path
		}
	}

	return info, snapshot, nil
}

// buildResult folds the collected pages into the caller-facing result
func (s *Service) buildResult(r *run, start time.Time) *models.SentimentResult {
	corpus := sentiment.AggregateCorpus(r.pages)
	presentation := sentiment.Present(corpus.Score)

	merged := sentiment.MergeCategories(r.pages)
	categories := make([]models.Category, 0, len(merged))
	for _, c := range merged {
		categories = append(categories, models.Category{Name: c.Name, Confidence: c.Confidence})
	}

	sites := make([]string, 0, len(r.sites))
	sites = append(sites, r.sites...)

	return &models.SentimentResult{
		ID:               uuid.New().String(),
		Entity:           r.entity,
		Score:            corpus.Score,
		Magnitude:        corpus.Magnitude,
		Percent:          presentation.Percent,
		Descriptor:       presentation.Descriptor,
		Categories:       categories,
		Sites:            sites,
		Snapshots:        r.snapshots,
		PagesAnalyzed:    len(r.pages),
		InsufficientData: len(r.pages) == 0,
		ProcessingTime:   time.Since(start).Seconds(),
		CreatedAt:        time.Now(),
		Warnings:         r.warnings,
	}
}

// siteName returns the host of link, or link itself when it has none
func siteName(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	return u.Host
}
