package sentimint

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docutag/sentimint/metrics"
)

// DiscoverLinks searches for pages discussing entity and returns the destination
// URLs of the results in first-seen order, without duplicates.
// An unreachable provider is reported as ErrSearchUnavailable; a page with no
// usable results yields an empty slice.
func (s *Service) DiscoverLinks(ctx context.Context, entity string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "sentimint.DiscoverLinks")
	defer span.End()

	searchURL := s.searchURL(entity)
	span.SetAttributes(attribute.String("search.url", searchURL))

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	s.setBrowserHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrSearchUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		// The HTML parser is lenient; this only happens when the body cannot be read
		slog.Warn("failed to parse search results", "url", searchURL, "error", err)
		return []string{}, nil
	}

	links := s.extractResultLinks(doc)
	metrics.LinksDiscovered.Observe(float64(len(links)))
	span.SetAttributes(attribute.Int("links.count", len(links)))
	slog.Debug("discovered links", "entity", entity, "count", len(links))

	return links, nil
}

// searchURL builds the provider query URL for entity
func (s *Service) searchURL(entity string) string {
	query := url.QueryEscape(s.config.QueryPrefix + entity)
	return fmt.Sprintf(s.config.SearchURL, query)
}

// extractResultLinks collects result destinations from anchors carrying the provider's redirect prefix
func (s *Service) extractResultLinks(doc *goquery.Document) []string {
	links := []string{}
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		dest := s.resultDestination(href)
		if dest == "" || seen[dest] {
			return
		}
		seen[dest] = true
		links = append(links, dest)
	})

	return links
}

// resultDestination returns the external URL an anchor href points to, or "" when it is not a usable result
func (s *Service) resultDestination(href string) string {
	if !strings.HasPrefix(href, s.config.ResultLinkPrefix) {
		return ""
	}

	var dest string
	if q := strings.IndexByte(href, '?'); q != -1 {
		values, err := url.ParseQuery(href[q+1:])
		if err != nil && len(values) == 0 {
			return ""
		}
		dest = values.Get("q")
	} else {
		dest = strings.TrimPrefix(href, s.config.ResultLinkPrefix)
	}

	parsed, err := url.Parse(dest)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" || s.isProviderHost(parsed.Hostname()) {
		return ""
	}

	return dest
}

// isProviderHost reports whether host belongs to the search provider itself
func (s *Service) isProviderHost(host string) bool {
	if s.config.ProviderDomain == "" {
		return false
	}
	host = strings.ToLower(host)
	domain := strings.ToLower(s.config.ProviderDomain)
	return strings.HasPrefix(host, domain) || strings.Contains(host, "."+domain)
}
