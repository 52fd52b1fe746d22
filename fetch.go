package sentimint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/encoding/charmap"
)

// FetchAndSanitize downloads link and returns its sanitized HTML.
// Every gate failure is reported as a *SkipError; only context
// cancellation is returned as-is.
func (s *Service) FetchAndSanitize(ctx context.Context, link string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "sentimint.FetchAndSanitize")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	body, err := s.fetch(ctx, link)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	content := Sanitize(decodeBody(body))
	span.SetAttributes(attribute.Int("content.length", len(content)))

	if len(content) > s.config.MaxContentLength {
		return "", &SkipError{URL: link, Reason: ReasonTooLarge,
			Err: fmt.Errorf("%d bytes exceeds %d", len(content), s.config.MaxContentLength)}
	}
	if len(content) < s.config.MinContentLength {
		return "", &SkipError{URL: link, Reason: ReasonTooSmall,
			Err: fmt.Errorf("%d bytes is below %d", len(content), s.config.MinContentLength)}
	}

	return content, nil
}

// fetch performs the GET with retries on transport errors and applies the status and content type gates
func (s *Service) fetch(ctx context.Context, link string) ([]byte, error) {
	var body []byte
	var waitErr error

	operation := func() error {
		if err := s.wait(ctx); err != nil {
			waitErr = err
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return backoff.Permanent(&SkipError{URL: link, Reason: ReasonFetchFailed, Err: err})
		}
		s.setBrowserHeaders(req)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&SkipError{URL: link, Reason: ReasonHTTPStatus,
				Err: fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))})
		}

		if !isHTML(resp.Header.Get("Content-Type")) {
			return backoff.Permanent(&SkipError{URL: link, Reason: ReasonContentType,
				Err: fmt.Errorf("unsupported content type %q", resp.Header.Get("Content-Type"))})
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodyBytes))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to read body: %w", err)
		}

		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.config.RetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(s.config.FetchRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		slog.Debug("fetch failed, retrying", "url", link, "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if waitErr != nil {
			return nil, waitErr
		}
		var skip *SkipError
		if errors.As(err, &skip) {
			return nil, skip
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SkipError{URL: link, Reason: ReasonFetchFailed, Err: err}
	}

	return body, nil
}

// wait blocks until the politeness limiter grants the next outbound request.
// A wait that cannot finish before the context deadline reports
// context.DeadlineExceeded right away.
func (s *Service) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return nil
}

// setBrowserHeaders makes outbound requests look like an ordinary browser visit
func (s *Service) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// isHTML reports whether a Content-Type header names text/html
func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Tolerate malformed parameters as long as the media type itself is readable
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.EqualFold(mediaType, "text/html")
}

// decodeBody returns body as UTF-8 text.
// Valid UTF-8 is kept as is; anything else is read as Latin-1, which maps
// every byte to a code point, so decoding never fails.
func decodeBody(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}

	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(body)
	return string(decoded)
}
