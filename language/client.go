package language

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultBaseURL is the Cloud Natural Language REST endpoint
	DefaultBaseURL = "https://language.googleapis.com/v1"
	// DefaultTimeout bounds a single annotate request
	DefaultTimeout = 60 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 2
)

// maxErrorBody limits how much of an error response is kept for the error message
const maxErrorBody = 2048

// StatusError is returned when the provider answers with a non-200 status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("language API error: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Retryable reports whether the request may succeed if sent again
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ClientConfig configures the Cloud Natural Language client
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration // Initial backoff delay; zero uses the backoff package default
}

// DefaultClientConfig returns the default client configuration without an API key
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    DefaultBaseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// Client talks to the Cloud Natural Language annotateText API
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

// NewClient creates a new Client, filling unset fields with defaults
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type annotateRequest struct {
	Document     apiDocument `json:"document"`
	Features     apiFeatures `json:"features"`
	EncodingType string      `json:"encodingType"`
}

type apiDocument struct {
	Type    DocumentType `json:"type"`
	Content string       `json:"content"`
}

type apiFeatures struct {
	ExtractEntitySentiment   bool `json:"extractEntitySentiment"`
	ExtractDocumentSentiment bool `json:"extractDocumentSentiment"`
	ClassifyText             bool `json:"classifyText"`
}

type apiText struct {
	Content string `json:"content"`
}

type apiSentiment struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
}

type annotateResponse struct {
	Sentences []struct {
		Text      apiText      `json:"text"`
		Sentiment apiSentiment `json:"sentiment"`
	} `json:"sentences"`
	Entities []struct {
		Name     string  `json:"name"`
		Salience float64 `json:"salience"`
		Mentions []struct {
			Text      apiText      `json:"text"`
			Sentiment apiSentiment `json:"sentiment"`
		} `json:"mentions"`
		Sentiment apiSentiment `json:"sentiment"`
	} `json:"entities"`
	DocumentSentiment apiSentiment `json:"documentSentiment"`
	Categories        []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"categories"`
}

// Analyze annotates text with entity, sentence and document sentiment plus topic categories.
// Rate limiting (429), server errors and transport failures are retried with exponential backoff.
func (c *Client) Analyze(ctx context.Context, text string, docType DocumentType) (*Annotations, error) {
	payload, err := json.Marshal(annotateRequest{
		Document: apiDocument{Type: docType, Content: text},
		Features: apiFeatures{
			ExtractEntitySentiment:   true,
			ExtractDocumentSentiment: true,
			ClassifyText:             true,
		},
		EncodingType: "UTF8",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var parsed annotateResponse
	operation := func() error {
		resp, err := c.annotate(ctx, payload)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		parsed = *resp
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	if c.retryDelay > 0 {
		expBackoff.InitialInterval = c.retryDelay
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		slog.Warn("language API request failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}

	return parsed.annotations(), nil
}

func (c *Client) annotate(ctx context.Context, payload []byte) (*annotateResponse, error) {
	endpoint := c.baseURL + "/documents:annotateText"
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call language API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode language API response: %w", err)
	}

	return &parsed, nil
}

func (r *annotateResponse) annotations() *Annotations {
	ann := &Annotations{
		Entities:          make([]Entity, 0, len(r.Entities)),
		Sentences:         make([]Sentence, 0, len(r.Sentences)),
		DocumentSentiment: Sentiment(r.DocumentSentiment),
		Categories:        make([]Classification, 0, len(r.Categories)),
	}

	for _, e := range r.Entities {
		entity := Entity{
			Name:      e.Name,
			Salience:  e.Salience,
			Sentiment: Sentiment(e.Sentiment),
			Mentions:  make([]Mention, 0, len(e.Mentions)),
		}
		for _, m := range e.Mentions {
			entity.Mentions = append(entity.Mentions, Mention{
				Text:      m.Text.Content,
				Sentiment: Sentiment(m.Sentiment),
			})
		}
		ann.Entities = append(ann.Entities, entity)
	}

	for _, s := range r.Sentences {
		ann.Sentences = append(ann.Sentences, Sentence{
			Text:      s.Text.Content,
			Sentiment: Sentiment(s.Sentiment),
		})
	}

	for _, c := range r.Categories {
		ann.Categories = append(ann.Categories, Classification{
			Path:       c.Name,
			Confidence: c.Confidence,
		})
	}

	return ann
}
