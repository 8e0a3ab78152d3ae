package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/agendagraph/router"
)

const (
	defaultHTTPTimeout = 300 * time.Second
	defaultHTTPRetries = 3
	baseRetryDelay     = 2 * time.Second
)

// HTTPEngine is a client for an external retrieval service exposing
// POST /index and POST /query.
type HTTPEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client

	maxRetries int
	retryDelay time.Duration
}

// HTTPOption configures an HTTPEngine.
type HTTPOption func(*HTTPEngine)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(e *HTTPEngine) { e.apiKey = key }
}

// WithTimeout bounds a single HTTP request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEngine) { e.client.Timeout = d }
}

// WithRetries bounds retries on 429 and 5xx responses. Negative disables
// retries.
func WithRetries(n int) HTTPOption {
	return func(e *HTTPEngine) {
		if n < 0 {
			n = 0
		}
		e.maxRetries = n
	}
}

// NewHTTP creates a client for the service at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTPEngine {
	e := &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultHTTPRetries,
		retryDelay: baseRetryDelay,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type indexResponse struct {
	Handle string `json:"handle"`
}

type queryRequest struct {
	Handle   string          `json:"handle"`
	Question string          `json:"question"`
	Method   router.Method   `json:"method"`
	Params   router.Params   `json:"params"`
	Entities []router.Entity `json:"entities,omitempty"`
}

type queryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Index uploads the corpus and returns the handle the service assigns.
func (e *HTTPEngine) Index(ctx context.Context, c Corpus) (Handle, error) {
	body, err := e.post(ctx, "/index", c)
	if err != nil {
		return "", err
	}
	var resp indexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding index response: %w", err)
	}
	if resp.Handle == "" {
		return "", fmt.Errorf("%w: empty handle", ErrRequestFailed)
	}
	slog.Info("engine: corpus indexed", "corpus", c.Name, "documents", len(c.Documents), "handle", resp.Handle)
	return Handle(resp.Handle), nil
}

// Query sends the question with its route and returns the service's
// answer and the sources it reports.
func (e *HTTPEngine) Query(ctx context.Context, h Handle, question string, route router.Route) (Answer, error) {
	if h == "" {
		return Answer{}, ErrNoHandle
	}
	body, err := e.post(ctx, "/query", queryRequest{
		Handle:   string(h),
		Question: question,
		Method:   route.Method,
		Params:   route.Params,
		Entities: route.Entities,
	})
	if err != nil {
		return Answer{}, err
	}
	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Answer{}, fmt.Errorf("decoding query response: %w", err)
	}
	return Answer{Text: resp.Answer, Sources: resp.Sources}, nil
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func (e *HTTPEngine) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := e.baseURL + path

	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.retryDelay * time.Duration(1<<(attempt-1))
			if wait > delay {
				delay = wait
			}
			slog.Warn("engine: retrying request", "url", url, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}
		wait = 0

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request to %s failed: %w", url, err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}
		lastErr = fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
		if !retryable(resp.StatusCode) {
			return nil, lastErr
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
