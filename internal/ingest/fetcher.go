package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/hourlyagg/internal/httputil"
	"github.com/lox/hourlyagg/internal/metrics"
)

const maxErrorBody = 512

// FetchResult describes the transport side of a fetch for the audit log.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	Attempts     int
}

// FetchError is returned when no JSON payload could be obtained from the source.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetcherOptions struct {
	// Timeout bounds a single request or FTP session.
	Timeout time.Duration
	// MaxElapsed bounds retries of rate-limited responses. Zero disables retry.
	MaxElapsed time.Duration
}

type Fetcher struct {
	client          *http.Client
	timeout         time.Duration
	maxElapsed      time.Duration
	initialInterval time.Duration
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	client := httputil.NewClient(opts.Timeout)
	return &Fetcher{
		client:          client,
		timeout:         client.Timeout,
		maxElapsed:      opts.MaxElapsed,
		initialInterval: backoff.DefaultInitialInterval,
	}
}

// Fetch retrieves rawURL and decodes the body as a JSON object. It returns the
// decoded payload together with the raw body so callers can archive it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (map[string]any, []byte, *FetchResult, error) {
	result := &FetchResult{}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, result, &FetchError{URL: rawURL, Err: fmt.Errorf("parse url: %w", err)}
	}

	start := time.Now()
	var body []byte
	switch u.Scheme {
	case "http", "https":
		body, err = f.fetchHTTP(ctx, u.String(), result)
	case "ftp":
		result.Attempts = 1
		body, err = f.fetchFTP(ctx, u)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.FetchTotal.WithLabelValues(u.Scheme, status).Inc()
	default:
		return nil, nil, result, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	metrics.FetchLatency.WithLabelValues(u.Scheme).Observe(time.Since(start).Seconds())

	result.ResponseSize = len(body)
	if err != nil {
		log.Printf("fetch: %s failed after %d attempt(s): %v", rawURL, result.Attempts, err)
		return nil, body, result, &FetchError{URL: rawURL, StatusCode: result.HTTPStatus, Err: err}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, body, result, &FetchError{URL: rawURL, StatusCode: result.HTTPStatus, Err: fmt.Errorf("unmarshal: %w", err)}
	}
	if payload == nil {
		return nil, body, result, &FetchError{URL: rawURL, StatusCode: result.HTTPStatus, Err: fmt.Errorf("unmarshal: response is not a JSON object")}
	}

	log.Printf("fetch: %s returned %d bytes", rawURL, len(body))
	return payload, body, result, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string, result *FetchResult) ([]byte, error) {
	var body []byte
	operation := func() error {
		result.Attempts++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", httputil.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			metrics.FetchTotal.WithLabelValues("http", "error").Inc()
			return backoff.Permanent(fmt.Errorf("request: %w", err))
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		metrics.FetchTotal.WithLabelValues("http", strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("fetch: %s: %v, retrying in %s", rawURL, err, wait.Round(time.Millisecond))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(f.backOff(), ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) backOff() backoff.BackOff {
	if f.maxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.initialInterval
	bo.MaxElapsedTime = f.maxElapsed
	return bo
}

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "...(truncated)"
}
