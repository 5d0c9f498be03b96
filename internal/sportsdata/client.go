// Package sportsdata is the client for the external football data API. Every
// request flows cache, then throttle, then HTTP, and responses are classified
// into the package's error types so callers can decide blast radius.
package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/zulandar/pressbox/internal/cache"
	"github.com/zulandar/pressbox/internal/throttle"
)

// DefaultMaxAttempts bounds retries per logical request, first try included.
const DefaultMaxAttempts = 3

// Client fetches data from the sports API through a shared cache and
// throttle. All methods are safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	cache       *cache.Cache
	limiter     *throttle.Limiter
	maxAttempts int
	newBackoff  func() backoff.BackOff
	sleep       func(ctx context.Context, d time.Duration) error
}

// Opts configures a Client. Cache and Limiter are required; they are shared
// with the rest of the process so every caller sees one quota.
type Opts struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	Cache       *cache.Cache
	Limiter     *throttle.Limiter
	MaxAttempts int
}

// New creates a Client.
func New(opts Opts) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		httpClient:  httpClient,
		cache:       opts.Cache,
		limiter:     opts.Limiter,
		maxAttempts: maxAttempts,
		newBackoff:  defaultBackoff,
		sleep:       sleepContext,
	}
}

func defaultBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

// envelope mirrors the API's response wrapper. Errors is a map when the API
// rejected the request and an empty array otherwise, so it stays raw here.
type envelope struct {
	Get      string          `json:"get"`
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response json.RawMessage `json:"response"`
}

// Get fetches endpoint+params, serving from cache when possible. Successful
// responses are cached under the endpoint's TTL; failures never are.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	if data, ok := c.cache.Get(endpoint, params); ok {
		return data.(json.RawMessage), nil
	}

	bo := c.newBackoff()
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("sportsdata: %s: %w", endpoint, err)
		}

		resp, err := c.call(ctx, endpoint, params)
		if err == nil {
			c.cache.Set(endpoint, params, resp)
			return resp, nil
		}
		lastErr = err

		wait, retry := retryDelay(err, bo)
		if !retry || attempt == c.maxAttempts {
			break
		}
		log.Printf("sportsdata: %s attempt %d/%d failed, retrying in %s: %v", endpoint, attempt, c.maxAttempts, wait, err)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("sportsdata: %s: %w", endpoint, err)
		}
	}
	return nil, lastErr
}

// retryDelay classifies an error into (delay, retryable). Rate limits honor
// the server's Retry-After when present; transient failures use exponential
// backoff; everything else is permanent.
func retryDelay(err error, bo backoff.BackOff) (time.Duration, bool) {
	switch e := err.(type) {
	case *RateLimitError:
		if e.RetryAfter > 0 {
			return e.RetryAfter, true
		}
		return bo.NextBackOff(), true
	case *ServiceError:
		if e.Retryable() {
			return bo.NextBackOff(), true
		}
		return 0, false
	case *PlanRestrictionError:
		return 0, false
	default:
		// Network-level failure.
		return bo.NextBackOff(), true
	}
}

// call performs one HTTP request and classifies the outcome.
func (c *Client) call(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: %s: build request: %w", endpoint, err)
	}
	req.Header.Set("x-apisports-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: %s: read body: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		rlErr := rateLimitError(endpoint, resp.Header)
		rlErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, rlErr
	case resp.StatusCode != http.StatusOK:
		return nil, &ServiceError{Endpoint: endpoint, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var env envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, &ServiceError{Endpoint: endpoint, Status: resp.StatusCode, Message: "malformed response body"}
	}
	if apiErrs := parseAPIErrors(env.Errors); len(apiErrs) > 0 {
		// The API reports per-minute and daily quota hits as HTTP 200
		// with a rate-limit flag in the errors map.
		if rateLimited(apiErrs) {
			return nil, rateLimitError(endpoint, resp.Header)
		}
		if detail, ok := planRestriction(apiErrs); ok {
			return nil, &PlanRestrictionError{Endpoint: endpoint, Detail: detail}
		}
		return nil, &ServiceError{Endpoint: endpoint, Status: resp.StatusCode, Message: joinAPIErrors(apiErrs)}
	}
	return env.Response, nil
}

// rateLimited reports whether the API errors flag a request quota hit.
func rateLimited(apiErrs map[string]string) bool {
	if _, ok := apiErrs["rateLimit"]; ok {
		return true
	}
	if _, ok := apiErrs["requests"]; ok {
		return true
	}
	for _, msg := range apiErrs {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests") {
			return true
		}
	}
	return false
}

// rateLimitError builds a RateLimitError carrying the quota headers the API
// sends alongside both 429s and body-level rate-limit flags.
func rateLimitError(endpoint string, h http.Header) *RateLimitError {
	limit := parseQuotaHeader(h, "X-RateLimit-Limit", "x-ratelimit-requests-limit")
	remaining := parseQuotaHeader(h, "X-RateLimit-Remaining", "x-ratelimit-requests-remaining")
	return &RateLimitError{Endpoint: endpoint, Limit: limit, Remaining: remaining}
}

// parseQuotaHeader returns the first header that parses as a non-negative
// integer, or zero.
func parseQuotaHeader(h http.Header, names ...string) int {
	for _, name := range names {
		n, err := strconv.Atoi(h.Get(name))
		if err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// parseAPIErrors decodes the envelope's errors field, which is either an
// empty array or a map of field to message.
func parseAPIErrors(raw json.RawMessage) map[string]string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var m map[string]string
	if err := sonic.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// planRestriction reports whether the API errors describe a subscription
// plan limit, and returns the API's explanation if so.
func planRestriction(apiErrs map[string]string) (string, bool) {
	if msg, ok := apiErrs["plan"]; ok {
		return msg, true
	}
	for _, msg := range apiErrs {
		if strings.Contains(strings.ToLower(msg), "plan") {
			return msg, true
		}
	}
	return "", false
}

func joinAPIErrors(apiErrs map[string]string) string {
	parts := make([]string, 0, len(apiErrs))
	for field, msg := range apiErrs {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
