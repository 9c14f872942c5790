// Package ghclient is a read-only, cached, rate-limited HTTP caller for the
// upstream code-hosting API: conditional GET caching, a two-bucket token
// bucket rate limiter, and upstream backoff on 429/403/5xx.
package ghclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"collabscout/internal/store"
)

const defaultAcceptMediaType = "application/vnd.github+json"

// ThrottleReason is a closed set of reasons a throttle event can carry.
type ThrottleReason string

const (
	ReasonTokenBucketEmpty     ThrottleReason = "token_bucket_empty"
	ReasonRateLimit429         ThrottleReason = "rate_limit_429"
	ReasonSecondaryRateLimit403 ThrottleReason = "secondary_rate_limit_403"
)

// ThrottleEvent is emitted via an injectable callback every time the client
// waits for rate-limit or backoff reasons.
type ThrottleEvent struct {
	Bucket      string
	WaitMs      int64
	Reason      ThrottleReason
	ObservedReset time.Time
}

// Request describes a single call; BaseURL and mandatory headers are
// injected once by the Client, not per request.
type Request struct {
	Path   string
	Accept string
	Bucket string
	Query  url.Values
}

// Response is the parsed result of a call.
type Response struct {
	Status    int
	JSON      any
	Raw       []byte
	Headers   http.Header
	FromCache bool
}

// Client is the read-only HTTP caller described in spec.md component C.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	apiVer    string

	httpClient *http.Client
	store      *store.Store

	searchBucket *tokenBucket
	coreBucket   *tokenBucket

	now       func() time.Time
	sleep     func(time.Duration)
	onThrottle func(ThrottleEvent)
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleep overrides the sleep function, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithThrottleCallback registers a callback invoked on every throttle wait.
func WithThrottleCallback(fn func(ThrottleEvent)) Option {
	return func(c *Client) { c.onThrottle = fn }
}

// WithHTTPClient overrides the transport, for tests (fixture servers).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client against baseURL, authenticating with token.
func New(baseURL, token, userAgent, apiVersion string, st *store.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userAgent:  userAgent,
		apiVer:     apiVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      st,
		now:        time.Now,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.searchBucket = newSearchBucket(c.now)
	c.coreBucket = newCoreBucket(c.now)
	return c
}

func (c *Client) bucketFor(name string) *tokenBucket {
	if name == BucketSearch {
		return c.searchBucket
	}
	return c.coreBucket
}

// Do issues a request, applying conditional caching, rate limiting, and
// backoff as described in spec.md §4.C.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	accept := req.Accept
	if accept == "" {
		accept = defaultAcceptMediaType
	}

	fullURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}
	cacheKey := computeCacheKey("GET", fullURL, accept)

	cached, cacheErr := c.store.GetHTTPCache(ctx, cacheKey)
	hasCache := cacheErr == nil

	bucket := c.bucketFor(req.Bucket)
	c.waitForToken(req.Bucket, bucket)

	var attempt int
	for {
		attempt++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, newTransportError(err)
		}
		httpReq.Header.Set("Accept", accept)
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
		httpReq.Header.Set("X-GitHub-Api-Version", c.apiVer)
		httpReq.Header.Set("User-Agent", c.userAgent)
		if hasCache {
			if cached.ETag != "" {
				httpReq.Header.Set("If-None-Match", cached.ETag)
			}
			if cached.LastModified != "" {
				httpReq.Header.Set("If-Modified-Since", cached.LastModified)
			}
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, newTransportError(err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, newTransportError(readErr)
		}

		switch {
		case resp.StatusCode == http.StatusNotModified && hasCache:
			if err := c.store.TouchHTTPCache(ctx, cacheKey); err != nil {
				return nil, fmt.Errorf("touch http cache: %w", err)
			}
			return c.buildResponse(http.StatusOK, cached.Body, resp.Header, true)

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if err := c.store.PutHTTPCache(ctx, &store.HTTPCacheEntry{
				CacheKey:     cacheKey,
				Method:       "GET",
				URL:          fullURL,
				Status:       resp.StatusCode,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
				Body:         body,
			}); err != nil {
				return nil, fmt.Errorf("put http cache: %w", err)
			}
			return c.buildResponse(resp.StatusCode, body, resp.Header, false)

		case resp.StatusCode == http.StatusNotFound:
			return nil, &Error{Kind: KindReadmeMissing, Status: http.StatusNotFound, Body: string(body)}

		case resp.StatusCode == 429 || resp.StatusCode == 403:
			if attempt > 3 {
				return nil, newRateLimitedError(resp.StatusCode)
			}
			reason := ReasonRateLimit429
			if resp.StatusCode == 403 {
				reason = ReasonSecondaryRateLimit403
			}
			wait := c.computeBackoffWait(resp.Header)
			c.emitThrottle(req.Bucket, wait, reason, resp.Header)
			c.sleep(wait)
			continue

		case resp.StatusCode >= 500:
			if attempt > 3 {
				return nil, newUpstreamError(resp.StatusCode, string(body))
			}
			wait := time.Duration(1<<uint(attempt)) * time.Second
			c.sleep(wait)
			continue

		default:
			return nil, newUpstreamError(resp.StatusCode, string(body))
		}
	}
}

func (c *Client) waitForToken(bucketName string, bucket *tokenBucket) {
	wait := bucket.waitFor()
	if wait > 0 {
		c.emitThrottle(bucketName, wait, ReasonTokenBucketEmpty, nil)
	}
	bucket.consume(c.sleep)
}

func (c *Client) emitThrottle(bucket string, wait time.Duration, reason ThrottleReason, headers http.Header) {
	if c.onThrottle == nil {
		return
	}
	var reset time.Time
	if headers != nil {
		if v := headers.Get("X-RateLimit-Reset"); v != "" {
			if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
				reset = time.Unix(epoch, 0)
			}
		}
	}
	c.onThrottle(ThrottleEvent{
		Bucket:        bucket,
		WaitMs:        wait.Milliseconds(),
		Reason:        reason,
		ObservedReset: reset,
	})
}

// computeBackoffWait implements: Retry-After (seconds) if present; else
// X-RateLimit-Reset (unix epoch) plus a one-second buffer; else 60s.
func (c *Client) computeBackoffWait(headers http.Header) time.Duration {
	if v := headers.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if v := headers.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			resetAt := time.Unix(epoch, 0)
			delta := resetAt.Sub(c.now())
			if delta < 0 {
				delta = 0
			}
			return delta + time.Second
		}
	}
	return 60 * time.Second
}

func (c *Client) buildResponse(status int, body []byte, headers http.Header, fromCache bool) (*Response, error) {
	resp := &Response{Status: status, Raw: body, Headers: headers, FromCache: fromCache}
	var parsed any
	if json.Valid(body) {
		if err := json.Unmarshal(body, &parsed); err == nil {
			resp.JSON = parsed
		}
	}
	return resp, nil
}

func computeCacheKey(method, url, accept string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s %s accept=%s", method, url, accept)))
	return hex.EncodeToString(sum[:])
}
