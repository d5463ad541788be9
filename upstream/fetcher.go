// Package upstream fetches JSON documents from the configured REST
// service with short-lived caching and bounded retries.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/contentsquare/tablecheck/cache"
	"github.com/contentsquare/tablecheck/config"
	"github.com/contentsquare/tablecheck/log"
)

// Fetcher issues GETs against one upstream base URL, consulting a
// shared TTL cache first. A fetch makes at most cfg.Retries network
// attempts; transient failures back off linearly between attempts.
type Fetcher struct {
	client  *http.Client
	baseURL *url.URL
	cache   cache.Cache

	ttl     time.Duration
	timeout time.Duration
	retries int
	backoff time.Duration

	// limiter throttles outgoing requests; nil when max_rps is zero.
	limiter *rate.Limiter
}

// New builds a fetcher for cfg, storing payloads in c for ttl.
func New(cfg config.Upstream, c cache.Cache, ttl time.Duration) (*Fetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse upstream base URL %q: %w", cfg.BaseURL, err)
	}

	var limiter *rate.Limiter
	if cfg.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), cfg.MaxRPS)
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout),
		},
		baseURL: base,
		cache:   c,
		ttl:     ttl,
		timeout: time.Duration(cfg.Timeout),
		retries: cfg.Retries,
		backoff: time.Duration(cfg.RetryBackoff),
		limiter: limiter,
	}, nil
}

// Fetch returns the JSON payload for path+params, from the cache
// when a fresh entry exists, from the network otherwise. Successful
// payloads are cached for the configured TTL.
//
// Two concurrent misses for the same key may both hit the network.
// That race is accepted: the fetch is an idempotent GET and the
// second Put merely resets the entry's expiration.
func (f *Fetcher) Fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := f.resolveURL(path)
	key := cache.NewKey(http.MethodGet, u, params)

	if payload, err := f.cache.Get(key); err == nil {
		cacheHits.Inc()
		log.Debugf("cache hit for %q", u)
		return payload, nil
	}
	cacheMisses.Inc()

	// The whole attempt loop runs under one wall-clock budget.
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	payload, err := f.fetchNetwork(ctx, u, params)
	if err != nil {
		var kind ErrorKind
		if ferr, ok := err.(*Error); ok {
			kind = ferr.Kind
		}
		fetchErrors.With(prometheus.Labels{"kind": kind.String()}).Inc()
		return nil, err
	}

	if err := f.cache.Put(key, payload, f.ttl); err != nil {
		// A failed cache write must not fail the fetch.
		log.Errorf("cannot cache payload for %q: %s", u, err)
	}
	return payload, nil
}

func (f *Fetcher) resolveURL(path string) string {
	u := *f.baseURL
	u.Path = singleJoiningSlash(u.Path, path)
	return u.String()
}

// fetchNetwork runs the attempt loop. Only transient failures are
// retried: network errors, timeouts and 5xx statuses. 4xx and
// unparseable 2xx bodies surface immediately.
func (f *Fetcher) fetchNetwork(ctx context.Context, u string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			retriesTotal.Inc()
			if err := sleepCtx(ctx, time.Duration(attempt)*f.backoff); err != nil {
				break
			}
		}

		payload, err := f.attempt(ctx, u, params)
		if err == nil {
			return payload, nil
		}
		ferr, ok := err.(*Error)
		if ok && ferr.Kind != Unavailable {
			// Non-retryable by classification.
			return nil, err
		}
		log.Debugf("attempt %d for %q failed: %s", attempt+1, u, err)
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return nil, &Error{Kind: Unavailable, URL: u, Err: ctx.Err()}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &Error{Kind: Unavailable, URL: u, Err: fmt.Errorf("no attempts were made")}
}

// attempt performs a single network round trip.
func (f *Fetcher) attempt(ctx context.Context, u string, params url.Values) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: Unavailable, URL: u, Err: err}
		}
	}

	full := u
	if len(params) > 0 {
		full = u + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, &Error{Kind: Unavailable, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: Unavailable, URL: u, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: Unavailable, URL: u, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: Unavailable, URL: u, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, &Error{Kind: ClientError, URL: u, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 300:
		// Redirects are followed by the client; anything left over
		// is not a payload we can use.
		return nil, &Error{Kind: Unavailable, URL: u, StatusCode: resp.StatusCode}
	}

	if !json.Valid(body) {
		return nil, &Error{Kind: Malformed, URL: u, StatusCode: resp.StatusCode}
	}

	return body, nil
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

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
