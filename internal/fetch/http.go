package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes caps a single response body, 50 MiB unless MAX_PDF_SIZE
// overrides it. Scanned orders run to a few megabytes; anything near the
// cap is a misbehaving endpoint and is rejected, not truncated.
var maxBodyBytes = bodyLimit()

func bodyLimit() int64 {
	if v := os.Getenv("MAX_PDF_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("[fetch] ignoring invalid MAX_PDF_SIZE=%q", v)
	}
	return 50 << 20
}

// readCapped drains r up to the configured limit and fails when the body
// runs past it.
func readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > maxBodyBytes {
		return nil, fmt.Errorf("body over %d bytes: %w", maxBodyBytes, ErrBodyTooLarge)
	}
	return data, nil
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Response is a fully-read HTTP response.
type Response struct {
	Body        []byte
	StatusCode  int
	ContentType string
	ETag        string
	FinalURL    string
	FetchedAt   time.Time
}

// Request tunes a single fetch.
type Request struct {
	URL        string
	Referer    string
	ETag       string // sent as If-None-Match when set
	MaxRetries int
	Timeout    time.Duration
}

// HTTPFetcher is the plain-HTTP path for sources without anti-bot
// protection. One token-bucket limiter per host keeps load polite.
type HTTPFetcher struct {
	client   *http.Client
	hosts    HostChecker
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

func NewHTTPFetcher(hosts HostChecker) *HTTPFetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           safeDialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport:     transport,
			CheckRedirect: safeCheckRedirect,
		},
		hosts:    hosts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		// One request per 2 seconds with a small burst.
		l = rate.NewLimiter(rate.Every(2*time.Second), 2)
		f.limiters[host] = l
	}
	return l
}

// Fetch issues a GET with retries and exponential backoff. A 304 response to
// a conditional request is returned as-is with an empty body.
func (f *HTTPFetcher) Fetch(ctx context.Context, r Request) (*Response, error) {
	if err := ValidateURL(r.URL, f.hosts); err != nil {
		return nil, err
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.Timeout == 0 {
		r.Timeout = 60 * time.Second
	}

	if err := f.limiter(u.Hostname()).Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 0.5s, 1s, 2s + jitter
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		resp, err := f.doOnce(ctx, r)
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, err
		}
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotModified {
			return resp, nil
		}
		lastErr = fmt.Errorf("status code %d", resp.StatusCode)
		if !shouldRetry(nil, resp.StatusCode) {
			return nil, fmt.Errorf("fetch %s: %w", r.URL, lastErr)
		}
	}
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", r.URL, r.MaxRetries+1, lastErr)
}

func (f *HTTPFetcher) doOnce(ctx context.Context, r Request) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if r.Referer != "" {
		req.Header.Set("Referer", r.Referer)
	}
	if r.ETag != "" {
		req.Header.Set("If-None-Match", r.ETag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := readCapped(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		FinalURL:    resp.Request.URL.String(),
		FetchedAt:   time.Now(),
	}, nil
}

func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}
	retryStatusCodes := map[int]bool{
		429: true,
		500: true,
		502: true,
		503: true,
		504: true,
	}
	return retryStatusCodes[statusCode]
}
