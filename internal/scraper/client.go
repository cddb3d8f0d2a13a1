// Package scraper fetches product detail and offer listing pages and turns
// them into raw offers and product metadata.
package scraper

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/guarzo/offerscout/internal/cache"
)

var (
	// ErrBlocked means the marketplace answered with a robot check or
	// throttling status instead of the page.
	ErrBlocked = errors.New("request blocked")
	// ErrNotFound means the page does not exist.
	ErrNotFound = errors.New("page not found")
)

// Page kinds, used for cache keys and metrics labels.
const (
	KindDetail = "detail"
	KindOffers = "offers"
)

var blockMarkers = []string{
	"/errors/validateCaptcha",
	"api-services-support@amazon.com",
	"Type the characters you see in this image",
	"画像に表示されている文字を入力してください",
}

// Config tunes the HTTP client.
type Config struct {
	UserAgents     []string
	AcceptLanguage string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration // doubled after every failed attempt
	RatePerSecond  float64
	Burst          int
	CacheTTL       time.Duration
}

// DefaultConfig returns conservative pacing for a single marketplace.
func DefaultConfig() Config {
	return Config{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		},
		AcceptLanguage: "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7",
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		RatePerSecond:  0.5,
		Burst:          1,
		CacheTTL:       6 * time.Hour,
	}
}

// Recorder receives one observation per Fetch call.
type Recorder interface {
	ObserveFetch(kind string, elapsed time.Duration, cached bool, err error)
}

// Client fetches pages with pacing, retries and an optional page cache.
type Client struct {
	cfg      Config
	http     *resty.Client
	limiter  *rate.Limiter
	cache    *cache.Cache
	recorder Recorder
	sleep    func(context.Context, time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewClient builds a Client. pageCache may be nil.
func NewClient(cfg Config, pageCache *cache.Cache) *Client {
	def := DefaultConfig()
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = def.UserAgents
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = def.AcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeaders(map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           cfg.AcceptLanguage,
			"Accept-Encoding":           "gzip, br",
			"DNT":                       "1",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Cache-Control":             "max-age=0",
		})

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cache:   pageCache,
		sleep:   sleepContext,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRecorder attaches a fetch observer and returns c.
func (c *Client) WithRecorder(r Recorder) *Client {
	c.recorder = r
	return c
}

// Fetch returns the decoded body of url. kind is one of KindDetail or
// KindOffers. Transient failures are retried with exponential backoff;
// ErrNotFound is returned immediately.
func (c *Client) Fetch(ctx context.Context, kind, url string) (string, error) {
	start := time.Now()
	key := cache.PageKey(kind, url)

	if c.cache != nil {
		if entry, ok := c.cache.Get(key); ok {
			c.observe(kind, start, true, nil)
			return entry.Body, nil
		}
	}

	body, err := c.fetchWithRetry(ctx, kind, url)
	c.observe(kind, start, false, err)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.Put(key, body, http.StatusOK, c.cfg.CacheTTL); err != nil {
			logrus.WithError(err).WithField("url", url).Warn("Scraper: failed to cache page")
		}
	}
	return body, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, kind, url string) (string, error) {
	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logrus.WithFields(logrus.Fields{
				"kind":    kind,
				"url":     url,
				"attempt": attempt + 1,
				"wait":    delay.String(),
			}).Warnf("Scraper: retrying after %v", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
			delay *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}

		body, err := c.do(ctx, url)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("fetch %s failed after %d attempts: %w", kind, c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, url string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", c.userAgent()).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound:
		return "", fmt.Errorf("%s: %w", url, ErrNotFound)
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return "", fmt.Errorf("HTTP %d: %w", status, ErrBlocked)
	case status != http.StatusOK:
		return "", fmt.Errorf("HTTP %d: %s", status, resp.Status())
	}

	reader, err := decodeBody(resp.Header().Get("Content-Encoding"), raw)
	if err != nil {
		return "", fmt.Errorf("failed to create reader: %w", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	body := string(data)
	if IsBlocked(body) {
		return "", fmt.Errorf("robot check page: %w", ErrBlocked)
	}
	return body, nil
}

func (c *Client) userAgent() string {
	if len(c.cfg.UserAgents) == 1 {
		return c.cfg.UserAgents[0]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.UserAgents[c.rnd.Intn(len(c.cfg.UserAgents))]
}

func (c *Client) observe(kind string, start time.Time, cached bool, err error) {
	if c.recorder != nil {
		c.recorder.ObserveFetch(kind, time.Since(start), cached, err)
	}
}

// IsBlocked reports whether body is a robot check page.
func IsBlocked(body string) bool {
	for _, m := range blockMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

func decodeBody(encoding string, body io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		return gzip.NewReader(body)
	case "br":
		return brotli.NewReader(body), nil
	}
	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
