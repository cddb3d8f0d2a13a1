package concurrent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/guarzo/offerscout/internal/aggregate"
	"github.com/guarzo/offerscout/internal/model"
	"github.com/guarzo/offerscout/internal/scraper"
)

// ErrNoOffers marks a product whose pages yielded no offers at all. The
// result still carries a "no data" summary.
var ErrNoOffers = errors.New("no offers found")

// Source collects the raw offers of one product.
type Source interface {
	Collect(ctx context.Context, req model.ProductRequest) (*scraper.Listing, error)
}

// Processor turns a complete raw offer list into scored output.
type Processor interface {
	Process(productID string, raws []model.RawOffer) aggregate.Result
}

// Result is the outcome for one product.
type Result struct {
	Request  model.ProductRequest
	Page     *model.ProductPage
	Outcome  aggregate.Result
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Failed reports whether collection failed. ErrNoOffers is not a failure.
func (r Result) Failed() bool {
	return r.Err != nil && !errors.Is(r.Err, ErrNoOffers)
}

// Progress is sent after every finished product.
type Progress struct {
	Completed int
	Total     int
	Current   string
	StartTime time.Time
	Errors    int
}

// RetryFunc decides whether a failed attempt is retried.
type RetryFunc func(err error, attempt int) bool

// Config holds configuration for the collector
type Config struct {
	Workers     int           // concurrent products
	RateLimit   rate.Limit    // products started per second
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // doubled per retry
	RetryIf     RetryFunc
	OnProgress  func(Progress)
}

// Stats tracks run totals.
type Stats struct {
	Products     int
	Succeeded    int
	Failed       int
	NoOffers     int
	Retries      int
	TotalLatency time.Duration
	StartTime    time.Time
	EndTime      time.Time
}

// AverageLatency is the mean elapsed time per product.
func (s Stats) AverageLatency() time.Duration {
	if s.Products == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Products)
}

// Collector runs Source and Processor for many products on a bounded
// worker pool. Each product's offers are collected completely before they
// are processed, exactly once.
type Collector struct {
	workers     int
	limiter     *rate.Limiter
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	retryIf     RetryFunc
	onProgress  func(Progress)
	source      Source
	processor   Processor

	mu    sync.Mutex
	stats Stats
}

// NewCollector creates a collector; zero config fields get defaults.
func NewCollector(cfg Config, src Source, proc Processor) *Collector {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 10 {
			workers = 10
		}
	}

	limit := cfg.RateLimit
	if limit == 0 {
		limit = rate.Inf
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}

	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 10 * time.Second
	}

	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetry
	}

	return &Collector{
		workers:     workers,
		limiter:     rate.NewLimiter(limit, workers),
		timeout:     timeout,
		maxAttempts: attempts,
		backoff:     backoff,
		retryIf:     retryIf,
		onProgress:  cfg.OnProgress,
		source:      src,
		processor:   proc,
	}
}

type job struct {
	index int
	req   model.ProductRequest
}

type indexed struct {
	index  int
	result Result
}

// Run collects every request and returns results in input order. A
// cancelled context stops new work; unfinished products come back with the
// context error.
func (c *Collector) Run(ctx context.Context, reqs []model.ProductRequest) []Result {
	results := make([]Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	start := time.Now()
	c.mu.Lock()
	c.stats = Stats{Products: len(reqs), StartTime: start}
	c.mu.Unlock()

	jobs := make(chan job)
	out := make(chan indexed, len(reqs))

	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go c.worker(ctx, jobs, out, &wg)
	}

	go func() {
		defer close(jobs)
		for i, req := range reqs {
			select {
			case jobs <- job{index: i, req: req}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	done := make([]bool, len(reqs))
	completed := 0
	for r := range out {
		results[r.index] = r.result
		done[r.index] = true
		completed++
		c.record(r.result)
		if c.onProgress != nil {
			c.onProgress(Progress{
				Completed: completed,
				Total:     len(reqs),
				Current:   r.result.Request.ProductID,
				StartTime: start,
				Errors:    c.failedCount(),
			})
		}
	}

	for i, ok := range done {
		if !ok {
			results[i] = Result{Request: reqs[i], Err: fmt.Errorf("not collected: %w", context.Cause(ctx))}
			c.record(results[i])
		}
	}

	c.mu.Lock()
	c.stats.EndTime = time.Now()
	c.mu.Unlock()
	return results
}

func (c *Collector) worker(ctx context.Context, jobs <-chan job, out chan<- indexed, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := c.limiter.Wait(ctx); err != nil {
				out <- indexed{j.index, Result{Request: j.req, Err: fmt.Errorf("rate limit wait: %w", err)}}
				continue
			}
			out <- indexed{j.index, c.collect(ctx, j.req)}
		case <-ctx.Done():
			return
		}
	}
}

// collect runs one product with per-attempt timeout and retries.
func (c *Collector) collect(ctx context.Context, req model.ProductRequest) Result {
	start := time.Now()
	res := Result{Request: req}
	log := logrus.WithField("product_id", req.ProductID)

	var listing *scraper.Listing
	var lastErr error
	backoff := c.backoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res.Attempts = attempt
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		listing, lastErr = c.source.Collect(attemptCtx, req)
		cancel()
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil || attempt == c.maxAttempts || !c.retryIf(lastErr, attempt) {
			break
		}

		c.mu.Lock()
		c.stats.Retries++
		c.mu.Unlock()
		log.WithError(lastErr).WithField("attempt", attempt).Warnf("Collector: retrying in %v", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		backoff *= 2
	}

	res.Elapsed = time.Since(start)
	if lastErr != nil {
		res.Err = fmt.Errorf("collect %s: %w", req.ProductID, lastErr)
		res.Outcome = aggregate.Result{ProductID: req.ProductID}
		log.WithError(res.Err).Error("Collector: product failed")
		return res
	}

	res.Page = listing.Page
	res.Outcome = c.processor.Process(req.ProductID, listing.Offers)
	if len(listing.Offers) == 0 {
		res.Err = ErrNoOffers
		log.Warn("Collector: no offers found")
	}
	return res
}

func (c *Collector) record(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalLatency += r.Elapsed
	switch {
	case r.Failed():
		c.stats.Failed++
	case r.Err != nil:
		c.stats.NoOffers++
	default:
		c.stats.Succeeded++
	}
}

func (c *Collector) failedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Failed
}

// Stats returns a copy of the latest run totals.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// DefaultRetry retries blocked requests and timeouts once.
func DefaultRetry(err error, attempt int) bool {
	if errors.Is(err, scraper.ErrBlocked) || errors.Is(err, context.DeadlineExceeded) {
		return attempt < 2
	}
	return false
}
