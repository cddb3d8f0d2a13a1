package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guarzo/offerscout/internal/concurrent"
)

type Registry struct {
	reg *prometheus.Registry

	Products      *prometheus.CounterVec // by summary status, or "error"
	Offers        prometheus.Counter
	InvalidOffers prometheus.Counter
	Duplicates    prometheus.Counter
	Retries       prometheus.Counter
	Score         prometheus.Histogram

	Fetches      *prometheus.CounterVec // by page kind and result
	FetchLatency *prometheus.HistogramVec
	LastRun      prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	products := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "offerscout_products_total"}, []string{"status"})
	offers := prometheus.NewCounter(prometheus.CounterOpts{Name: "offerscout_offers_total"})
	invalid := prometheus.NewCounter(prometheus.CounterOpts{Name: "offerscout_invalid_offers_total"})
	dupes := prometheus.NewCounter(prometheus.CounterOpts{Name: "offerscout_duplicate_offers_total"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{Name: "offerscout_collect_retries_total"})
	score := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "offerscout_aggregate_score",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "offerscout_fetches_total"}, []string{"kind", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offerscout_fetch_latency_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{Name: "offerscout_last_run_timestamp_seconds"})

	r.MustRegister(products, offers, invalid, dupes, retries, score, fetches, latency, lastRun)
	return &Registry{
		reg:           r,
		Products:      products,
		Offers:        offers,
		InvalidOffers: invalid,
		Duplicates:    dupes,
		Retries:       retries,
		Score:         score,
		Fetches:       fetches,
		FetchLatency:  latency,
		LastRun:       lastRun,
	}
}

// ObserveFetch records one page fetch. Cache hits carry no latency.
func (r *Registry) ObserveFetch(kind string, elapsed time.Duration, cached bool, err error) {
	switch {
	case err != nil:
		r.Fetches.WithLabelValues(kind, "error").Inc()
	case cached:
		r.Fetches.WithLabelValues(kind, "cache").Inc()
		return
	default:
		r.Fetches.WithLabelValues(kind, "ok").Inc()
	}
	r.FetchLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveResult records one collected product.
func (r *Registry) ObserveResult(res concurrent.Result) {
	if res.Attempts > 1 {
		r.Retries.Add(float64(res.Attempts - 1))
	}
	if res.Failed() {
		r.Products.WithLabelValues("error").Inc()
		return
	}
	s := res.Outcome.Summary
	r.Products.WithLabelValues(string(s.Status)).Inc()
	r.Offers.Add(float64(s.OfferCount))
	r.InvalidOffers.Add(float64(s.OfferCount - s.ValidOfferCount))
	r.Duplicates.Add(float64(s.DuplicatesDropped))
	if s.OfferCount > 0 {
		r.Score.Observe(s.AggregateScore)
	}
}

// ObserveRun records a finished batch.
func (r *Registry) ObserveRun(results []concurrent.Result, at time.Time) {
	for _, res := range results {
		r.ObserveResult(res)
	}
	r.LastRun.Set(float64(at.Unix()))
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
