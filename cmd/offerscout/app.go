package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guarzo/offerscout/internal/aggregate"
	"github.com/guarzo/offerscout/internal/cache"
	"github.com/guarzo/offerscout/internal/concurrent"
	"github.com/guarzo/offerscout/internal/config"
	"github.com/guarzo/offerscout/internal/fulfillment"
	"github.com/guarzo/offerscout/internal/metrics"
	"github.com/guarzo/offerscout/internal/normalize"
	"github.com/guarzo/offerscout/internal/progress"
	"github.com/guarzo/offerscout/internal/report"
	"github.com/guarzo/offerscout/internal/scoring"
	"github.com/guarzo/offerscout/internal/scraper"
	"github.com/guarzo/offerscout/internal/store"
)

// app holds everything one run needs. Runs reuse it when scheduled.
type app struct {
	cfg       *config.Config
	pages     *cache.Cache
	collector *concurrent.Collector
	sink      report.Sink
	history   *store.PebbleStore
	metrics   *metrics.Registry
	bar       *progress.Bar
	now       func() time.Time
}

func newApp(cfg *config.Config) (*app, error) {
	pages, err := openPageCache(cfg.Paths)
	if err != nil {
		return nil, err
	}
	reg := metrics.NewRegistry()
	client := scraper.NewClient(cfg.ScraperConfig(), pages).WithRecorder(reg)
	a, err := buildApp(cfg, scraper.NewSource(client), reg)
	if err != nil {
		return nil, err
	}
	a.pages = pages
	return a, nil
}

func openPageCache(paths config.PathsConfig) (*cache.Cache, error) {
	pages, err := cache.New(paths.CachePath)
	if err != nil {
		return nil, err
	}
	if paths.ClearCache {
		n := pages.Len()
		if err := pages.Clear(); err != nil {
			return nil, fmt.Errorf("clear page cache: %w", err)
		}
		logrus.WithField("entries", n).Info("Runner: cleared page cache")
	}
	return pages, nil
}

// buildApp wires everything behind the page source.
func buildApp(cfg *config.Config, src concurrent.Source, reg *metrics.Registry) (*app, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		metrics: reg,
		bar:     progress.New(os.Stderr, "Collecting", cfg.Progress),
		now:     time.Now,
	}

	cc := cfg.CollectorConfig()
	cc.OnProgress = a.bar.Observe
	a.collector = concurrent.NewCollector(cc, src, engine)

	sinks := report.MultiSink{report.NewXLSXSink(cfg.Paths.Output, cfg.Paths.MaxOffers)}
	if cfg.Paths.CSVDir != "" {
		sinks = append(sinks, report.NewCSVSink(cfg.Paths.CSVDir, cfg.Paths.MaxOffers))
	}
	a.sink = sinks

	if cfg.Paths.HistoryDir != "" {
		h, err := store.NewPebbleStore(cfg.Paths.HistoryDir)
		if err != nil {
			return nil, err
		}
		a.history = h
	}
	return a, nil
}

func newEngine(cfg *config.Config) (*aggregate.Engine, error) {
	sc, err := cfg.ScoringConfig()
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.New(sc)
	if err != nil {
		return nil, err
	}
	return aggregate.NewEngine(
		normalize.New(cfg.NormalizeConfig()),
		fulfillment.New(fulfillment.DefaultConfig()),
		aggregate.New(cfg.AggregateConfig(), scorer),
	), nil
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// runOnce collects every product in the input file and writes the results.
// A product that fails is reported as an error row; only input, output and
// history failures fail the run.
func (a *app) runOnce(ctx context.Context) error {
	reqs, err := readRequests(a.cfg.Paths.Input)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	log := logrus.WithField("run_id", runID)
	log.WithField("products", len(reqs)).Info("Runner: starting run")

	results := a.collector.Run(ctx, reqs)
	stats := a.collector.Stats()
	a.bar.Finish(stats)

	records := make([]report.Record, len(results))
	for i, res := range results {
		records[i] = report.Record{
			RunID:   runID,
			Request: res.Request,
			Page:    res.Page,
			Summary: res.Outcome.Summary,
			Offers:  res.Outcome.Offers,
			Err:     res.Err,
		}
		logResult(log, res)
	}
	if a.metrics != nil {
		a.metrics.ObserveRun(results, a.now())
	}

	var errs []error
	if err := a.sink.Write(records); err != nil {
		errs = append(errs, fmt.Errorf("write results: %w", err))
	}
	if err := a.recordHistory(log, runID, results); err != nil {
		errs = append(errs, err)
	}
	if a.pages != nil {
		if n, err := a.pages.Prune(); err != nil {
			log.WithError(err).Warn("Runner: cache prune failed")
		} else if n > 0 {
			log.WithField("entries", n).Debug("Runner: pruned page cache")
		}
	}

	log.WithFields(logrus.Fields{
		"succeeded":   stats.Succeeded,
		"no_offers":   stats.NoOffers,
		"failed":      stats.Failed,
		"retries":     stats.Retries,
		"avg_latency": stats.AverageLatency().String(),
	}).Info("Runner: run finished")
	return errors.Join(errs...)
}

func logResult(log *logrus.Entry, res concurrent.Result) {
	entry := log.WithFields(logrus.Fields{
		"product_id": res.Request.ProductID,
		"attempts":   res.Attempts,
	})
	if res.Failed() {
		entry.WithError(res.Err).Warn("Runner: product failed")
		return
	}
	s := res.Outcome.Summary
	fields := logrus.Fields{
		"status":  s.Status,
		"offers":  s.OfferCount,
		"valid":   s.ValidOfferCount,
		"sellers": s.DistinctSellerCount,
		"score":   fmt.Sprintf("%.4f", s.AggregateScore),
	}
	if s.BestOffer != nil {
		fields["best_seller"] = s.BestOffer.SellerName
		fields["best_total"] = s.BestOffer.TotalCost.String()
	}
	entry.WithFields(fields).Info("Runner: product summarized")
}

// recordHistory compares each successful summary with the previous run,
// logs what moved, stores the new snapshots and prunes old ones.
func (a *app) recordHistory(log *logrus.Entry, runID string, results []concurrent.Result) error {
	if a.history == nil {
		return nil
	}
	var snaps []store.Snapshot
	for _, res := range results {
		if res.Failed() {
			continue
		}
		s := res.Outcome.Summary
		if prev, ok, err := a.history.Latest(s.ProductID); err != nil {
			log.WithError(err).WithField("product_id", s.ProductID).Warn("Runner: history lookup failed")
		} else if ok {
			logChange(log, store.Diff(prev, s))
		}
		snaps = append(snaps, store.Snapshot{RunID: runID, Summary: s})
	}
	if err := a.history.PutAll(snaps); err != nil {
		return fmt.Errorf("store history: %w", err)
	}

	if days := a.cfg.Paths.RetentionDays; days > 0 {
		cutoff := a.now().AddDate(0, 0, -days)
		for _, s := range snaps {
			if err := a.history.Prune(s.Summary.ProductID, cutoff); err != nil {
				log.WithError(err).Warn("Runner: history prune failed")
			}
		}
	}
	return nil
}

func logChange(log *logrus.Entry, c store.Change) {
	fields := logrus.Fields{
		"product_id":  c.ProductID,
		"since":       c.PreviousAt.Format(time.RFC3339),
		"score_delta": fmt.Sprintf("%+.4f", c.ScoreDelta),
		"sellers":     c.SellerDelta,
	}
	if c.BestTotalDelta != nil {
		fields["best_total_delta"] = c.BestTotalDelta.String()
	}
	entry := log.WithFields(fields)
	if c.StatusChanged || c.BestSellerMove {
		entry.Info("Runner: best offer changed since last run")
		return
	}
	entry.Debug("Runner: compared with last run")
}
