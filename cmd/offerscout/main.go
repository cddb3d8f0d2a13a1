// Command offerscout collects the competing offers of a list of products,
// scores them and writes a ranked summary per product.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/guarzo/offerscout/internal/config"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Error("offerscout failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		// flags may still fix it; validated again below
		logrus.WithError(err).Debug("environment config incomplete")
	}
	bindFlags(flag.CommandLine, cfg)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Paths.Input == "" {
		return errors.New("-input is required")
	}
	cfg.ConfigureLogger()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logrus.WithField("addr", cfg.MetricsAddr).Info("Metrics: listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("Metrics: server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Schedule == "" {
		return a.runOnce(ctx)
	}
	return schedule(ctx, cfg.Schedule, a)
}

// bindFlags lets command line flags override environment settings.
func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Paths.Input, "input", cfg.Paths.Input, "CSV of product_id,detail_url,offers_url")
	fs.StringVar(&cfg.Paths.Output, "out", cfg.Paths.Output, "xlsx workbook to append results to")
	fs.StringVar(&cfg.Paths.CSVDir, "csv-dir", cfg.Paths.CSVDir, "also append CSV files to this directory")
	fs.StringVar(&cfg.Paths.HistoryDir, "history-dir", cfg.Paths.HistoryDir, "pebble directory for run history")
	fs.StringVar(&cfg.Paths.CachePath, "cache", cfg.Paths.CachePath, "page cache file")
	fs.BoolVar(&cfg.Paths.ClearCache, "clear-cache", cfg.Paths.ClearCache, "empty the page cache before the first run")
	fs.IntVar(&cfg.Paths.MaxOffers, "max-offers", cfg.Paths.MaxOffers, "ranked offers written per product")
	fs.IntVar(&cfg.Collector.Workers, "workers", cfg.Collector.Workers, "products collected concurrently")
	fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "cron spec; run repeatedly until interrupted")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve prometheus metrics on this address")
	fs.BoolVar(&cfg.Progress, "progress", cfg.Progress, "draw a progress bar on stderr")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn or error")
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

// schedule runs a on spec until ctx ends. Overlapping runs are skipped.
func schedule(ctx context.Context, spec string, a *app) error {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	id, err := c.AddFunc(spec, func() {
		if err := a.runOnce(ctx); err != nil {
			logrus.WithError(err).Error("Scheduler: run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	c.Start()
	logrus.WithFields(logrus.Fields{
		"schedule": spec,
		"next":     c.Entry(id).Next.Format(time.RFC3339),
	}).Info("Scheduler: waiting for first run")

	<-ctx.Done()
	logrus.Info("Scheduler: shutting down")
	<-c.Stop().Done()
	return nil
}
