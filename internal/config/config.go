// Package config loads run settings from the environment (and an optional
// .env file) and turns them into the per-package configs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/guarzo/offerscout/internal/aggregate"
	"github.com/guarzo/offerscout/internal/concurrent"
	"github.com/guarzo/offerscout/internal/normalize"
	"github.com/guarzo/offerscout/internal/scoring"
	"github.com/guarzo/offerscout/internal/scraper"
)

type Config struct {
	Environment string `validate:"required"`
	LogLevel    string `validate:"oneof=trace debug info warn error"`
	LogFormat   string `validate:"oneof=text json"`

	Paths     PathsConfig
	Scraper   ScraperConfig
	Collector CollectorConfig
	Normalize NormalizeConfig
	Scoring   ScoringConfig
	Aggregate AggregateConfig

	Schedule    string
	MetricsAddr string
	Progress    bool
}

type PathsConfig struct {
	Input         string
	Output        string `validate:"required"`
	CSVDir        string
	HistoryDir    string
	CachePath     string
	ClearCache    bool
	MaxOffers     int `validate:"min=0"`
	RetentionDays int `validate:"min=0"` // 0 keeps all history
}

type ScraperConfig struct {
	UserAgent      string
	AcceptLanguage string
	TimeoutSec     int     `validate:"min=1"`
	MaxRetries     int     `validate:"min=1,max=10"`
	RetryDelaySec  int     `validate:"min=0"`
	RatePerSecond  float64 `validate:"min=0"` // 0 means unpaced
	Burst          int     `validate:"min=1"`
	CacheTTLHours  int     `validate:"min=0"`
}

type CollectorConfig struct {
	Workers     int `validate:"min=1,max=64"`
	TimeoutSec  int `validate:"min=1"`
	MaxAttempts int `validate:"min=1,max=10"`
	BackoffSec  int `validate:"min=0"`
}

type NormalizeConfig struct {
	BaseCurrency      string `validate:"len=3,uppercase"`
	Rates             string // "USD=150,EUR=160"
	LowStockThreshold int    `validate:"min=0"`
}

type ScoringConfig struct {
	StockWeight       float64 `validate:"min=0,max=1"`
	FulfillmentWeight float64 `validate:"min=0,max=1"`
	PriceWeight       float64 `validate:"min=0,max=1"`
	InvalidScore      float64 `validate:"min=0,max=1"`
}

type AggregateConfig struct {
	PriceBandLower       float64 `validate:"gt=0"`
	PriceBandUpper       float64 `validate:"gtfield=PriceBandLower"`
	PivotRank            int     `validate:"min=1"`
	MinGroupSize         int     `validate:"min=1"`
	BuyBoxStockThreshold int     `validate:"min=1"` // buy box quantity must exceed this
	SufficientIndex      int     `validate:"min=1"`
}

var validate = validator.New()

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	sc := scraper.DefaultConfig()
	sw := scoring.DefaultWeights()
	sd := scoring.DefaultConfig()
	ad := aggregate.DefaultConfig()
	nd := normalize.DefaultConfig()

	config := &Config{
		Environment: getEnv("OFFERSCOUT_ENV", "development"),
		LogLevel:    strings.ToLower(getEnv("OFFERSCOUT_LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("OFFERSCOUT_LOG_FORMAT", "text")),
		Paths: PathsConfig{
			Input:         getEnv("OFFERSCOUT_INPUT", ""),
			Output:        getEnv("OFFERSCOUT_OUTPUT", "offerscout.xlsx"),
			CSVDir:        getEnv("OFFERSCOUT_CSV_DIR", ""),
			HistoryDir:    getEnv("OFFERSCOUT_HISTORY_DIR", ""),
			CachePath:     getEnv("OFFERSCOUT_CACHE", ""),
			ClearCache:    getEnvAsBool("OFFERSCOUT_CLEAR_CACHE", false),
			MaxOffers:     getEnvAsInt("OFFERSCOUT_MAX_OFFERS", 10),
			RetentionDays: getEnvAsInt("OFFERSCOUT_HISTORY_RETENTION_DAYS", 90),
		},
		Scraper: ScraperConfig{
			UserAgent:      getEnv("OFFERSCOUT_USER_AGENT", ""),
			AcceptLanguage: getEnv("OFFERSCOUT_ACCEPT_LANGUAGE", sc.AcceptLanguage),
			TimeoutSec:     getEnvAsInt("OFFERSCOUT_HTTP_TIMEOUT", int(sc.Timeout/time.Second)),
			MaxRetries:     getEnvAsInt("OFFERSCOUT_HTTP_RETRIES", sc.MaxRetries),
			RetryDelaySec:  getEnvAsInt("OFFERSCOUT_HTTP_RETRY_DELAY", int(sc.RetryDelay/time.Second)),
			RatePerSecond:  getEnvAsFloat("OFFERSCOUT_RATE", sc.RatePerSecond),
			Burst:          getEnvAsInt("OFFERSCOUT_BURST", sc.Burst),
			CacheTTLHours:  getEnvAsInt("OFFERSCOUT_CACHE_TTL_HOURS", int(sc.CacheTTL/time.Hour)),
		},
		Collector: CollectorConfig{
			Workers:     getEnvAsInt("OFFERSCOUT_WORKERS", 4),
			TimeoutSec:  getEnvAsInt("OFFERSCOUT_PRODUCT_TIMEOUT", 120),
			MaxAttempts: getEnvAsInt("OFFERSCOUT_PRODUCT_ATTEMPTS", 2),
			BackoffSec:  getEnvAsInt("OFFERSCOUT_PRODUCT_BACKOFF", 10),
		},
		Normalize: NormalizeConfig{
			BaseCurrency:      strings.ToUpper(getEnv("OFFERSCOUT_BASE_CURRENCY", nd.BaseCurrency)),
			Rates:             getEnv("OFFERSCOUT_RATES", ""),
			LowStockThreshold: getEnvAsInt("OFFERSCOUT_LOW_STOCK", nd.LowStockThreshold),
		},
		Scoring: ScoringConfig{
			StockWeight:       getEnvAsFloat("OFFERSCOUT_WEIGHT_STOCK", sw.Stock),
			FulfillmentWeight: getEnvAsFloat("OFFERSCOUT_WEIGHT_FULFILLMENT", sw.Fulfillment),
			PriceWeight:       getEnvAsFloat("OFFERSCOUT_WEIGHT_PRICE", sw.Price),
			InvalidScore:      getEnvAsFloat("OFFERSCOUT_INVALID_SCORE", sd.InvalidScore),
		},
		Aggregate: AggregateConfig{
			PriceBandLower:       getEnvAsFloat("OFFERSCOUT_BAND_LOWER", ad.PriceBandLower),
			PriceBandUpper:       getEnvAsFloat("OFFERSCOUT_BAND_UPPER", ad.PriceBandUpper),
			PivotRank:            getEnvAsInt("OFFERSCOUT_PIVOT_RANK", ad.PivotRank),
			MinGroupSize:         getEnvAsInt("OFFERSCOUT_MIN_GROUP", ad.MinGroupSize),
			BuyBoxStockThreshold: getEnvAsInt("OFFERSCOUT_BUYBOX_STOCK", ad.BuyBoxStockThreshold),
			SufficientIndex:      getEnvAsInt("OFFERSCOUT_SUFFICIENT_INDEX", ad.SufficientIndex),
		},
		Schedule:    getEnv("OFFERSCOUT_SCHEDULE", ""),
		MetricsAddr: getEnv("OFFERSCOUT_METRICS_ADDR", ""),
		Progress:    getEnvAsBool("OFFERSCOUT_PROGRESS", false),
	}

	return config, config.Validate()
}

// Validate checks field ranges, then the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseRates(c.Normalize.Rates); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.ScoringConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseRates reads "USD=150,EUR=160" into multipliers.
func ParseRates(s string) (map[string]decimal.Decimal, error) {
	rates := map[string]decimal.Decimal{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("rate %q: want CODE=value", part)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", part, err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("rate %q: must be positive", part)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = d
	}
	return rates, nil
}

func (c *Config) NormalizeConfig() normalize.Config {
	n := normalize.DefaultConfig()
	n.BaseCurrency = c.Normalize.BaseCurrency
	n.LowStockThreshold = c.Normalize.LowStockThreshold
	if rates, err := ParseRates(c.Normalize.Rates); err == nil {
		n.Rates = rates
	}
	return n
}

// ScoringConfig returns the scoring policy, failing when the weights do
// not sum to 1.
func (c *Config) ScoringConfig() (scoring.Config, error) {
	s := scoring.DefaultConfig()
	s.Weights = scoring.Weights{
		Stock:       c.Scoring.StockWeight,
		Fulfillment: c.Scoring.FulfillmentWeight,
		Price:       c.Scoring.PriceWeight,
	}
	s.InvalidScore = c.Scoring.InvalidScore
	if err := s.Validate(); err != nil {
		return scoring.Config{}, err
	}
	return s, nil
}

func (c *Config) AggregateConfig() aggregate.Config {
	a := aggregate.DefaultConfig()
	a.PriceBandLower = c.Aggregate.PriceBandLower
	a.PriceBandUpper = c.Aggregate.PriceBandUpper
	a.PivotRank = c.Aggregate.PivotRank
	a.MinGroupSize = c.Aggregate.MinGroupSize
	a.BuyBoxStockThreshold = c.Aggregate.BuyBoxStockThreshold
	a.SufficientIndex = c.Aggregate.SufficientIndex
	return a
}

func (c *Config) ScraperConfig() scraper.Config {
	s := scraper.DefaultConfig()
	if c.Scraper.UserAgent != "" {
		s.UserAgents = []string{c.Scraper.UserAgent}
	}
	s.AcceptLanguage = c.Scraper.AcceptLanguage
	s.Timeout = time.Duration(c.Scraper.TimeoutSec) * time.Second
	s.MaxRetries = c.Scraper.MaxRetries
	s.RetryDelay = time.Duration(c.Scraper.RetryDelaySec) * time.Second
	s.RatePerSecond = c.Scraper.RatePerSecond
	s.Burst = c.Scraper.Burst
	s.CacheTTL = time.Duration(c.Scraper.CacheTTLHours) * time.Hour
	return s
}

// CollectorConfig leaves RateLimit unbounded; pacing happens per request
// in the scraper.
func (c *Config) CollectorConfig() concurrent.Config {
	return concurrent.Config{
		Workers:     c.Collector.Workers,
		RateLimit:   rate.Inf,
		Timeout:     time.Duration(c.Collector.TimeoutSec) * time.Second,
		MaxAttempts: c.Collector.MaxAttempts,
		Backoff:     time.Duration(c.Collector.BackoffSec) * time.Second,
	}
}

// ConfigureLogger applies level and format to the standard logrus logger.
func (c *Config) ConfigureLogger() {
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.WithField("key", key).Warn("Config: ignoring non-integer value")
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.WithField("key", key).Warn("Config: ignoring non-numeric value")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
