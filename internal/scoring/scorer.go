// Package scoring computes the bounded inventory score of an offer from its
// stock, fulfillment and price competitiveness.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/guarzo/offerscout/internal/model"
)

// Breakdown keys.
const (
	FactorStock       = "stock"
	FactorFulfillment = "fulfillment"
	FactorPrice       = "price"
	FactorInvalid     = "invalid"
)

const weightTolerance = 1e-6

// Weights defines the relative importance of each factor. They must sum to 1.
type Weights struct {
	Stock       float64 `json:"stock"`
	Fulfillment float64 `json:"fulfillment"`
	Price       float64 `json:"price"`
}

// DefaultWeights returns the default scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Stock:       0.4,
		Fulfillment: 0.3,
		Price:       0.3,
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Stock + w.Fulfillment + w.Price
}

// Config is the full scoring policy.
type Config struct {
	Weights            Weights
	StockFactors       map[model.StockState]float64
	FulfillmentFactors map[model.FulfillmentChannel]float64
	InvalidScore       float64
	NeutralPriceFactor float64
}

// DefaultConfig returns the default policy. Unknown stock is penalized but
// not zeroed, and FBM stays viable.
func DefaultConfig() Config {
	return Config{
		Weights: DefaultWeights(),
		StockFactors: map[model.StockState]float64{
			model.StockIn:      1.0,
			model.StockLow:     0.5,
			model.StockOut:     0.0,
			model.StockUnknown: 0.25,
		},
		FulfillmentFactors: map[model.FulfillmentChannel]float64{
			model.FulfillmentFBA:     1.0,
			model.FulfillmentFBM:     0.6,
			model.FulfillmentUnknown: 0.3,
		},
		InvalidScore:       0.05,
		NeutralPriceFactor: 0.5,
	}
}

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid scoring config")

// Validate checks that weights sum to 1 and every enum value has a factor
// in [0,1].
func (c Config) Validate() error {
	w := c.Weights
	for _, f := range []struct {
		name string
		v    float64
	}{{"stock", w.Stock}, {"fulfillment", w.Fulfillment}, {"price", w.Price}} {
		if !unit(f.v) {
			return fmt.Errorf("%w: %s weight %.3f outside [0,1]", ErrInvalidConfig, f.name, f.v)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.4f, want 1", ErrInvalidConfig, w.Sum())
	}
	for _, s := range model.StockStates {
		f, ok := c.StockFactors[s]
		if !ok {
			return fmt.Errorf("%w: no stock factor for %s", ErrInvalidConfig, s)
		}
		if !unit(f) {
			return fmt.Errorf("%w: stock factor for %s is %.3f", ErrInvalidConfig, s, f)
		}
	}
	for _, ch := range model.FulfillmentChannels {
		f, ok := c.FulfillmentFactors[ch]
		if !ok {
			return fmt.Errorf("%w: no fulfillment factor for %s", ErrInvalidConfig, ch)
		}
		if !unit(f) {
			return fmt.Errorf("%w: fulfillment factor for %s is %.3f", ErrInvalidConfig, ch, f)
		}
	}
	if !unit(c.InvalidScore) {
		return fmt.Errorf("%w: invalid score %.3f", ErrInvalidConfig, c.InvalidScore)
	}
	if !unit(c.NeutralPriceFactor) {
		return fmt.Errorf("%w: neutral price factor %.3f", ErrInvalidConfig, c.NeutralPriceFactor)
	}
	return nil
}

// Scorer scores offers under a fixed Config. It is safe for concurrent use.
type Scorer struct {
	cfg Config
}

// New validates cfg and returns a Scorer.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// MustNew is New for configs known to be valid.
func MustNew(cfg Config) *Scorer {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Config returns the scorer's policy.
func (s *Scorer) Config() Config {
	return s.cfg
}

// MinTotalCost returns the lowest TotalCost among valid offers, or zero when
// there is none.
func MinTotalCost(offers []model.Offer) decimal.Decimal {
	lowest := decimal.Zero
	found := false
	for _, o := range offers {
		if !o.IsValid {
			continue
		}
		if !found || o.TotalCost.LessThan(lowest) {
			lowest = o.TotalCost
			found = true
		}
	}
	return lowest
}

// ScoreAll scores a complete product offer set. Price competitiveness needs
// the cheapest valid total first, so this is two passes. Output order
// matches input order.
func (s *Scorer) ScoreAll(offers []model.Offer) []model.ScoredOffer {
	minTotal := MinTotalCost(offers)
	out := make([]model.ScoredOffer, 0, len(offers))
	for _, o := range offers {
		out = append(out, s.Score(o, minTotal))
	}
	return out
}

// Score scores one offer against the product's minimum valid total.
func (s *Scorer) Score(offer model.Offer, minTotal decimal.Decimal) model.ScoredOffer {
	if !offer.IsValid {
		return model.ScoredOffer{
			Offer:     offer,
			Score:     s.cfg.InvalidScore,
			Breakdown: map[string]float64{FactorInvalid: s.cfg.InvalidScore},
		}
	}

	w := s.cfg.Weights
	stock := w.Stock * s.stockFactor(offer.StockState)
	fulfillment := w.Fulfillment * s.fulfillmentFactor(offer.Fulfillment)
	price := w.Price * s.PriceFactor(offer.TotalCost, minTotal)

	return model.ScoredOffer{
		Offer: offer,
		Score: clamp(stock + fulfillment + price),
		Breakdown: map[string]float64{
			FactorStock:       stock,
			FactorFulfillment: fulfillment,
			FactorPrice:       price,
		},
	}
}

// PriceFactor is 1 - (total-min)/min clamped to [0,1]. A zero minimum means
// there is nothing to compare against and yields the neutral factor.
func (s *Scorer) PriceFactor(total, minTotal decimal.Decimal) float64 {
	if !minTotal.IsPositive() {
		return s.cfg.NeutralPriceFactor
	}
	gap := total.Sub(minTotal).Div(minTotal)
	f, _ := decimal.NewFromInt(1).Sub(gap).Float64()
	return clamp(f)
}

// stockFactor treats states outside the enum as UNKNOWN.
func (s *Scorer) stockFactor(st model.StockState) float64 {
	if f, ok := s.cfg.StockFactors[st]; ok {
		return f
	}
	return s.cfg.StockFactors[model.StockUnknown]
}

func (s *Scorer) fulfillmentFactor(ch model.FulfillmentChannel) float64 {
	if f, ok := s.cfg.FulfillmentFactors[ch]; ok {
		return f
	}
	return s.cfg.FulfillmentFactors[model.FulfillmentUnknown]
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
