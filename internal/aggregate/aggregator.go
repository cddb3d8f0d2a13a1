// Package aggregate reduces a product's normalized offers to an ordered,
// deduplicated, scored list and a single ProductSummary.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/offerscout/internal/model"
	"github.com/guarzo/offerscout/internal/scoring"
)

// Config tunes the summary. The price band and thresholds reproduce the
// spreadsheet tool's "optimal price" column.
type Config struct {
	PriceBandLower       float64 // multiplier on the pivot total
	PriceBandUpper       float64
	PivotRank            int // 1-based rank by total cost of the band pivot
	MinGroupSize         int
	BuyBoxStockThreshold int // buy box quantity must exceed this
	SufficientIndex      int // InventoryIndex at which stock is sufficient
	Now                  func() time.Time
}

// DefaultConfig mirrors the band the tool shipped with.
func DefaultConfig() Config {
	return Config{
		PriceBandLower:       0.85,
		PriceBandUpper:       1.15,
		PivotRank:            3,
		MinGroupSize:         3,
		BuyBoxStockThreshold: 2,
		SufficientIndex:      4,
		Now:                  time.Now,
	}
}

// Aggregator deduplicates, scores, orders and summarizes. It keeps no state
// between calls and is safe for concurrent use.
type Aggregator struct {
	cfg    Config
	scorer *scoring.Scorer
}

// New returns an Aggregator; zero fields in cfg take DefaultConfig values.
func New(cfg Config, scorer *scoring.Scorer) *Aggregator {
	def := DefaultConfig()
	if cfg.PriceBandLower <= 0 {
		cfg.PriceBandLower = def.PriceBandLower
	}
	if cfg.PriceBandUpper <= 0 {
		cfg.PriceBandUpper = def.PriceBandUpper
	}
	if cfg.PivotRank <= 0 {
		cfg.PivotRank = def.PivotRank
	}
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = def.MinGroupSize
	}
	if cfg.BuyBoxStockThreshold <= 0 {
		cfg.BuyBoxStockThreshold = def.BuyBoxStockThreshold
	}
	if cfg.SufficientIndex <= 0 {
		cfg.SufficientIndex = def.SufficientIndex
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Aggregator{cfg: cfg, scorer: scorer}
}

type dedupeKey struct {
	seller      string
	total       string
	fulfillment model.FulfillmentChannel
}

// Dedupe drops offers whose (seller, total cost, fulfillment) was already
// seen. The first occurrence is kept.
func Dedupe(offers []model.Offer) []model.Offer {
	seen := make(map[dedupeKey]bool, len(offers))
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		k := dedupeKey{seller: o.SellerID, total: o.TotalCost.String(), fulfillment: o.Fulfillment}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, o)
	}
	return out
}

// Less is the output order: valid before invalid, score descending, total
// cost ascending, seller id ascending. The remaining keys only separate
// offers that share all of those.
func Less(a, b model.ScoredOffer) bool {
	if a.IsValid != b.IsValid {
		return a.IsValid
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := a.TotalCost.Cmp(b.TotalCost); c != 0 {
		return c < 0
	}
	if a.SellerID != b.SellerID {
		return a.SellerID < b.SellerID
	}
	if a.Fulfillment != b.Fulfillment {
		return a.Fulfillment.Less(b.Fulfillment)
	}
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if a.StockState != b.StockState {
		return a.StockState.Less(b.StockState)
	}
	return quantity(a.Offer) > quantity(b.Offer)
}

// Aggregate produces the ordered scored offers and the product summary.
func (a *Aggregator) Aggregate(productID string, offers []model.Offer) ([]model.ScoredOffer, model.ProductSummary) {
	summary := model.ProductSummary{
		ProductID:     productID,
		GeneratedAt:   a.cfg.Now().UTC(),
		RawOfferCount: len(offers),
	}
	if len(offers) == 0 {
		summary.Status = model.StatusNoData
		summary.Reason = model.ReasonNoData
		return []model.ScoredOffer{}, summary
	}

	unique := Dedupe(offers)
	summary.OfferCount = len(unique)
	summary.DuplicatesDropped = len(offers) - len(unique)

	ordered := a.scorer.ScoreAll(unique)
	sort.SliceStable(ordered, func(i, j int) bool { return Less(ordered[i], ordered[j]) })

	sellers := make(map[string]bool)
	var valid []model.ScoredOffer
	var scoreSum float64
	for _, so := range ordered {
		if so.SellerID != "" {
			sellers[so.SellerID] = true
		}
		switch so.Fulfillment {
		case model.FulfillmentFBA:
			summary.FBACount++
		case model.FulfillmentFBM:
			summary.FBMCount++
		default:
			summary.UnknownFulfillmentCount++
		}
		if so.IsValid {
			valid = append(valid, so)
			scoreSum += so.Score
		}
	}
	summary.DistinctSellerCount = len(sellers)
	summary.ValidOfferCount = len(valid)

	if len(valid) == 0 {
		summary.Status = model.StatusNoValidOffer
		summary.Reason = model.ReasonNoValidOffer
		return ordered, summary
	}

	summary.Status = model.StatusOK
	best := ordered[0]
	summary.BestOffer = &best
	summary.AggregateScore = scoreSum / float64(len(valid))

	lowest := scoring.MinTotalCost(unique)
	summary.BestPrice = &lowest

	a.applyPriceGroup(&summary, valid)
	return ordered, summary
}

func quantity(o model.Offer) int {
	if o.StockQuantity == nil {
		return -1
	}
	return *o.StockQuantity
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
