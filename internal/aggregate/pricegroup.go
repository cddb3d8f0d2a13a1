package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/guarzo/offerscout/internal/model"
)

// applyPriceGroup fills the inventory index, effective seller count and
// optimal price. valid holds the valid offers in output order.
//
// A well-stocked FBA buy box sets the price directly. Otherwise offers
// whose total sits within the band around the PivotRank-th cheapest total
// form the price group, and the lower median of the group is the optimal
// price.
func (a *Aggregator) applyPriceGroup(summary *model.ProductSummary, valid []model.ScoredOffer) {
	for _, so := range valid {
		switch so.Fulfillment {
		case model.FulfillmentFBA:
			summary.InventoryIndex += 2
		case model.FulfillmentFBM:
			summary.InventoryIndex++
		}
	}

	if bb := a.stockedBuyBox(valid); bb != nil {
		summary.EffectiveSellerCount = len(valid)
		summary.OptimalOffer = bb
		summary.OptimalPrice = decimalPtr(bb.TotalCost)
		summary.StockSufficient = true
		return
	}
	summary.StockSufficient = summary.InventoryIndex >= a.cfg.SufficientIndex

	byTotal := make([]model.ScoredOffer, len(valid))
	copy(byTotal, valid)
	sort.SliceStable(byTotal, func(i, j int) bool {
		if c := byTotal[i].TotalCost.Cmp(byTotal[j].TotalCost); c != 0 {
			return c < 0
		}
		return Less(byTotal[i], byTotal[j])
	})

	if len(byTotal) < a.cfg.PivotRank {
		summary.EffectiveSellerCount = len(byTotal)
		return
	}

	pivot := byTotal[a.cfg.PivotRank-1].TotalCost
	lower := pivot.Mul(decimal.NewFromFloat(a.cfg.PriceBandLower))
	upper := pivot.Mul(decimal.NewFromFloat(a.cfg.PriceBandUpper))

	var group []model.ScoredOffer
	for _, so := range byTotal {
		if so.TotalCost.GreaterThanOrEqual(lower) && so.TotalCost.LessThanOrEqual(upper) {
			group = append(group, so)
		}
	}
	summary.EffectiveSellerCount = len(group)
	if len(group) < a.cfg.MinGroupSize {
		return
	}

	median := group[(len(group)-1)/2]
	summary.OptimalOffer = &median
	summary.OptimalPrice = decimalPtr(median.TotalCost)
}

// stockedBuyBox returns the buy box offer when it ships FBA with more than
// BuyBoxStockThreshold units. Plain "in stock" text without a count is
// treated as plenty.
func (a *Aggregator) stockedBuyBox(valid []model.ScoredOffer) *model.ScoredOffer {
	for i := range valid {
		so := valid[i]
		if !so.IsBuyBox || so.Fulfillment != model.FulfillmentFBA {
			continue
		}
		if so.StockQuantity == nil {
			if so.StockState == model.StockIn {
				return &so
			}
			continue
		}
		if *so.StockQuantity > a.cfg.BuyBoxStockThreshold {
			return &so
		}
	}
	return nil
}
