package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/offerscout/internal/fulfillment"
	"github.com/guarzo/offerscout/internal/model"
	"github.com/guarzo/offerscout/internal/normalize"
	"github.com/guarzo/offerscout/internal/scoring"
	"github.com/guarzo/offerscout/internal/testutil"
)

const eps = 1e-9

var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newAggregator() *Aggregator {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	return New(cfg, scoring.MustNew(scoring.DefaultConfig()))
}

func newEngine() *Engine {
	return NewEngine(
		normalize.New(normalize.DefaultConfig()),
		fulfillment.New(fulfillment.DefaultConfig()),
		newAggregator(),
	)
}

func mkOffer(seller string, total int64, ch model.FulfillmentChannel, stock model.StockState) model.Offer {
	o := model.Offer{
		SellerID:     seller,
		SellerName:   seller,
		Price:        decimal.NewFromInt(total),
		ShippingCost: decimal.Zero,
		StockState:   stock,
		Fulfillment:  ch,
		IsValid:      total > 0,
	}
	o.Recompute()
	return o
}

type offerKey struct {
	seller string
	total  string
	score  float64
}

func keys(offers []model.ScoredOffer) []offerKey {
	out := make([]offerKey, 0, len(offers))
	for _, o := range offers {
		out = append(out, offerKey{o.SellerID, o.TotalCost.String(), o.Score})
	}
	return out
}

func TestEngine_UnavailableOfferNeverWinsOnStock(t *testing.T) {
	res := newEngine().Process("B000TEST02", []model.RawOffer{
		{PriceText: "100", SellerName: "cheap", StockText: "Not in stock", FulfillmentFlag: "FBA"},
		{PriceText: "110", SellerName: "stocked", StockText: "In stock", FulfillmentFlag: "FBM"},
	})

	require.Len(t, res.Offers, 2)
	assert.Equal(t, "stocked", res.Offers[0].SellerID)
	assert.Equal(t, model.StockOut, res.Offers[1].StockState)
	assert.InDelta(t, 0.0, res.Offers[1].Breakdown[scoring.FactorStock], eps)
	require.NotNil(t, res.Summary.BestOffer)
	assert.Equal(t, "stocked", res.Summary.BestOffer.SellerID)
}

func TestEngine_TwoSellerScenario(t *testing.T) {
	res := newEngine().Process("B000TEST01", []model.RawOffer{
		{PriceText: "20", SellerName: "sellerA", StockText: "in stock", FulfillmentFlag: "FBA"},
		{PriceText: "18", ShippingText: "3", SellerName: "sellerB", StockText: "low stock: 2", FulfillmentFlag: "FBM"},
	})

	require.Len(t, res.Offers, 2)
	a, b := res.Offers[0], res.Offers[1]

	assert.Equal(t, "sellera", a.SellerID)
	assert.True(t, decimal.NewFromInt(20).Equal(a.TotalCost))
	assert.Equal(t, model.StockIn, a.StockState)
	assert.Nil(t, a.StockQuantity)
	assert.InDelta(t, 1.0, a.Score, eps)

	assert.Equal(t, "sellerb", b.SellerID)
	assert.True(t, decimal.NewFromInt(21).Equal(b.TotalCost))
	assert.Equal(t, model.StockLow, b.StockState)
	require.NotNil(t, b.StockQuantity)
	assert.Equal(t, 2, *b.StockQuantity)
	assert.InDelta(t, 0.285, b.Breakdown[scoring.FactorPrice], eps)
	assert.InDelta(t, 0.665, b.Score, eps)

	s := res.Summary
	assert.Equal(t, model.StatusOK, s.Status)
	require.True(t, s.HasBestOffer())
	assert.Equal(t, "sellera", s.BestOffer.SellerID)
	assert.Equal(t, 2, s.DistinctSellerCount)
	assert.Equal(t, 1, s.FBACount)
	assert.Equal(t, 1, s.FBMCount)
	assert.Equal(t, 0, s.UnknownFulfillmentCount)
	assert.InDelta(t, (1.0+0.665)/2, s.AggregateScore, eps)
	assert.True(t, decimal.NewFromInt(20).Equal(*s.BestPrice))
	assert.Equal(t, fixedNow, s.GeneratedAt)
}

func TestEngine_AllInvalid(t *testing.T) {
	res := newEngine().Process("B000TEST02", []model.RawOffer{
		{PriceText: "N/A", SellerName: "Amazon.co.jp"},
		{PriceText: "", SellerName: "Shop", StockText: "In stock"},
		{PriceText: "see options"},
	})

	s := res.Summary
	assert.Nil(t, s.BestOffer)
	assert.Equal(t, model.StatusNoValidOffer, s.Status)
	assert.Equal(t, "no valid offer", s.Reason)
	assert.Equal(t, 1, s.FBACount)
	assert.Equal(t, 1, s.FBMCount)
	assert.Equal(t, 1, s.UnknownFulfillmentCount)
	assert.Equal(t, 2, s.DistinctSellerCount)
	assert.Equal(t, 0.0, s.AggregateScore)
	assert.Nil(t, s.BestPrice)
	assert.Nil(t, s.OptimalPrice)

	require.Len(t, res.Offers, 3)
	for _, o := range res.Offers {
		assert.Equal(t, 0.05, o.Score)
	}
}

func TestEngine_DuplicateKeepsFirstSeen(t *testing.T) {
	res := newEngine().Process("B000TEST03", []model.RawOffer{
		{PriceText: "￥1,000", SellerName: "Tokyo Books", StockText: "in stock: 7", FulfillmentFlag: "FBA"},
		{PriceText: "￥1,200", SellerName: "Osaka Trading", StockText: "In stock"},
		{PriceText: "1000円", SellerName: "tokyo  books", StockText: "in stock: 9", FulfillmentFlag: "FBA"},
	})

	require.Len(t, res.Offers, 2)
	s := res.Summary
	assert.Equal(t, 2, s.DistinctSellerCount)
	assert.Equal(t, 3, s.RawOfferCount)
	assert.Equal(t, 2, s.OfferCount)
	assert.Equal(t, 1, s.DuplicatesDropped)

	for _, o := range res.Offers {
		if o.SellerID == "tokyo books" {
			require.NotNil(t, o.StockQuantity)
			assert.Equal(t, 7, *o.StockQuantity)
		}
	}
}

func TestEngine_NoData(t *testing.T) {
	res := newEngine().Process("B000TEST04", nil)
	assert.NotNil(t, res.Offers)
	assert.Empty(t, res.Offers)
	assert.Equal(t, model.StatusNoData, res.Summary.Status)
	assert.Equal(t, "no data", res.Summary.Reason)
	assert.Nil(t, res.Summary.BestOffer)
	assert.Equal(t, "B000TEST04", res.Summary.ProductID)
}

func TestEngine_DedupeIdempotent(t *testing.T) {
	engine := newEngine()
	for seed := int64(1); seed <= 20; seed++ {
		raws := testutil.NewTestDataFactory(seed).GenerateTestRawOffers(25)
		doubled := append(append([]model.RawOffer{}, raws...), raws...)

		once := engine.Process("p", raws).Summary
		twice := engine.Process("p", doubled).Summary

		assert.Equal(t, once.DistinctSellerCount, twice.DistinctSellerCount, "seed %d", seed)
		assert.Equal(t, once.FBACount, twice.FBACount, "seed %d", seed)
		assert.Equal(t, once.FBMCount, twice.FBMCount, "seed %d", seed)
		assert.Equal(t, once.UnknownFulfillmentCount, twice.UnknownFulfillmentCount, "seed %d", seed)
		assert.Equal(t, once.OfferCount, twice.OfferCount, "seed %d", seed)
		assert.Equal(t, once.ValidOfferCount, twice.ValidOfferCount, "seed %d", seed)
		assert.InDelta(t, once.AggregateScore, twice.AggregateScore, eps, "seed %d", seed)
		assert.Equal(t, once.Status, twice.Status, "seed %d", seed)
		if once.BestOffer != nil {
			require.NotNil(t, twice.BestOffer)
			assert.Equal(t, once.BestOffer.SellerID, twice.BestOffer.SellerID)
			assert.True(t, once.BestOffer.TotalCost.Equal(twice.BestOffer.TotalCost))
		}
	}
}

func TestEngine_StableUnderPermutation(t *testing.T) {
	engine := newEngine()
	for seed := int64(1); seed <= 10; seed++ {
		factory := testutil.NewTestDataFactory(seed)
		raws := factory.GenerateTestRawOffers(12)
		for i := range raws {
			raws[i].SellerName = fmt.Sprintf("Seller %02d", i)
		}
		base := engine.Process("p", raws)

		for round := 0; round < 10; round++ {
			got := engine.Process("p", factory.Shuffle(raws))
			assert.Equal(t, keys(base.Offers), keys(got.Offers), "seed %d round %d", seed, round)
			if base.Summary.BestOffer == nil {
				assert.Nil(t, got.Summary.BestOffer)
				continue
			}
			require.NotNil(t, got.Summary.BestOffer)
			assert.Equal(t, base.Summary.BestOffer.SellerID, got.Summary.BestOffer.SellerID)
		}
	}
}

func TestEngine_ScoresBoundedAndTotalsExact(t *testing.T) {
	engine := newEngine()
	raws := testutil.NewTestDataFactory(99).GenerateTestRawOffers(200)
	res := engine.Process("p", raws)
	for _, o := range res.Offers {
		assert.GreaterOrEqual(t, o.Score, 0.0)
		assert.LessOrEqual(t, o.Score, 1.0)
		assert.True(t, o.Price.Add(o.ShippingCost).Equal(o.TotalCost))
		if !o.IsValid {
			assert.Equal(t, 0.05, o.Score)
		}
	}
}

func TestAggregate_TieBreaks(t *testing.T) {
	agg := newAggregator()

	// Same score and total: seller id decides.
	ordered, _ := agg.Aggregate("p", []model.Offer{
		mkOffer("b", 100, model.FulfillmentFBM, model.StockIn),
		mkOffer("a", 100, model.FulfillmentFBM, model.StockIn),
	})
	assert.Equal(t, "a", ordered[0].SellerID)
	assert.Equal(t, "b", ordered[1].SellerID)

	// Both far above the cheapest: price factor clamps to 0 for both, so
	// the lower total wins the tie.
	ordered, _ = agg.Aggregate("p", []model.Offer{
		mkOffer("cheap", 10, model.FulfillmentFBA, model.StockOut),
		mkOffer("z", 30, model.FulfillmentFBM, model.StockIn),
		mkOffer("y", 40, model.FulfillmentFBM, model.StockIn),
	})
	require.Len(t, ordered, 3)
	assert.InDelta(t, ordered[1].Score, ordered[2].Score, eps)
	assert.Equal(t, "z", ordered[1].SellerID)
	assert.Equal(t, "y", ordered[2].SellerID)
}

func TestAggregate_InvalidAlwaysLast(t *testing.T) {
	cfg := scoring.DefaultConfig()
	cfg.InvalidScore = 0.5
	agg := New(DefaultConfig(), scoring.MustNew(cfg))

	ordered, summary := agg.Aggregate("p", []model.Offer{
		mkOffer("bad", 0, model.FulfillmentFBA, model.StockIn),
		mkOffer("good", 100, model.FulfillmentUnknown, model.StockOut),
	})
	assert.Equal(t, "good", ordered[0].SellerID)
	assert.Equal(t, "good", summary.BestOffer.SellerID)
}

func TestAggregate_PriceBand(t *testing.T) {
	agg := newAggregator()

	_, s := agg.Aggregate("p", []model.Offer{
		mkOffer("a", 1000, model.FulfillmentFBM, model.StockIn),
		mkOffer("b", 1100, model.FulfillmentFBM, model.StockIn),
		mkOffer("c", 1200, model.FulfillmentFBM, model.StockIn),
		mkOffer("d", 1300, model.FulfillmentFBM, model.StockIn),
		mkOffer("e", 2000, model.FulfillmentFBM, model.StockIn),
	})
	assert.Equal(t, 3, s.EffectiveSellerCount)
	require.NotNil(t, s.OptimalPrice)
	assert.True(t, decimal.NewFromInt(1200).Equal(*s.OptimalPrice))
	assert.Equal(t, "c", s.OptimalOffer.SellerID)
	assert.Equal(t, 5, s.InventoryIndex)
	assert.True(t, s.StockSufficient)
}

func TestAggregate_PriceBandEvenGroupTakesLowerMedian(t *testing.T) {
	_, s := newAggregator().Aggregate("p", []model.Offer{
		mkOffer("a", 1050, model.FulfillmentFBM, model.StockIn),
		mkOffer("b", 1100, model.FulfillmentFBM, model.StockIn),
		mkOffer("c", 1200, model.FulfillmentFBM, model.StockIn),
		mkOffer("d", 1300, model.FulfillmentFBM, model.StockIn),
	})
	assert.Equal(t, 4, s.EffectiveSellerCount)
	require.NotNil(t, s.OptimalPrice)
	assert.True(t, decimal.NewFromInt(1100).Equal(*s.OptimalPrice))
}

func TestAggregate_StockedBuyBoxSetsPrice(t *testing.T) {
	bb := mkOffer("amazon.co.jp", 1500, model.FulfillmentFBA, model.StockIn)
	bb.IsBuyBox = true

	_, s := newAggregator().Aggregate("p", []model.Offer{
		bb,
		mkOffer("a", 1000, model.FulfillmentFBM, model.StockIn),
		mkOffer("b", 1100, model.FulfillmentFBM, model.StockIn),
		mkOffer("c", 1200, model.FulfillmentFBM, model.StockIn),
	})
	require.NotNil(t, s.OptimalPrice)
	assert.True(t, decimal.NewFromInt(1500).Equal(*s.OptimalPrice))
	assert.Equal(t, 4, s.EffectiveSellerCount)
	assert.True(t, s.StockSufficient)
}

func TestAggregate_ThinBuyBoxFallsBackToBand(t *testing.T) {
	qty := 2
	bb := mkOffer("amazon.co.jp", 1500, model.FulfillmentFBA, model.StockLow)
	bb.IsBuyBox = true
	bb.StockQuantity = &qty

	_, s := newAggregator().Aggregate("p", []model.Offer{
		bb,
		mkOffer("a", 1000, model.FulfillmentFBM, model.StockIn),
	})
	assert.Nil(t, s.OptimalPrice)
	assert.Equal(t, 2, s.EffectiveSellerCount)
	assert.Equal(t, 3, s.InventoryIndex)
	assert.False(t, s.StockSufficient)
}

func TestDedupe(t *testing.T) {
	a := mkOffer("a", 100, model.FulfillmentFBA, model.StockIn)
	aOtherChannel := mkOffer("a", 100, model.FulfillmentFBM, model.StockIn)
	aAgain := mkOffer("a", 100, model.FulfillmentFBA, model.StockLow)

	out := Dedupe([]model.Offer{a, aOtherChannel, aAgain})
	require.Len(t, out, 2)
	assert.Equal(t, model.StockIn, out[0].StockState)
	assert.Equal(t, model.FulfillmentFBM, out[1].Fulfillment)
}
