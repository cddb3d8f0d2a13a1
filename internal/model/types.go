package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockState is the qualitative availability of a single offer.
type StockState string

const (
	StockUnknown StockState = "UNKNOWN"
	StockIn      StockState = "IN_STOCK"
	StockLow     StockState = "LOW_STOCK"
	StockOut     StockState = "OUT_OF_STOCK"
)

// StockStates lists every state in a stable order.
var StockStates = []StockState{StockIn, StockLow, StockOut, StockUnknown}

// Less orders states from most to least available.
func (s StockState) Less(other StockState) bool {
	return s.rank() < other.rank()
}

func (s StockState) rank() int {
	switch s {
	case StockIn:
		return 0
	case StockLow:
		return 1
	case StockOut:
		return 3
	default:
		return 2
	}
}

// FulfillmentChannel says who ships the item.
type FulfillmentChannel string

const (
	FulfillmentUnknown FulfillmentChannel = "UNKNOWN"
	FulfillmentFBA     FulfillmentChannel = "FBA"
	FulfillmentFBM     FulfillmentChannel = "FBM"
)

// FulfillmentChannels lists every channel in a stable order.
var FulfillmentChannels = []FulfillmentChannel{FulfillmentFBA, FulfillmentFBM, FulfillmentUnknown}

// rank gives the channel a sort position for tie-breaking.
func (f FulfillmentChannel) rank() int {
	switch f {
	case FulfillmentFBA:
		return 0
	case FulfillmentFBM:
		return 1
	default:
		return 2
	}
}

// Less orders channels FBA < FBM < UNKNOWN.
func (f FulfillmentChannel) Less(other FulfillmentChannel) bool {
	return f.rank() < other.rank()
}

// RawOffer holds seller offer fields exactly as scraped.
type RawOffer struct {
	PriceText       string `json:"price_text"`
	Currency        string `json:"currency,omitempty"` // code or symbol
	SellerName      string `json:"seller_name"`
	ShippingText    string `json:"shipping_text,omitempty"`
	StockText       string `json:"stock_text,omitempty"`
	FulfillmentFlag string `json:"fulfillment_flag,omitempty"`
	ShipsFrom       string `json:"ships_from,omitempty"`
	Condition       string `json:"condition,omitempty"`
	IsBuyBox        bool   `json:"is_buy_box,omitempty"`
}

// Offer is the canonical, normalized form of a RawOffer.
type Offer struct {
	SellerID      string             `json:"seller_id"`
	SellerName    string             `json:"seller_name"`
	Price         decimal.Decimal    `json:"price"`
	ShippingCost  decimal.Decimal    `json:"shipping_cost"`
	TotalCost     decimal.Decimal    `json:"total_cost"`
	Currency      string             `json:"currency"`
	StockQuantity *int               `json:"stock_quantity,omitempty"`
	StockState    StockState         `json:"stock_state"`
	Fulfillment   FulfillmentChannel `json:"fulfillment"`
	Condition     string             `json:"condition,omitempty"`
	IsBuyBox      bool               `json:"is_buy_box,omitempty"`
	IsValid       bool               `json:"is_valid"`
}

// Recompute derives TotalCost from Price and ShippingCost. TotalCost is
// never taken from input.
func (o *Offer) Recompute() {
	o.TotalCost = o.Price.Add(o.ShippingCost)
}

// ScoredOffer is an Offer with its inventory score.
type ScoredOffer struct {
	Offer
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"score_breakdown"`
}

// SummaryStatus classifies how an aggregation run ended.
type SummaryStatus string

const (
	StatusOK           SummaryStatus = "ok"
	StatusNoValidOffer SummaryStatus = "no_valid_offer"
	StatusNoData       SummaryStatus = "no_data"
)

// Reason codes carried on summaries without a best offer.
const (
	ReasonNoValidOffer = "no valid offer"
	ReasonNoData       = "no data"
)

// ProductSummary is the per-product reduction of all scored offers.
type ProductSummary struct {
	ProductID               string        `json:"product_id"`
	Status                  SummaryStatus `json:"status"`
	Reason                  string        `json:"reason,omitempty"`
	BestOffer               *ScoredOffer  `json:"best_offer,omitempty"`
	DistinctSellerCount     int           `json:"distinct_seller_count"`
	FBACount                int           `json:"fba_count"`
	FBMCount                int           `json:"fbm_count"`
	UnknownFulfillmentCount int           `json:"unknown_fulfillment_count"`
	AggregateScore          float64       `json:"aggregate_score"`
	GeneratedAt             time.Time     `json:"generated_at"`

	RawOfferCount     int              `json:"raw_offer_count"`
	OfferCount        int              `json:"offer_count"`
	ValidOfferCount   int              `json:"valid_offer_count"`
	DuplicatesDropped int              `json:"duplicates_dropped"`
	BestPrice         *decimal.Decimal `json:"best_price,omitempty"`

	// Price group view kept from the spreadsheet tool this replaces.
	InventoryIndex       int              `json:"inventory_index"`
	EffectiveSellerCount int              `json:"effective_seller_count"`
	OptimalPrice         *decimal.Decimal `json:"optimal_price,omitempty"`
	OptimalOffer         *ScoredOffer     `json:"optimal_offer,omitempty"`
	StockSufficient      bool             `json:"stock_sufficient"`
}

// HasBestOffer reports whether a winner was chosen.
func (s ProductSummary) HasBestOffer() bool {
	return s.BestOffer != nil
}
