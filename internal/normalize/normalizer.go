// Package normalize turns scraped seller offers into canonical model.Offer
// values. Normalization never fails: malformed fields degrade to an invalid
// offer or an UNKNOWN stock state.
package normalize

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/guarzo/offerscout/internal/model"
)

// Config controls currency handling and stock text interpretation.
type Config struct {
	BaseCurrency      string
	Rates             map[string]decimal.Decimal // multiplier into BaseCurrency
	StockRules        []StockRule
	LowStockThreshold int
}

// DefaultConfig normalizes into yen, the marketplace the stock phrases were
// collected from.
func DefaultConfig() Config {
	return Config{
		BaseCurrency:      "JPY",
		Rates:             map[string]decimal.Decimal{},
		StockRules:        DefaultStockRules(),
		LowStockThreshold: 2,
	}
}

// Normalizer converts RawOffers using an immutable Config. It is safe for
// concurrent use.
type Normalizer struct {
	cfg   Config
	known []string
}

// New creates a Normalizer. Missing fields fall back to DefaultConfig.
func New(cfg Config) *Normalizer {
	def := DefaultConfig()
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = def.BaseCurrency
	}
	cfg.BaseCurrency = strings.ToUpper(cfg.BaseCurrency)
	if cfg.StockRules == nil {
		cfg.StockRules = def.StockRules
	}
	if cfg.Rates == nil {
		cfg.Rates = def.Rates
	}

	known := []string{cfg.BaseCurrency}
	for code := range cfg.Rates {
		if code != cfg.BaseCurrency {
			known = append(known, code)
		}
	}
	sort.Strings(known[1:])

	return &Normalizer{cfg: cfg, known: known}
}

// BaseCurrency returns the currency every normalized amount is expressed in.
func (n *Normalizer) BaseCurrency() string {
	return n.cfg.BaseCurrency
}

// Normalize converts one raw offer. Fulfillment is left UNKNOWN; the
// classifier fills it in.
func (n *Normalizer) Normalize(raw model.RawOffer) model.Offer {
	offer := model.Offer{
		SellerID:     SellerID(raw.SellerName),
		SellerName:   strings.TrimSpace(raw.SellerName),
		Price:        decimal.Zero,
		ShippingCost: decimal.Zero,
		Currency:     n.cfg.BaseCurrency,
		Fulfillment:  model.FulfillmentUnknown,
		Condition:    strings.Join(strings.Fields(raw.Condition), " "),
		IsBuyBox:     raw.IsBuyBox,
	}
	if offer.SellerID == "" {
		offer.SellerName = ""
	}

	stock := MatchStock(n.cfg.StockRules, raw.StockText, n.cfg.LowStockThreshold)
	offer.StockState = stock.State
	offer.StockQuantity = stock.Quantity

	code := DetectCurrency(raw.Currency, raw.PriceText, n.known)
	if code == "" {
		code = n.cfg.BaseCurrency
	}
	rate, rateOK := n.rate(code)
	if rateOK {
		offer.ShippingCost = ParseShippingIn(raw.ShippingText, code).Mul(rate)
		if price, ok := ParseAmountIn(raw.PriceText, code); ok && price.IsPositive() {
			offer.Price = price.Mul(rate)
			offer.IsValid = true
		}
	}

	offer.Recompute()
	return offer
}

// NormalizeAll normalizes offers preserving input order.
func (n *Normalizer) NormalizeAll(raws []model.RawOffer) []model.Offer {
	out := make([]model.Offer, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw))
	}
	return out
}

func (n *Normalizer) rate(code string) (decimal.Decimal, bool) {
	if code == "" || code == n.cfg.BaseCurrency {
		return decimal.NewFromInt(1), true
	}
	r, ok := n.cfg.Rates[code]
	if !ok || !r.IsPositive() {
		return decimal.Zero, false
	}
	return r, true
}

var sellerPlaceholders = map[string]bool{
	"":    true,
	"n/a": true,
	"na":  true,
	"-":   true,
	"—":   true,
}

// SellerID derives a stable identifier from a seller display name: lower
// case with whitespace collapsed. Placeholder names yield "".
func SellerID(name string) string {
	id := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if sellerPlaceholders[id] {
		return ""
	}
	return id
}
