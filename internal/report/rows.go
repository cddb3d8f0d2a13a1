package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/offerscout/internal/model"
	"github.com/guarzo/offerscout/internal/scoring"
)

// DefaultMaxOffers is how many ranked offers are written per product.
const DefaultMaxOffers = 10

const imageColumns = 10

// Record is one product's output as the sinks see it.
type Record struct {
	RunID   string
	Request model.ProductRequest
	Page    *model.ProductPage
	Summary model.ProductSummary
	Offers  []model.ScoredOffer
	Err     error
}

var SummaryHeaders = []string{
	"run_id", "product_id", "status", "reason", "error",
	"best_seller", "best_price", "best_shipping", "best_total", "best_score",
	"best_stock", "best_fulfillment",
	"distinct_sellers", "fba_count", "fbm_count", "unknown_count", "aggregate_score",
	"raw_offers", "offers", "valid_offers", "duplicates",
	"inventory_index", "effective_sellers", "optimal_price", "optimal_seller", "stock_sufficient",
	"generated_at",
}

var OfferHeaders = []string{
	"run_id", "product_id", "rank", "seller_id", "seller_name", "condition",
	"price", "shipping", "total", "currency", "stock_state", "stock_quantity",
	"fulfillment", "buy_box", "valid", "score",
	"stock_factor", "fulfillment_factor", "price_factor",
}

var ProductHeaders = productHeaders()

func productHeaders() []string {
	h := []string{"product_id", "asin", "url", "title", "brand", "authors", "features"}
	for i := 1; i <= imageColumns; i++ {
		h = append(h, "image_"+strconv.Itoa(i))
	}
	return h
}

// SummaryRow lays out one product summary.
func SummaryRow(r Record) []string {
	s := r.Summary
	productID := s.ProductID
	if productID == "" {
		productID = r.Request.ProductID
	}
	status, reason := string(s.Status), s.Reason
	errText := ""
	if r.Err != nil {
		errText = r.Err.Error()
		if status == "" {
			status, reason = "error", "collection failed"
		}
	}

	row := []string{r.RunID, productID, status, reason, errText}
	if b := s.BestOffer; b != nil {
		row = append(row,
			b.SellerName, money(b.Price), money(b.ShippingCost), money(b.TotalCost), score(b.Score),
			string(b.StockState), string(b.Fulfillment))
	} else {
		row = append(row, "", "", "", "", "", "", "")
	}

	row = append(row,
		strconv.Itoa(s.DistinctSellerCount), strconv.Itoa(s.FBACount), strconv.Itoa(s.FBMCount),
		strconv.Itoa(s.UnknownFulfillmentCount), score(s.AggregateScore),
		strconv.Itoa(s.RawOfferCount), strconv.Itoa(s.OfferCount), strconv.Itoa(s.ValidOfferCount),
		strconv.Itoa(s.DuplicatesDropped),
		strconv.Itoa(s.InventoryIndex), strconv.Itoa(s.EffectiveSellerCount),
		moneyPtr(s.OptimalPrice), optimalSeller(s), strconv.FormatBool(s.StockSufficient),
		timestamp(s.GeneratedAt),
	)
	return row
}

// OfferRows lays out at most limit ranked offers; limit <= 0 means all.
func OfferRows(r Record, limit int) [][]string {
	offers := r.Offers
	if limit > 0 && len(offers) > limit {
		offers = offers[:limit]
	}
	rows := make([][]string, 0, len(offers))
	for i, o := range offers {
		qty := ""
		if o.StockQuantity != nil {
			qty = strconv.Itoa(*o.StockQuantity)
		}
		rows = append(rows, []string{
			r.RunID, r.Request.ProductID, strconv.Itoa(i + 1), o.SellerID, o.SellerName, o.Condition,
			money(o.Price), money(o.ShippingCost), money(o.TotalCost), o.Currency,
			string(o.StockState), qty, string(o.Fulfillment),
			strconv.FormatBool(o.IsBuyBox), strconv.FormatBool(o.IsValid), score(o.Score),
			factor(o, scoring.FactorStock), factor(o, scoring.FactorFulfillment), factor(o, scoring.FactorPrice),
		})
	}
	return rows
}

// ProductRow lays out page metadata, or nil when no page was fetched.
func ProductRow(r Record) []string {
	p := r.Page
	if p == nil {
		return nil
	}
	row := []string{
		r.Request.ProductID, p.ASIN, p.URL, p.Title, p.Brand,
		strings.Join(p.Authors, ", "), strings.Join(p.Features, "\n"),
	}
	for i := 0; i < imageColumns; i++ {
		img := ""
		if i < len(p.ImageURLs) {
			img = p.ImageURLs[i]
		}
		row = append(row, img)
	}
	return row
}

func optimalSeller(s model.ProductSummary) string {
	if s.OptimalOffer == nil {
		return ""
	}
	return s.OptimalOffer.SellerName
}

func factor(o model.ScoredOffer, name string) string {
	v, ok := o.Breakdown[name]
	if !ok {
		return ""
	}
	return score(v)
}

func money(d decimal.Decimal) string {
	return d.String()
}

func moneyPtr(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func score(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
