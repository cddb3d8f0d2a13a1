package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/guarzo/offerscout/internal/model"
)

// StockRule maps stock text matching Pattern to State. When QuantityGroup is
// non-zero that capture group holds an explicit unit count.
type StockRule struct {
	Name          string
	Pattern       *regexp.Regexp
	State         model.StockState
	QuantityGroup int
}

// DefaultStockRules is the ordered phrase table; the first match wins, so
// negative and counted phrasings sit above the bare "in stock" forms they
// contain.
func DefaultStockRules() []StockRule {
	return []StockRule{
		{
			Name:    "negated_stock",
			Pattern: regexp.MustCompile(`(?i)\b(not|no)\s+(currently\s+)?(in\s+stock|available|stock)\b`),
			State:   model.StockOut,
		},
		{
			Name:    "out_of_stock",
			Pattern: regexp.MustCompile(`(?i)\b(currently unavailable|out of stock|unavailable|sold out|no longer available)\b`),
			State:   model.StockOut,
		},
		{
			Name:    "out_of_stock_ja",
			Pattern: regexp.MustCompile(`在庫切れ|在庫なし|現在お取り扱いできません|販売終了|売り切れ`),
			State:   model.StockOut,
		},
		{
			Name:    "backorder",
			Pattern: regexp.MustCompile(`(?i)\b(back-?order(ed)?|pre-?order)\b|予約受付中|お取り寄せ`),
			State:   model.StockLow,
		},
		{
			Name:          "only_left",
			Pattern:       regexp.MustCompile(`(?i)\bonly\s+(\d+)\s+left\b`),
			State:         model.StockLow,
			QuantityGroup: 1,
		},
		{
			Name:          "remaining_ja",
			Pattern:       regexp.MustCompile(`残り\s*(\d+)\s*点`),
			State:         model.StockLow,
			QuantityGroup: 1,
		},
		{
			Name:          "low_stock_count",
			Pattern:       regexp.MustCompile(`(?i)\blow\s+stock\W*(\d+)`),
			State:         model.StockLow,
			QuantityGroup: 1,
		},
		{
			Name:    "low_stock",
			Pattern: regexp.MustCompile(`(?i)\b(low|limited)\s+stock\b|\bfew\s+left\b`),
			State:   model.StockLow,
		},
		{
			Name:          "in_stock_count",
			Pattern:       regexp.MustCompile(`(?i)\bin\s+stock\W*(\d+)`),
			State:         model.StockIn,
			QuantityGroup: 1,
		},
		{
			Name:          "count_in_stock",
			Pattern:       regexp.MustCompile(`(?i)\b(\d+)\s+(in\s+stock|available)\b`),
			State:         model.StockIn,
			QuantityGroup: 1,
		},
		{
			Name:          "stock_count_ja",
			Pattern:       regexp.MustCompile(`在庫\s*[:：]?\s*(\d+)\s*(点|個)`),
			State:         model.StockIn,
			QuantityGroup: 1,
		},
		{
			Name:    "in_stock",
			Pattern: regexp.MustCompile(`(?i)\bin\s+stock\b|\bavailable\b|\busually ships\b|\bships within\b`),
			State:   model.StockIn,
		},
		{
			Name:    "in_stock_ja",
			Pattern: regexp.MustCompile(`在庫あり|以内に発送`),
			State:   model.StockIn,
		},
	}
}

// StockResult is the outcome of matching stock text against a rule table.
type StockResult struct {
	State    model.StockState
	Quantity *int
	Rule     string // empty when nothing matched
}

// MatchStock runs text through rules in order. lowThreshold downgrades an
// in-stock count at or below it to LOW_STOCK; a count of zero is always
// OUT_OF_STOCK.
func MatchStock(rules []StockRule, text string, lowThreshold int) StockResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return StockResult{State: model.StockUnknown}
	}
	for _, rule := range rules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		res := StockResult{State: rule.State, Rule: rule.Name}
		if rule.QuantityGroup > 0 && rule.QuantityGroup < len(m) {
			if qty, err := strconv.Atoi(m[rule.QuantityGroup]); err == nil {
				res.Quantity = &qty
				switch {
				case qty == 0:
					res.State = model.StockOut
				case res.State == model.StockIn && qty <= lowThreshold:
					res.State = model.StockLow
				}
			}
		}
		return res
	}
	return StockResult{State: model.StockUnknown}
}
