package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/guarzo/offerscout/internal/model"
)

// TestDataFactory provides methods for generating dynamic test data
type TestDataFactory struct {
	rand *rand.Rand
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// GenerateTestURL generates a test URL for the given service and resource
func (f *TestDataFactory) GenerateTestURL(service, resource string) string {
	return fmt.Sprintf("https://%s.test.local/%s/%d", service, resource, f.rand.Int63())
}

// GenerateTestASIN generates a random 10 character product id
func (f *TestDataFactory) GenerateTestASIN() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 10)
	b[0] = 'B'
	for i := 1; i < len(b); i++ {
		b[i] = alphabet[f.rand.Intn(len(alphabet))]
	}
	return string(b)
}

// GenerateTestSellerName generates a random seller display name
func (f *TestDataFactory) GenerateTestSellerName() string {
	names := []string{"Amazon.co.jp", "Tokyo Books", "Osaka Trading", "Kyoto Goods", "Test Outlet", "N/A"}
	return names[f.rand.Intn(len(names))]
}

// GenerateTestPriceText generates a price in one of the formats pages show
func (f *TestDataFactory) GenerateTestPriceText() string {
	yen := f.rand.Intn(20000) + 100
	formats := []string{"￥%s", "%s円", "¥ %s", "%s"}
	return fmt.Sprintf(formats[f.rand.Intn(len(formats))], groupThousands(yen))
}

// GenerateTestShippingText generates a shipping charge string
func (f *TestDataFactory) GenerateTestShippingText() string {
	options := []string{"", "送料無料", "FREE delivery", fmt.Sprintf("+ ￥%d 配送料", f.rand.Intn(800)+100)}
	return options[f.rand.Intn(len(options))]
}

// GenerateTestStockText generates availability text
func (f *TestDataFactory) GenerateTestStockText() string {
	options := []string{
		"", "在庫あり。", "In stock", fmt.Sprintf("残り%d点 ご注文はお早めに", f.rand.Intn(5)+1),
		fmt.Sprintf("in stock: %d", f.rand.Intn(30)+1), "Currently unavailable.", "low stock: 2",
	}
	return options[f.rand.Intn(len(options))]
}

// GenerateTestRawOffer generates one raw offer. Roughly one in ten has an
// unparsable price.
func (f *TestDataFactory) GenerateTestRawOffer() model.RawOffer {
	raw := model.RawOffer{
		PriceText:    f.GenerateTestPriceText(),
		SellerName:   f.GenerateTestSellerName(),
		ShippingText: f.GenerateTestShippingText(),
		StockText:    f.GenerateTestStockText(),
		Condition:    "新品",
	}
	if f.rand.Intn(10) == 0 {
		raw.PriceText = "N/A"
	}
	switch f.rand.Intn(4) {
	case 0:
		raw.FulfillmentFlag = "FBA"
	case 1:
		raw.ShipsFrom = "Amazon"
	}
	return raw
}

// GenerateTestRawOffers generates n raw offers
func (f *TestDataFactory) GenerateTestRawOffers(n int) []model.RawOffer {
	out := make([]model.RawOffer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.GenerateTestRawOffer())
	}
	return out
}

// Shuffle returns a permuted copy of offers
func (f *TestDataFactory) Shuffle(offers []model.RawOffer) []model.RawOffer {
	out := make([]model.RawOffer, len(offers))
	copy(out, offers)
	f.rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
