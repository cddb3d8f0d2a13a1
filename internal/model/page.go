package model

// ProductRequest identifies one product to collect.
type ProductRequest struct {
	ProductID string
	DetailURL string
	OffersURL string
}

// Detail is one key/value row from a product's detail section.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProductPage is the metadata scraped from a product detail page.
type ProductPage struct {
	ASIN      string    `json:"asin"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Brand     string    `json:"brand,omitempty"`
	Authors   []string  `json:"authors,omitempty"`
	Features  []string  `json:"features,omitempty"`
	Details   []Detail  `json:"details,omitempty"`
	ImageURLs []string  `json:"image_urls,omitempty"`
	BuyBox    *RawOffer `json:"buy_box,omitempty"` // nil when the page shows no price
}

// Detail returns the value for key, if present.
func (p *ProductPage) Detail(key string) (string, bool) {
	for _, d := range p.Details {
		if d.Key == key {
			return d.Value, true
		}
	}
	return "", false
}
