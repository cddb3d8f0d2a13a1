package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/offerscout/internal/model"
)

// MaxImages caps the image URLs kept per product.
const MaxImages = 10

var (
	asinPattern     = regexp.MustCompile(`/(dp|gp/product)/([A-Z0-9]{10})`)
	titleSuffix     = regexp.MustCompile(`\s*\(.+?\)$|\s*\[.+?\]$`)
	colorImages     = regexp.MustCompile(`(?s)'colorImages'\s*:\s*\{\s*'initial'\s*:\s*(\[.+\])\s*\}`)
	hiResURL        = regexp.MustCompile(`"hiRes"\s*:\s*"(https?://[^"]+)"`)
	imageID         = regexp.MustCompile(`/I/([a-zA-Z0-9\-_+]+)\.`)
	thumbnailSuffix = regexp.MustCompile(`\._.*?_\.`)
	detailKeyNoise  = regexp.MustCompile("[\\s:\u200e\u200f]")

	brandPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(?:ブランド|Brand)\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`^Visit the (.+) Store$`),
		regexp.MustCompile(`^(.+?)\s*のストアを表示$`),
	}
)

// ExtractASIN pulls the 10 character product id out of a detail URL.
func ExtractASIN(url string) string {
	if m := asinPattern.FindStringSubmatch(url); m != nil {
		return m[2]
	}
	return ""
}

// ParseProductPage extracts metadata, images and the buy box from a detail
// page. Missing sections leave their fields empty.
func ParseProductPage(pageURL, html string) (*model.ProductPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	page := &model.ProductPage{
		URL:   pageURL,
		ASIN:  ExtractASIN(pageURL),
		Title: titleSuffix.ReplaceAllString(text(doc.Find("#productTitle").First()), ""),
	}
	if page.ASIN == "" {
		page.ASIN = strings.TrimSpace(doc.Find("input#ASIN").AttrOr("value", ""))
	}

	doc.Find("ul.a-unordered-list.a-vertical.a-spacing-mini").First().Find("li").Each(func(i int, li *goquery.Selection) {
		if t := text(li); t != "" {
			page.Features = append(page.Features, t)
		}
	})

	details := newDetailSet()
	parseDetailBullets(doc, details)
	parseDetailTable(doc.Find("#productDetails_detailBullets_sections1"), details)
	parseDetailTable(doc.Find("#productDetails_techSpec_section_1"), details)
	page.Details = details.rows

	page.Authors = parseAuthors(doc, details)
	if len(page.Authors) == 0 {
		page.Brand = cleanBrand(text(doc.Find("#bylineInfo_feature_div").First()))
	}

	page.ImageURLs = parseImages(html, doc)
	page.BuyBox = parseBuyBox(doc)
	return page, nil
}

// ParseOfferListing extracts every new-condition offer from the all offers
// display panel. Used offers and offers without a price element are skipped.
func ParseOfferListing(html string) ([]model.RawOffer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse offer listing: %w", err)
	}

	var offers []model.RawOffer
	doc.Find("#aod-offer").Each(func(i int, el *goquery.Selection) {
		condition := text(el.Find("#aod-offer-heading .a-text-bold").First())
		if condition == "" || isUsed(condition) {
			return
		}

		price := text(el.Find("#aod-offer-price span.aok-offscreen, .a-price .a-offscreen").First())
		if price == "" {
			return
		}

		raw := model.RawOffer{
			PriceText:  price,
			Condition:  condition,
			SellerName: text(el.Find("#aod-offer-soldBy a, #aod-offer-soldBy .a-size-small.a-color-base").First()),
			ShipsFrom:  text(el.Find("#aod-offer-shipsFrom .a-size-small.a-color-base").First()),
			StockText:  text(el.Find("#aod-offer-availability").First()),
		}
		if v, ok := el.Find("[data-csa-c-delivery-price]").First().Attr("data-csa-c-delivery-price"); ok {
			raw.ShippingText = strings.TrimSpace(v)
		} else {
			raw.ShippingText = text(el.Find("#aod-offer-shipping-charge-string").First())
		}
		offers = append(offers, raw)
	})
	return offers, nil
}

func parseBuyBox(doc *goquery.Document) *model.RawOffer {
	price := text(doc.Find("#corePrice_feature_div .a-price .a-offscreen").First())
	if price == "" {
		return nil
	}
	return &model.RawOffer{
		PriceText:  price,
		StockText:  text(doc.Find("#availability").First()),
		SellerName: text(doc.Find("#merchantInfoFeature_feature_div .offer-display-feature-text-message").First()),
		ShipsFrom:  text(doc.Find("#fulfillerInfoFeature_feature_div .offer-display-feature-text-message").First()),
		Condition:  "新品",
		IsBuyBox:   true,
	}
}

type detailSet struct {
	rows []model.Detail
	seen map[string]bool
}

func newDetailSet() *detailSet {
	return &detailSet{seen: make(map[string]bool)}
}

// add keeps the first value seen for a key.
func (d *detailSet) add(key, value string) {
	if key == "" || d.seen[key] {
		return
	}
	d.seen[key] = true
	d.rows = append(d.rows, model.Detail{Key: key, Value: value})
}

func (d *detailSet) get(key string) string {
	for _, r := range d.rows {
		if r.Key == key {
			return r.Value
		}
	}
	return ""
}

func parseDetailBullets(doc *goquery.Document, details *detailSet) {
	doc.Find("#detailBullets_feature_div li").Each(func(i int, li *goquery.Selection) {
		keyTag := li.Find("span.a-text-bold").First()
		if keyTag.Length() == 0 {
			return
		}
		key := cleanKey(keyTag.Text())

		switch {
		case strings.Contains(key, "売れ筋ランキング") || strings.Contains(key, "BestSellersRank"):
			value := strings.Replace(li.Text(), keyTag.Text(), "", 1)
			details.add(key, collapse(value))
		case strings.Contains(key, "カスタマーレビュー") || strings.Contains(key, "CustomerReviews"):
			details.add(key+"評価", text(li.Find("span.a-icon-alt").First()))
			details.add(key+"数", text(li.Find("#acrCustomerReviewText").First()))
		default:
			if value := keyTag.NextAllFiltered("span").First(); value.Length() > 0 {
				details.add(key, text(value))
			}
		}
	})
}

func parseDetailTable(table *goquery.Selection, details *detailSet) {
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		th := tr.Find("th.prodDetSectionEntry, td.prodDetSectionEntry").First()
		td := tr.Find("td.prodDetInfoEntry").First()
		if th.Length() == 0 || td.Length() == 0 {
			th = tr.Find("th").First()
			td = tr.Find("td").First()
		}
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		details.add(cleanKey(th.Text()), text(td))
	})
}

// parseAuthors checks the byline, then the about-the-author block, then the
// detail rows.
func parseAuthors(doc *goquery.Document, details *detailSet) []string {
	var authors []string
	seen := make(map[string]bool)
	doc.Find("#bylineInfo_feature_div .author .a-link-normal").Each(func(i int, a *goquery.Selection) {
		if name := text(a); name != "" && !seen[name] {
			seen[name] = true
			authors = append(authors, name)
		}
	})
	if len(authors) > 0 {
		return authors
	}
	if name := text(doc.Find("div.about-author-container a.a-link-normal").First()); name != "" {
		return []string{name}
	}
	if name := details.get("著者"); name != "" {
		return []string{name}
	}
	return nil
}

// parseImages prefers the hiRes entries of the embedded image gallery and
// falls back to upscaled thumbnails. URLs are unique by image id.
func parseImages(html string, doc *goquery.Document) []string {
	var urls []string
	seen := make(map[string]bool)
	keep := func(u string) {
		id := ImageID(u)
		if id == "" || seen[id] || len(urls) >= MaxImages {
			return
		}
		seen[id] = true
		urls = append(urls, u)
	}

	if m := colorImages.FindStringSubmatch(html); m != nil {
		for _, hit := range hiResURL.FindAllStringSubmatch(m[1], -1) {
			keep(unescapeJS(hit[1]))
		}
	}
	if len(urls) > 0 {
		return urls
	}

	doc.Find("#altImages li.item.imageThumbnail img, #altImages li.item img").Each(func(i int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			keep(thumbnailSuffix.ReplaceAllString(src, "._SL1500_."))
		}
	})
	return urls
}

// ImageID returns the stable id segment of an image URL.
func ImageID(url string) string {
	if m := imageID.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

func unescapeJS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}

func cleanKey(s string) string {
	return detailKeyNoise.ReplaceAllString(s, "")
}

func cleanBrand(s string) string {
	for _, p := range brandPatterns {
		if m := p.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return s
}

func isUsed(condition string) bool {
	lower := strings.ToLower(condition)
	return strings.Contains(condition, "中古") || strings.HasPrefix(lower, "used")
}

func text(s *goquery.Selection) string {
	return collapse(s.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
