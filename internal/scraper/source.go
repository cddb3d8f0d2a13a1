package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/guarzo/offerscout/internal/model"
)

// Fetcher returns a page body. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, kind, url string) (string, error)
}

// Listing is everything collected for one product.
type Listing struct {
	Page   *model.ProductPage
	Offers []model.RawOffer
}

// Source collects the buy box and offer panel for a product.
type Source struct {
	fetcher Fetcher
}

func NewSource(f Fetcher) *Source {
	return &Source{fetcher: f}
}

// Collect fetches the detail page and the offer listing of req. The buy box
// offer, when present, comes first so it survives deduplication against
// the same offer in the listing. A missing offer listing is tolerated.
func (s *Source) Collect(ctx context.Context, req model.ProductRequest) (*Listing, error) {
	listing := &Listing{}

	if req.DetailURL != "" {
		body, err := s.fetcher.Fetch(ctx, KindDetail, req.DetailURL)
		if err != nil {
			return nil, fmt.Errorf("fetch detail page: %w", err)
		}
		page, err := ParseProductPage(req.DetailURL, body)
		if err != nil {
			return nil, err
		}
		listing.Page = page
		if page.BuyBox != nil {
			listing.Offers = append(listing.Offers, *page.BuyBox)
		}
	}

	if req.OffersURL != "" {
		body, err := s.fetcher.Fetch(ctx, KindOffers, req.OffersURL)
		switch {
		case errors.Is(err, ErrNotFound):
			logrus.WithField("product_id", req.ProductID).Warn("Scraper: offer listing not found, using buy box only")
		case err != nil:
			return nil, fmt.Errorf("fetch offer listing: %w", err)
		default:
			offers, err := ParseOfferListing(body)
			if err != nil {
				return nil, err
			}
			listing.Offers = append(listing.Offers, offers...)
		}
	}

	logrus.WithFields(logrus.Fields{
		"product_id": req.ProductID,
		"offers":     len(listing.Offers),
	}).Debug("Scraper: collected listing")
	return listing, nil
}
