package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/offerscout/internal/model"
)

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, kind, url string) (string, error) {
	f.calls = append(f.calls, kind+" "+url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	if body, ok := f.pages[url]; ok {
		return body, nil
	}
	return "", fmt.Errorf("%s: %w", url, ErrNotFound)
}

func TestSource_Collect(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://shop.test/dp/B0TESTASIN":       fixture(t, "detail.html"),
		"https://shop.test/aod?asin=B0TESTASIN": fixture(t, "offers.html"),
	}}

	listing, err := NewSource(f).Collect(context.Background(), model.ProductRequest{
		ProductID: "B0TESTASIN",
		DetailURL: "https://shop.test/dp/B0TESTASIN",
		OffersURL: "https://shop.test/aod?asin=B0TESTASIN",
	})
	require.NoError(t, err)

	require.NotNil(t, listing.Page)
	assert.Equal(t, "B0TESTASIN", listing.Page.ASIN)
	require.Len(t, listing.Offers, 3)
	assert.True(t, listing.Offers[0].IsBuyBox)
	assert.False(t, listing.Offers[1].IsBuyBox)
	assert.Equal(t, []string{
		"detail https://shop.test/dp/B0TESTASIN",
		"offers https://shop.test/aod?asin=B0TESTASIN",
	}, f.calls)
}

func TestSource_MissingOfferListingKeepsBuyBox(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://shop.test/dp/B0TESTASIN": fixture(t, "detail.html"),
	}}

	listing, err := NewSource(f).Collect(context.Background(), model.ProductRequest{
		ProductID: "B0TESTASIN",
		DetailURL: "https://shop.test/dp/B0TESTASIN",
		OffersURL: "https://shop.test/missing",
	})
	require.NoError(t, err)
	require.Len(t, listing.Offers, 1)
	assert.True(t, listing.Offers[0].IsBuyBox)
}

func TestSource_Errors(t *testing.T) {
	blocked := fmt.Errorf("HTTP 503: %w", ErrBlocked)

	tests := []struct {
		name string
		req  model.ProductRequest
		errs map[string]error
		want error
	}{
		{
			name: "detail blocked",
			req:  model.ProductRequest{DetailURL: "d", OffersURL: "o"},
			errs: map[string]error{"d": blocked},
			want: ErrBlocked,
		},
		{
			name: "detail missing",
			req:  model.ProductRequest{DetailURL: "d"},
			want: ErrNotFound,
		},
		{
			name: "offers blocked",
			req:  model.ProductRequest{OffersURL: "o"},
			errs: map[string]error{"o": blocked},
			want: ErrBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{errs: tt.errs}
			_, err := NewSource(f).Collect(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSource_NoURLs(t *testing.T) {
	listing, err := NewSource(&fakeFetcher{}).Collect(context.Background(), model.ProductRequest{ProductID: "x"})
	require.NoError(t, err)
	assert.Nil(t, listing.Page)
	assert.Empty(t, listing.Offers)
}
