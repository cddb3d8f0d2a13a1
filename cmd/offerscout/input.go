package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/guarzo/offerscout/internal/model"
	"github.com/guarzo/offerscout/internal/scraper"
)

// readRequests loads product_id,detail_url,offers_url rows. The header row
// is optional; a blank product_id falls back to the ASIN in detail_url.
func readRequests(path string) ([]model.ProductRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return parseRequests(f)
}

func parseRequests(r io.Reader) ([]model.ProductRequest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		reqs []model.ProductRequest
		seen = map[string]bool{}
		line int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		line++
		if line == 1 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "product_id") {
			continue
		}

		cell := func(i int) string {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		req := model.ProductRequest{ProductID: cell(0), DetailURL: cell(1), OffersURL: cell(2)}
		if req.DetailURL == "" && req.OffersURL == "" {
			if req.ProductID == "" {
				continue
			}
			return nil, fmt.Errorf("input line %d: product %s has no url", line, req.ProductID)
		}
		if req.ProductID == "" {
			req.ProductID = scraper.ExtractASIN(req.DetailURL)
		}
		if req.ProductID == "" {
			return nil, fmt.Errorf("input line %d: no product_id and no ASIN in url", line)
		}
		if seen[req.ProductID] {
			continue
		}
		seen[req.ProductID] = true
		reqs = append(reqs, req)
	}
	return reqs, nil
}
