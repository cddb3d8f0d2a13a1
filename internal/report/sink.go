package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sink receives finished product records.
type Sink interface {
	Write(records []Record) error
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(records []Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CSVSink appends to summary.csv, offers.csv and products.csv under Dir.
// A header row is written when a file is created.
type CSVSink struct {
	Dir       string
	MaxOffers int
}

func NewCSVSink(dir string, maxOffers int) *CSVSink {
	if maxOffers <= 0 {
		maxOffers = DefaultMaxOffers
	}
	return &CSVSink{Dir: dir, MaxOffers: maxOffers}
}

func (s *CSVSink) Write(records []Record) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}

	var summaries, offers, products [][]string
	for _, r := range records {
		summaries = append(summaries, SummaryRow(r))
		offers = append(offers, OfferRows(r, s.MaxOffers)...)
		if row := ProductRow(r); row != nil {
			products = append(products, row)
		}
	}

	if err := appendCSV(filepath.Join(s.Dir, "summary.csv"), SummaryHeaders, summaries); err != nil {
		return err
	}
	if err := appendCSV(filepath.Join(s.Dir, "offers.csv"), OfferHeaders, offers); err != nil {
		return err
	}
	return appendCSV(filepath.Join(s.Dir, "products.csv"), ProductHeaders, products)
}

func appendCSV(path string, headers []string, rows [][]string) error {
	info, statErr := os.Stat(path)
	needHeader := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if needHeader {
		if err := w.Write(SafeCSVHeaders(headers)); err != nil {
			return fmt.Errorf("write header %s: %w", path, err)
		}
	}
	if err := w.WriteAll(EscapeCSVRows(rows)); err != nil {
		return fmt.Errorf("write rows %s: %w", path, err)
	}
	return file.Close()
}
