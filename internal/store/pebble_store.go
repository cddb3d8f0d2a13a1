// Package store keeps a history of product summaries so a run can report
// how each product moved since the previous one.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	"github.com/guarzo/offerscout/internal/model"
)

// Snapshot is one stored summary.
type Snapshot struct {
	RunID   string               `json:"run_id"`
	Summary model.ProductSummary `json:"summary"`
}

// At is when the summary was generated.
func (s Snapshot) At() time.Time {
	return s.Summary.GeneratedAt
}

// PebbleStore keeps snapshots keyed by product and generation time.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:       16 << 20,
		WALMinSyncInterval: func() time.Duration { return 0 },
	}
	db, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

// key layout: "s" 0x00 productID 0x00 zero-padded unix nanos.
func productPrefix(productID string) []byte {
	return []byte("s\x00" + productID + "\x00")
}

func productUpperBound(productID string) []byte {
	return []byte("s\x00" + productID + "\x01")
}

func snapshotKey(productID string, at time.Time) []byte {
	return append(productPrefix(productID), fmt.Sprintf("%020d", at.UTC().UnixNano())...)
}

func encodeSnapshot(s Snapshot) ([]byte, error) { return json.Marshal(s) }
func decodeSnapshot(val []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(val, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Put stores a snapshot. A second snapshot for the same product and
// instant replaces the first.
func (p *PebbleStore) Put(s Snapshot) error {
	if s.Summary.ProductID == "" {
		return errors.New("snapshot without product id")
	}
	val, err := encodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.db.Set(snapshotKey(s.Summary.ProductID, s.At()), val, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// PutAll stores snapshots in one batch.
func (p *PebbleStore) PutAll(snapshots []Snapshot) error {
	b := p.db.NewBatch()
	defer b.Close()
	for _, s := range snapshots {
		if s.Summary.ProductID == "" {
			continue
		}
		val, err := encodeSnapshot(s)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := b.Set(snapshotKey(s.Summary.ProductID, s.At()), val, nil); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}
	return b.Commit(pebble.Sync)
}

// Latest returns the newest snapshot for productID.
func (p *PebbleStore) Latest(productID string) (Snapshot, bool, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: productPrefix(productID),
		UpperBound: productUpperBound(productID),
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()

	if !it.Last() {
		return Snapshot{}, false, it.Error()
	}
	s, err := decodeSnapshot(it.Value())
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, true, nil
}

// History returns up to limit snapshots for productID, newest first.
// limit <= 0 returns all.
func (p *PebbleStore) History(productID string, limit int) ([]Snapshot, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: productPrefix(productID),
		UpperBound: productUpperBound(productID),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()

	var out []Snapshot
	for ok := it.Last(); ok; ok = it.Prev() {
		s, err := decodeSnapshot(append([]byte(nil), it.Value()...))
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, it.Error()
}

// Prune deletes snapshots of productID generated before cutoff.
func (p *PebbleStore) Prune(productID string, cutoff time.Time) error {
	if err := p.db.DeleteRange(productPrefix(productID), snapshotKey(productID, cutoff), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete range: %w", err)
	}
	return nil
}

// Change compares a summary against the previous snapshot.
type Change struct {
	ProductID      string
	PreviousAt     time.Time
	StatusChanged  bool
	ScoreDelta     float64
	BestTotalDelta *decimal.Decimal // nil unless both runs had a best offer
	SellerDelta    int
	BestSellerMove bool
}

// Diff reports how cur moved relative to prev.
func Diff(prev Snapshot, cur model.ProductSummary) Change {
	p := prev.Summary
	c := Change{
		ProductID:     cur.ProductID,
		PreviousAt:    p.GeneratedAt,
		StatusChanged: p.Status != cur.Status,
		ScoreDelta:    cur.AggregateScore - p.AggregateScore,
		SellerDelta:   cur.DistinctSellerCount - p.DistinctSellerCount,
	}
	if p.BestOffer != nil && cur.BestOffer != nil {
		d := cur.BestOffer.TotalCost.Sub(p.BestOffer.TotalCost)
		c.BestTotalDelta = &d
		c.BestSellerMove = p.BestOffer.SellerID != cur.BestOffer.SellerID
	} else {
		c.BestSellerMove = (p.BestOffer == nil) != (cur.BestOffer == nil)
	}
	return c
}
