package rating

import (
	"context"
	"errors"
	"fmt"

	"totdbot/internal/storage"
)

const (
	keyCurrent   = "rating/current"
	keyYesterday = "rating/yesterday"
)

// ErrOtherItem is returned by Apply when the current tally belongs to a different item.
var ErrOtherItem = errors.New("rating: tally belongs to another item")

// Record is the persisted tally of one item. Version increases on every write;
// it is informational only since the store has no compare-and-swap.
type Record struct {
	ItemID  string
	Counts  Tally
	Version uint64
}

func (r Record) Stats() Stats { return CalculateStats(r.Counts) }

// Store keeps the current and yesterday tallies.
type Store struct {
	st storage.Store
}

func NewStore(st storage.Store) *Store { return &Store{st: st} }

// Current returns the tally of the current item; an empty record when none exists yet.
func (s *Store) Current(ctx context.Context) (Record, error) {
	var r Record
	if _, err := storage.Load(ctx, s.st, keyCurrent, &r); err != nil {
		return Record{}, err
	}
	r.Counts = r.Counts.Clone()
	return r, nil
}

func (s *Store) Yesterday(ctx context.Context) (Record, bool, error) {
	var r Record
	ok, err := storage.Load(ctx, s.st, keyYesterday, &r)
	if err != nil || !ok {
		return Record{}, ok, err
	}
	r.Counts = r.Counts.Clone()
	return r, true, nil
}

// Apply adds delta to one category of the current tally, flooring at zero.
// It is a plain read-modify-write: concurrent calls may lose an update.
func (s *Store) Apply(ctx context.Context, itemID string, c Category, delta int) (Record, error) {
	if !c.Valid() {
		return Record{}, fmt.Errorf("rating: unknown category %q", c)
	}
	r, err := s.Current(ctx)
	if err != nil {
		return Record{}, err
	}
	if r.ItemID == "" {
		r.ItemID = itemID
	}
	if r.ItemID != itemID {
		return r, ErrOtherItem
	}
	r.Counts[c] = max(0, r.Counts[c]+delta)
	r.Version++
	if err := storage.Save(ctx, s.st, keyCurrent, r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Archive moves the current tally to yesterday and starts an empty one for newItemID.
// It returns the archived record.
func (s *Store) Archive(ctx context.Context, newItemID string) (Record, error) {
	old, err := s.Current(ctx)
	if err != nil {
		return Record{}, err
	}
	old.Version++
	if err := storage.Save(ctx, s.st, keyYesterday, old); err != nil {
		return Record{}, err
	}
	fresh := Record{ItemID: newItemID, Counts: Tally{}.Clone(), Version: old.Version + 1}
	if err := storage.Save(ctx, s.st, keyCurrent, fresh); err != nil {
		return Record{}, err
	}
	return old, nil
}
