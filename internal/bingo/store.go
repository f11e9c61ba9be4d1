package bingo

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"totdbot/internal/storage"
)

const keyPrefix = "bingo/"

func currentKey(groupID int64) string { return keyPrefix + strconv.FormatInt(groupID, 10) + "/current" }
func lastKey(groupID int64) string    { return keyPrefix + strconv.FormatInt(groupID, 10) + "/last" }

// Store persists one current and one previous board per group.
type Store struct {
	st storage.Store
}

func NewStore(st storage.Store) *Store { return &Store{st: st} }

func (s *Store) Current(ctx context.Context, groupID int64) (Board, bool, error) {
	var b Board
	ok, err := storage.Load(ctx, s.st, currentKey(groupID), &b)
	return b, ok, err
}

func (s *Store) Last(ctx context.Context, groupID int64) (Board, bool, error) {
	var b Board
	ok, err := storage.Load(ctx, s.st, lastKey(groupID), &b)
	return b, ok, err
}

func (s *Store) Save(ctx context.Context, b Board) error {
	return storage.Save(ctx, s.st, currentKey(b.GroupID), b)
}

// Groups lists every group that has a current board.
func (s *Store) Groups(ctx context.Context) ([]int64, error) {
	keys, err := s.st.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(keys))
	for _, k := range keys {
		rest, ok := strings.CutSuffix(strings.TrimPrefix(k, keyPrefix), "/current")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Generator builds fresh boards for the weekly cycle.
type Generator struct {
	Pool         []string
	Rand         Rand
	Location     *time.Location
	BoundaryHour int
}

func (g Generator) rng() Rand {
	if g.Rand != nil {
		return g.Rand
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func (g Generator) pool() []string {
	if len(g.Pool) > 0 {
		return g.Pool
	}
	return DefaultFields
}

// New generates a board for groupID in the cycle week containing now.
func (g Generator) New(groupID int64, now time.Time) (Board, error) {
	cells, err := GenerateBoard(g.pool(), g.rng())
	if err != nil {
		return Board{}, err
	}
	year, week := WeekNumber(now, g.Location, g.BoundaryHour)
	return Board{GroupID: groupID, Year: year, Week: week, Cells: cells, CreatedAt: now}, nil
}

// Regenerate archives the group's current board under "last week" and stores a new one.
func (s *Store) Regenerate(ctx context.Context, g Generator, groupID int64, now time.Time) (Board, error) {
	// generate first so a failure leaves both stored boards untouched
	b, err := g.New(groupID, now)
	if err != nil {
		return Board{}, err
	}
	prev, ok, err := s.Current(ctx, groupID)
	if err != nil {
		return Board{}, err
	}
	if ok {
		if err := storage.Save(ctx, s.st, lastKey(groupID), prev); err != nil {
			return Board{}, err
		}
	}
	if err := s.Save(ctx, b); err != nil {
		return Board{}, err
	}
	return b, nil
}

// Ensure returns the group's current board, creating one when none exists.
func (s *Store) Ensure(ctx context.Context, g Generator, groupID int64, now time.Time) (Board, error) {
	b, ok, err := s.Current(ctx, groupID)
	if err != nil {
		return Board{}, err
	}
	if ok {
		return b, nil
	}
	return s.Regenerate(ctx, g, groupID, now)
}

// Delete drops both boards of a group.
func (s *Store) Delete(ctx context.Context, groupID int64) error {
	if err := s.st.Delete(ctx, currentKey(groupID)); err != nil {
		return err
	}
	return s.st.Delete(ctx, lastKey(groupID))
}
