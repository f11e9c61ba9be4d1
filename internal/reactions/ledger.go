// Package reactions keeps per-message reaction state for platforms whose
// native reactions cannot be read back (Telegram inline buttons).
package reactions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"totdbot/internal/storage"
	"totdbot/internal/transport"
)

var (
	ErrUnknownMessage = errors.New("reactions: message not tracked")
	ErrUnknownSymbol  = errors.New("reactions: symbol not offered on message")
)

// Entry is the stored state of one message.
type Entry struct {
	Symbols []string
	Voters  map[string][]int64
}

func (e Entry) counts() map[string]int {
	out := make(map[string]int, len(e.Symbols))
	for _, s := range e.Symbols {
		out[s] = transport.SeedReactionCount + len(e.Voters[s])
	}
	return out
}

// Ledger stores entries under react/<chat>/<msg>. A single mutex serialises
// read-modify-write cycles; reaction traffic is low.
type Ledger struct {
	st storage.Store
	mu sync.Mutex
}

func NewLedger(st storage.Store) *Ledger { return &Ledger{st: st} }

func key(ref transport.MessageRef) string {
	return "react/" + strconv.FormatInt(ref.ChatID, 10) + "/" + strconv.Itoa(ref.MessageID)
}

// Register starts tracking ref with the given symbols. Already offered symbols keep their voters.
func (l *Ledger) Register(ctx context.Context, ref transport.MessageRef, symbols ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var e Entry
	if _, err := storage.Load(ctx, l.st, key(ref), &e); err != nil {
		return err
	}
	if e.Voters == nil {
		e.Voters = map[string][]int64{}
	}
	for _, s := range symbols {
		if s != "" && !slices.Contains(e.Symbols, s) {
			e.Symbols = append(e.Symbols, s)
		}
	}
	return storage.Save(ctx, l.st, key(ref), e)
}

// Toggle flips userID's reaction with symbol on ref. It reports whether the
// reaction is now present and the updated counts (seeds included).
func (l *Ledger) Toggle(ctx context.Context, ref transport.MessageRef, symbol string, userID int64) (bool, map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var e Entry
	ok, err := storage.Load(ctx, l.st, key(ref), &e)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, fmt.Errorf("%w: %d/%d", ErrUnknownMessage, ref.ChatID, ref.MessageID)
	}
	if !slices.Contains(e.Symbols, symbol) {
		return false, nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	if e.Voters == nil {
		e.Voters = map[string][]int64{}
	}

	voters := e.Voters[symbol]
	added := true
	if i := slices.Index(voters, userID); i >= 0 {
		voters = slices.Delete(voters, i, i+1)
		added = false
	} else {
		voters = append(voters, userID)
	}
	if len(voters) == 0 {
		delete(e.Voters, symbol)
	} else {
		e.Voters[symbol] = voters
	}

	if err := storage.Save(ctx, l.st, key(ref), e); err != nil {
		return false, nil, err
	}
	return added, e.counts(), nil
}

// Tallies returns per-symbol counts for ref, seed reactions included.
func (l *Ledger) Tallies(ctx context.Context, ref transport.MessageRef) (map[string]int, error) {
	e, err := l.Entry(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.counts(), nil
}

// Entry returns the stored entry of ref.
func (l *Ledger) Entry(ctx context.Context, ref transport.MessageRef) (Entry, error) {
	var e Entry
	ok, err := storage.Load(ctx, l.st, key(ref), &e)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d/%d", ErrUnknownMessage, ref.ChatID, ref.MessageID)
	}
	return e, nil
}

func (l *Ledger) Forget(ctx context.Context, ref transport.MessageRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.Delete(ctx, key(ref))
}
