package reactions

import (
	"context"
	"errors"
	"testing"

	"totdbot/internal/storage"
	"totdbot/internal/transport"
)

func TestLedgerToggle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLedger(storage.NewMemory())
	ref := transport.MessageRef{ChatID: -100, MessageID: 7}

	if err := l.Register(ctx, ref, "+", "-"); err != nil {
		t.Fatal(err)
	}
	got, err := l.Tallies(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if got["+"] != 1 || got["-"] != 1 {
		t.Fatalf("seeded tallies = %v, want 1 each", got)
	}

	added, counts, err := l.Toggle(ctx, ref, "+", 42)
	if err != nil || !added || counts["+"] != 2 {
		t.Fatalf("Toggle() = %v, %v, %v", added, counts, err)
	}
	_, _, _ = l.Toggle(ctx, ref, "+", 43)
	added, counts, err = l.Toggle(ctx, ref, "+", 42)
	if err != nil || added || counts["+"] != 2 {
		t.Fatalf("second Toggle() = %v, %v, %v", added, counts, err)
	}
}

func TestLedgerErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLedger(storage.NewMemory())
	ref := transport.MessageRef{ChatID: 1, MessageID: 2}

	if _, _, err := l.Toggle(ctx, ref, "+", 1); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("err = %v, want ErrUnknownMessage", err)
	}
	if _, err := l.Tallies(ctx, ref); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("err = %v, want ErrUnknownMessage", err)
	}
	_ = l.Register(ctx, ref, "✅")
	if _, _, err := l.Toggle(ctx, ref, "❌", 1); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}

	// registering again keeps voters and order
	_, _, _ = l.Toggle(ctx, ref, "✅", 9)
	_ = l.Register(ctx, ref, "✅", "❌")
	e, err := l.Entry(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Symbols) != 2 || e.Symbols[0] != "✅" || len(e.Voters["✅"]) != 1 {
		t.Fatalf("entry = %+v", e)
	}

	if err := l.Forget(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Entry(ctx, ref); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("after Forget err = %v", err)
	}
}
