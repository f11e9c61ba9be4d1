package rating

import (
	"context"
	"errors"
	"testing"

	"totdbot/internal/storage"
)

func TestStoreApplyAndArchive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore(storage.NewMemory())

	if _, err := s.Apply(ctx, "map-a", Plus, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Apply(ctx, "map-a", Plus, 1); err != nil {
		t.Fatal(err)
	}
	r, err := s.Apply(ctx, "map-a", Minus, -1)
	if err != nil {
		t.Fatal(err)
	}
	if r.Counts[Minus] != 0 {
		t.Fatalf("Minus = %d, want floor at 0", r.Counts[Minus])
	}
	if r.Counts[Plus] != 2 || r.Version != 3 {
		t.Fatalf("record = %+v", r)
	}

	if _, err := s.Apply(ctx, "map-b", Plus, 1); !errors.Is(err, ErrOtherItem) {
		t.Fatalf("Apply(other item) err = %v, want ErrOtherItem", err)
	}

	old, err := s.Archive(ctx, "map-b")
	if err != nil {
		t.Fatal(err)
	}
	if old.ItemID != "map-a" || old.Counts[Plus] != 2 {
		t.Fatalf("archived = %+v", old)
	}

	y, ok, err := s.Yesterday(ctx)
	if err != nil || !ok || y.ItemID != "map-a" {
		t.Fatalf("Yesterday() = %+v, %v, %v", y, ok, err)
	}
	cur, err := s.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cur.ItemID != "map-b" || cur.Counts.Total() != 0 {
		t.Fatalf("current after archive = %+v", cur)
	}
}
