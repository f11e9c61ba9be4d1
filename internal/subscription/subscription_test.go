package subscription

import (
	"context"
	"errors"
	"testing"

	"totdbot/internal/storage"
	"totdbot/internal/transport"
)

func TestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore(storage.NewMemory())

	for _, id := range []int64{-1003, 42, -1001} {
		if err := s.Put(ctx, Subscription{GroupID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Put(ctx, Subscription{GroupID: 7, Target: transport.ChatTarget{ChatID: 7, ThreadID: 3}}); err != nil {
		t.Fatal(err)
	}

	subs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{-1003, -1001, 7, 42}
	if len(subs) != len(want) {
		t.Fatalf("List() = %d subs, want %d", len(subs), len(want))
	}
	for i, id := range want {
		if subs[i].GroupID != id {
			t.Fatalf("List()[%d] = %d, want %d", i, subs[i].GroupID, id)
		}
		if subs[i].Target.ChatID != id {
			t.Fatalf("target defaulting broken: %+v", subs[i])
		}
	}
	if subs[2].Target.ThreadID != 3 {
		t.Fatalf("thread lost: %+v", subs[2])
	}

	sub, err := s.SetRole(ctx, 42, "Europe", "@cotd_eu")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Roles["europe"] != "@cotd_eu" {
		t.Fatalf("roles = %v", sub.Roles)
	}
	sub, err = s.SetRole(ctx, 42, "europe", "")
	if err != nil || len(sub.Roles) != 0 {
		t.Fatalf("SetRole(off) = %v, %v", sub.Roles, err)
	}
	if _, err := s.SetRole(ctx, 99, "asia", "@x"); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("SetRole(unknown) err = %v", err)
	}

	if err := s.Delete(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, 42); ok {
		t.Fatal("42 still subscribed")
	}
}
