package bingo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"totdbot/internal/storage"
	"totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

type fakePlatform struct {
	mu      sync.Mutex
	nextID  int
	sent    []*transport.OutMessage
	tallies map[int]map[string]int // by message id
	gone    map[int]bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{tallies: map[int]map[string]int{}, gone: map[int]bool{}}
}

func (f *fakePlatform) Send(ctx context.Context, to transport.ChatTarget, msg *transport.OutMessage) (transport.Sent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, msg)
	return transport.Sent{Ref: transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}}, nil
}

func (f *fakePlatform) ReactionTallies(ctx context.Context, ref transport.MessageRef) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[ref.MessageID] {
		return nil, transport.ErrMessageGone
	}
	return f.tallies[ref.MessageID], nil
}

func setupResolver(t *testing.T) (*Resolver, *Store, *fakePlatform) {
	t.Helper()
	st := NewStore(storage.NewMemory())
	p := newFakePlatform()
	return NewResolver(st, p, nil, logx.Nop()), st, p
}

func TestStartVoteRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, st, _ := setupResolver(t)
	to := transport.ChatTarget{ChatID: 42}

	if _, err := r.StartVote(ctx, 42, to, 1, 7); !errors.Is(err, ErrNoBoard) {
		t.Fatalf("no board: err = %v", err)
	}

	b, err := st.Regenerate(ctx, Generator{Pool: testPool(24)}, 42, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	b.Cells[0].Checked = true
	if err := st.Save(ctx, b); err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{0, 26, -3} {
		if _, err := r.StartVote(ctx, 42, to, n, 7); !errors.Is(err, ErrInvalidCell) {
			t.Fatalf("cell %d: err = %v, want ErrInvalidCell", n, err)
		}
	}
	if _, err := r.StartVote(ctx, 42, to, 1, 7); !errors.Is(err, ErrCellChecked) {
		t.Fatalf("checked cell: err = %v", err)
	}
	if _, err := r.StartVote(ctx, 42, to, 13, 7); !errors.Is(err, ErrCellChecked) {
		t.Fatalf("free space: err = %v", err)
	}
	c, err := r.StartVote(ctx, 42, to, 2, 7)
	if err != nil {
		t.Fatalf("StartVote() error: %v", err)
	}
	if c.Vote == nil || c.Vote.StartedBy != 7 {
		t.Fatalf("vote = %+v", c.Vote)
	}
	if _, err := r.StartVote(ctx, 42, to, 2, 8); !errors.Is(err, ErrVoteActive) {
		t.Fatalf("second vote: err = %v, want ErrVoteActive", err)
	}
}

func TestResolveAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, st, p := setupResolver(t)
	to := transport.ChatTarget{ChatID: 1}

	b, err := st.Regenerate(ctx, Generator{Pool: testPool(24)}, 1, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	// row 0 needs only cell 5
	for i := 0; i < 4; i++ {
		b.Cells[i].Checked = true
	}
	if err := st.Save(ctx, b); err != nil {
		t.Fatal(err)
	}

	for _, cell := range []int{5, 7, 9} {
		if _, err := r.StartVote(ctx, 1, to, cell, 99); err != nil {
			t.Fatal(err)
		}
	}
	// message ids follow start order; counts include the seed reaction
	p.tallies[1] = map[string]int{YesSymbol: 6, NoSymbol: 4}
	p.tallies[2] = map[string]int{YesSymbol: 4, NoSymbol: 4}
	p.gone[3] = true

	res, err := r.ResolveAll(ctx)
	if err != nil {
		t.Fatalf("ResolveAll() error: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("resolutions = %+v", res)
	}
	want := map[int]Outcome{5: Checked, 7: StillOpen, 9: StillOpen}
	for _, x := range res {
		if x.Outcome != want[x.Cell] {
			t.Fatalf("cell %d outcome = %v, want %v", x.Cell, x.Outcome, want[x.Cell])
		}
	}
	if res[0].Yes != 5 || res[0].No != 3 {
		t.Fatalf("cell 5 tally = %d/%d, want 5/3", res[0].Yes, res[0].No)
	}
	if !res[len(res)-1].Won {
		t.Fatal("completing row 0 did not report a win")
	}

	after, _, _ := st.Current(ctx, 1)
	if !after.Cells[4].Checked || after.Cells[6].Checked || after.Cells[8].Checked {
		t.Fatal("board checks wrong after resolution")
	}
	for i, c := range after.Cells {
		if c.Vote != nil {
			t.Fatalf("cell %d still has an open vote", i+1)
		}
	}
	if after.WonAt.IsZero() {
		t.Fatal("WonAt not set")
	}

	// a resolved cell can be voted on again
	if _, err := r.StartVote(ctx, 1, to, 7, 99); err != nil {
		t.Fatalf("revote error: %v", err)
	}
}

func TestRegenerateArchivesPreviousBoard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewStore(storage.NewMemory())
	g := Generator{Pool: DefaultFields, Location: time.UTC, BoundaryHour: 19}

	first, err := st.Regenerate(ctx, g, 5, time.Date(2024, 1, 8, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := st.Last(ctx, 5); ok {
		t.Fatal("last board exists before the first rollover")
	}
	second, err := st.Regenerate(ctx, g, 5, time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	last, ok, err := st.Last(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("Last() = %v, %v", ok, err)
	}
	if last.Week != first.Week || second.Week != first.Week+1 {
		t.Fatalf("weeks: first %d last %d second %d", first.Week, last.Week, second.Week)
	}

	ensured, err := st.Ensure(ctx, g, 5, time.Now())
	if err != nil || ensured.Week != second.Week {
		t.Fatalf("Ensure() = week %d, %v", ensured.Week, err)
	}
	groups, _ := st.Groups(ctx)
	if len(groups) != 1 || groups[0] != 5 {
		t.Fatalf("Groups() = %v", groups)
	}
}

func TestRegenerateFailureKeepsBoards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewStore(storage.NewMemory())
	g := Generator{Pool: DefaultFields, Location: time.UTC, BoundaryHour: 19}

	if _, err := st.Regenerate(ctx, g, 5, time.Date(2024, 1, 8, 20, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	cur, err := st.Regenerate(ctx, g, 5, time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	last, _, _ := st.Last(ctx, 5)

	small := Generator{Pool: testPool(10), Location: time.UTC, BoundaryHour: 19}
	if _, err := st.Regenerate(ctx, small, 5, time.Date(2024, 1, 22, 20, 0, 0, 0, time.UTC)); !errors.Is(err, ErrPoolTooSmall) {
		t.Fatalf("Regenerate(small pool) err = %v, want ErrPoolTooSmall", err)
	}
	gotCur, ok, err := st.Current(ctx, 5)
	if err != nil || !ok || gotCur.Week != cur.Week {
		t.Fatalf("Current() = week %d, %v, %v, want week %d", gotCur.Week, ok, err, cur.Week)
	}
	gotLast, ok, err := st.Last(ctx, 5)
	if err != nil || !ok || gotLast.Week != last.Week {
		t.Fatalf("Last() = week %d, %v, %v, want week %d", gotLast.Week, ok, err, last.Week)
	}
}
