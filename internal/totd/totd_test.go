package totd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"totdbot/internal/bingo"
	"totdbot/internal/broadcast"
	"totdbot/internal/cache"
	"totdbot/internal/content"
	"totdbot/internal/metrics"
	"totdbot/internal/ranking"
	"totdbot/internal/rating"
	"totdbot/internal/storage"
	"totdbot/internal/subscription"
	kit "totdbot/internal/transport"
	"totdbot/internal/transport/telegram/router"
	logx "totdbot/pkg/logx"
)

type fakeSource struct {
	mu   sync.Mutex
	item content.Item
	err  error
}

func (f *fakeSource) set(it content.Item) {
	f.mu.Lock()
	f.item, f.err = it, nil
	f.mu.Unlock()
}

func (f *fakeSource) CurrentItem(ctx context.Context) (content.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item, f.err
}

func (f *fakeSource) Leaderboard(ctx context.Context, it content.Item) (content.Leaderboard, error) {
	return content.Leaderboard{ItemID: it.ID, Records: []content.Record{
		{Position: 1, Score: 45123, PlayerName: "fast"},
		{Position: 100, Score: 47000},
	}}, nil
}

type fakeAdapter struct {
	mu      sync.Mutex
	nextID  int
	sends   []kit.MessageRef
	titles  []string
	texts   []string
	revoked map[int64]bool
	failing map[int64]error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{revoked: map[int64]bool{}, failing: map[int64]error{}}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                        { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked[to.ChatID] {
		return kit.MessageRef{}, fmt.Errorf("%w: blocked", kit.ErrAccessRevoked)
	}
	if err := f.failing[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.nextID++
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error { return nil }

func (f *fakeAdapter) Send(ctx context.Context, to kit.ChatTarget, msg *kit.OutMessage) (kit.Sent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked[to.ChatID] {
		return kit.Sent{}, fmt.Errorf("%w: kicked", kit.ErrAccessRevoked)
	}
	f.nextID++
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}
	f.sends = append(f.sends, ref)
	f.titles = append(f.titles, msg.Title)
	return kit.Sent{Ref: ref}, nil
}

func (f *fakeAdapter) AddReaction(ctx context.Context, ref kit.MessageRef, symbol string) error {
	return nil
}

func (f *fakeAdapter) ReactionTallies(ctx context.Context, ref kit.MessageRef) (map[string]int, error) {
	return map[string]int{bingo.YesSymbol: 3, bingo.NoSymbol: 1}, nil
}

func (f *fakeAdapter) sent() ([]kit.MessageRef, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.MessageRef(nil), f.sends...), append([]string(nil), f.titles...)
}

func (f *fakeAdapter) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	s   *Session
	st  storage.Store
	src *fakeSource
	ad  *fakeAdapter
	clk *clock
}

func item(id, day string) content.Item {
	return content.Item{ID: id, SeasonID: "season", Name: "$f00" + id, Author: "acc", AuthorName: "Author " + id,
		Bronze: 60000, Silver: 50000, Gold: 45000, AuthorTime: 42123, Tags: []string{"Tech"}, Day: day}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory()
	ad := newFakeAdapter()
	src := &fakeSource{item: item("A", "2024-05-10")}
	clk := &clock{t: time.Date(2024, 5, 10, 19, 10, 0, 0, time.UTC)}
	subs := subscription.NewStore(st)
	boards := bingo.NewStore(st)
	c := cache.New(st, logx.Nop(), cache.WithClock(clk.now))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Wait(ctx)
	})

	s, err := New(Config{}, Deps{
		Store:     st,
		Source:    src,
		Cache:     c,
		Broadcast: broadcast.New(broadcast.Config{}, ad, subs, logx.Nop(), broadcast.WithSleep(func(context.Context, time.Duration) error { return nil })),
		Subs:      subs,
		Ratings:   rating.NewStore(st),
		Rankings:  ranking.NewMaintainer(st, logx.Nop()),
		Boards:    boards,
		Resolver:  bingo.NewResolver(boards, ad, nil, logx.Nop()),
		Adapter:   ad,
		Now:       clk.now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{s: s, st: st, src: src, ad: ad, clk: clk}
}

func (f *fixture) subscribe(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		sub := subscription.Subscription{GroupID: id, Target: kit.ChatTarget{ChatID: id}}
		if err := f.s.d.Subs.Put(context.Background(), sub); err != nil {
			t.Fatalf("Put(%d): %v", id, err)
		}
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Boundary: "25:00"}, Deps{}); err == nil {
		t.Fatalf("New accepted a bad boundary")
	}
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatalf("New accepted missing deps")
	}
}

func TestRolloverAnnouncesOncePerItem(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, -100, -200)

	if err := f.s.Rollover(ctx); err != nil {
		t.Fatalf("Rollover = %v", err)
	}
	refs, titles := f.ad.sent()
	if len(refs) != 2 {
		t.Fatalf("sends = %d, want 2", len(refs))
	}
	if titles[0] != "Here's the May 10th Track of the Day!" {
		t.Fatalf("title = %q", titles[0])
	}
	var tracked string
	if ok, err := storage.Load(ctx, f.st, announceKey(refs[0]), &tracked); err != nil || !ok || tracked != "A" {
		t.Fatalf("announcement tracking = %q, %v, %v", tracked, ok, err)
	}

	if err := f.s.Rollover(ctx); err != nil {
		t.Fatalf("second Rollover = %v", err)
	}
	if refs, _ := f.ad.sent(); len(refs) != 2 {
		t.Fatalf("sends after repeat = %d, want 2", len(refs))
	}
}

func TestRolloverRetriesUntilNewItem(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.s.Rollover(ctx); err != nil {
		t.Fatalf("Rollover = %v", err)
	}
	f.clk.add(24 * time.Hour)
	if err := f.s.Rollover(ctx); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("Rollover with stale item = %v, want ErrNotPublished", err)
	}

	f.src.set(item("B", "2024-05-11"))
	if err := f.s.Rollover(ctx); err != nil {
		t.Fatalf("Rollover after release = %v", err)
	}
	last, err := f.s.lastRollover(ctx)
	if err != nil || last.Item.ID != "B" || last.Cycle != "2024-05-11" {
		t.Fatalf("rollover state = %+v, %v", last, err)
	}
}

func TestReactionsFeedRankings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, -100)

	if err := f.s.Rollover(ctx); err != nil {
		t.Fatalf("Rollover = %v", err)
	}
	refs, _ := f.ad.sent()
	ann := refs[0]

	reactions := []kit.Reaction{
		{Ref: ann, Symbol: "+++", FromID: 1, Added: true},
		{Ref: ann, Symbol: "+++", FromID: 2, Added: true},
		{Ref: ann, Symbol: "-", FromID: 3, Added: true},
		{Ref: ann, Symbol: "-", FromID: 3, Added: false},
		{Ref: ann, Symbol: "✅", FromID: 4, Added: true},
		{Ref: kit.MessageRef{ChatID: -100, MessageID: 999}, Symbol: "+", FromID: 5, Added: true},
	}
	for _, r := range reactions {
		if err := f.s.HandleReaction(ctx, r); err != nil {
			t.Fatalf("HandleReaction(%+v) = %v", r, err)
		}
	}
	cur, err := f.s.d.Ratings.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ItemID != "A" || cur.Counts[rating.PlusPlusPlus] != 2 || cur.Counts.Total() != 2 {
		t.Fatalf("tally = %+v, want A with two +++", cur)
	}

	f.clk.add(24 * time.Hour)
	f.src.set(item("B", "2024-05-11"))
	if err := f.s.Rollover(ctx); err != nil {
		t.Fatalf("Rollover = %v", err)
	}

	// a late reaction on A's announcement no longer counts
	if err := f.s.HandleReaction(ctx, kit.Reaction{Ref: ann, Symbol: "+", FromID: 6, Added: true}); err != nil {
		t.Fatalf("late HandleReaction = %v", err)
	}
	if cur, _ := f.s.d.Ratings.Current(ctx); cur.ItemID != "B" || cur.Counts.Total() != 0 {
		t.Fatalf("new tally = %+v", cur)
	}

	y, ok, err := f.s.d.Ratings.Yesterday(ctx)
	if err != nil || !ok || y.ItemID != "A" {
		t.Fatalf("Yesterday = %+v, %v, %v", y, ok, err)
	}
	r, err := f.s.d.Rankings.Load(ctx)
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if len(r.Monthly.Top) != 1 || r.Monthly.Top[0].ItemID != "A" || r.Monthly.Top[0].Name != item("A", "").DisplayName() || r.Monthly.Top[0].Votes != 2 {
		t.Fatalf("monthly = %+v", r.Monthly)
	}
	var yItem content.Item
	if ok, err := storage.Load(ctx, f.st, keyYesterdayItem, &yItem); err != nil || !ok || yItem.ID != "A" {
		t.Fatalf("yesterday item = %+v, %v, %v", yItem, ok, err)
	}
}

func TestRolloverResolvesBingoVotes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, -100)

	if _, err := f.s.d.Boards.Ensure(ctx, f.s.gen, -100, f.clk.now()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := f.s.d.Resolver.StartVote(ctx, -100, kit.ChatTarget{ChatID: -100}, 1, 7); err != nil {
		t.Fatalf("StartVote: %v", err)
	}
	if err := f.s.Rollover(ctx); err != nil {
		t.Fatalf("Rollover = %v", err)
	}
	b, _, err := f.s.d.Boards.Current(ctx, -100)
	if err != nil || !b.Cells[0].Checked || b.Cells[0].Vote != nil {
		t.Fatalf("cell 1 = %+v, %v", b.Cells[0], err)
	}
	if got := f.ad.lastText(); !strings.Contains(got, "Field 1 is checked") {
		t.Fatalf("resolution text = %q", got)
	}
}

func TestRolloverBingoRegeneratesSubscribedOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, -100)

	for _, g := range []int64{-100, -300} {
		if _, err := f.s.d.Boards.Ensure(ctx, f.s.gen, g, f.clk.now()); err != nil {
			t.Fatalf("Ensure(%d): %v", g, err)
		}
	}
	if err := f.s.RolloverBingo(ctx); err != nil {
		t.Fatalf("RolloverBingo = %v", err)
	}
	if _, ok, _ := f.s.d.Boards.Last(ctx, -100); !ok {
		t.Fatalf("subscribed chat has no archived board")
	}
	if _, ok, _ := f.s.d.Boards.Current(ctx, -300); ok {
		t.Fatalf("unsubscribed chat kept its board")
	}
}

func TestRemindPingsBoundRegionsAndDropsRevoked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, -100, -200, -300)

	for _, g := range []int64{-100, -200} {
		if _, err := f.s.d.Subs.SetRole(ctx, g, "europe", "@cotd"); err != nil {
			t.Fatalf("SetRole: %v", err)
		}
	}
	f.ad.revoked[-200] = true

	if err := f.s.Remind(ctx, "europe"); err != nil {
		t.Fatalf("Remind = %v", err)
	}
	if got := f.ad.lastText(); got != "⏰ Europe Cup of the Day starts soon! @cotd" {
		t.Fatalf("reminder = %q", got)
	}
	if _, ok, _ := f.s.d.Subs.Get(ctx, -200); ok {
		t.Fatalf("revoked subscription kept")
	}
	if _, ok, _ := f.s.d.Subs.Get(ctx, -300); !ok {
		t.Fatalf("unbound subscription removed")
	}
}

type countingOperator struct {
	mu    sync.Mutex
	texts []string
}

func (o *countingOperator) Notify(ctx context.Context, text string) error {
	o.mu.Lock()
	o.texts = append(o.texts, text)
	o.mu.Unlock()
	return nil
}

func TestRemindReportsUnexpectedErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	op := &countingOperator{}
	f.s.d.Operator = op
	f.subscribe(t, -100, -200)
	for _, g := range []int64{-100, -200} {
		if _, err := f.s.d.Subs.SetRole(ctx, g, "europe", "@cotd"); err != nil {
			t.Fatalf("SetRole: %v", err)
		}
	}
	f.ad.failing[-100] = errors.New("weird upstream failure")
	f.ad.failing[-200] = fmt.Errorf("%w: timeout", kit.ErrTransient)

	if err := f.s.Remind(ctx, "europe"); err != nil {
		t.Fatalf("Remind = %v", err)
	}
	if len(op.texts) != 1 || !strings.Contains(op.texts[0], "weird upstream failure") {
		t.Fatalf("operator notifications = %q, want one for the unknown error", op.texts)
	}
	for _, g := range []int64{-100, -200} {
		if _, ok, _ := f.s.d.Subs.Get(ctx, g); !ok {
			t.Fatalf("subscription %d removed after a non-permanent error", g)
		}
	}
}

type failingDeletes struct{ storage.Store }

func (failingDeletes) Delete(context.Context, string) error { return errors.New("disk full") }

func removedTotal(t *testing.T, m *metrics.Manager) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "totdbot_subscriptions_removed_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestRemindCountsOnlyCompletedRemovals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	m := metrics.NewManager()
	f.s.d.Metrics = m
	f.subscribe(t, -100)
	if _, err := f.s.d.Subs.SetRole(ctx, -100, "europe", "@cotd"); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	f.ad.revoked[-100] = true

	f.s.d.Subs = subscription.NewStore(failingDeletes{f.st})
	if err := f.s.Remind(ctx, "europe"); err != nil {
		t.Fatalf("Remind = %v", err)
	}
	if got := removedTotal(t, m); got != 0 {
		t.Fatalf("removed after failed delete = %v, want 0", got)
	}
	if _, ok, _ := f.s.d.Subs.Get(ctx, -100); !ok {
		t.Fatalf("subscription gone although delete failed")
	}

	f.s.d.Subs = subscription.NewStore(f.st)
	if err := f.s.Remind(ctx, "europe"); err != nil {
		t.Fatalf("Remind = %v", err)
	}
	if got := removedTotal(t, m); got != 1 {
		t.Fatalf("removed = %v, want 1", got)
	}
}

func request(f *fixture, chat int64, args ...string) *router.Request {
	return &router.Request{
		Chat:      kit.ChatTarget{ChatID: chat},
		FromID:    7,
		Args:      args,
		BoolFlags: map[string]bool{},
		Adapter:   f.ad,
		Logger:    logx.Nop(),
	}
}

func TestSubscriptionCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.s.cmdReminders(ctx, request(f, -100, "europe", "@x")); err != nil {
		t.Fatalf("reminders: %v", err)
	}
	if got := f.ad.lastText(); !strings.HasPrefix(got, "Unknown region") {
		t.Fatalf("reply = %q", got)
	}

	if err := f.s.cmdEnable(ctx, request(f, -100)); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if got := f.ad.lastText(); !strings.Contains(got, "post the TOTD every day") {
		t.Fatalf("enable reply = %q", got)
	}
	if _, ok, _ := f.s.d.Subs.Get(ctx, -100); !ok {
		t.Fatalf("chat not subscribed")
	}

	if err := f.s.cmdDisable(ctx, request(f, -100)); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if got := f.ad.lastText(); got != "Alright, I'll stop posting from now on." {
		t.Fatalf("disable reply = %q", got)
	}
	if err := f.s.cmdDisable(ctx, request(f, -100)); err != nil {
		t.Fatalf("second disable: %v", err)
	}
	if got := f.ad.lastText(); got != "This chat wasn't subscribed." {
		t.Fatalf("second disable reply = %q", got)
	}
}

func TestBingoVoteCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"x"}, "Usage: /bingo vote <1-25>"},
		{[]string{"26"}, "Pick a field between 1 and 25."},
		{[]string{"13"}, "That field is already checked."},
	}
	for _, tt := range tests {
		if err := f.s.cmdBingoVote(ctx, request(f, -100, tt.args...)); err != nil {
			t.Fatalf("bingo vote %v: %v", tt.args, err)
		}
		if got := f.ad.lastText(); got != tt.want {
			t.Fatalf("bingo vote %v reply = %q, want %q", tt.args, got, tt.want)
		}
	}

	if err := f.s.cmdBingoVote(ctx, request(f, -100, "1")); err != nil {
		t.Fatalf("bingo vote 1: %v", err)
	}
	b, _, _ := f.s.d.Boards.Current(ctx, -100)
	if b.Cells[0].Vote == nil {
		t.Fatalf("no vote opened on field 1")
	}
}

func TestTodayTracksAnnouncement(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.s.cmdToday(ctx, request(f, 55)); err != nil {
		t.Fatalf("today: %v", err)
	}
	refs, _ := f.ad.sent()
	if len(refs) != 1 {
		t.Fatalf("sends = %d, want 1", len(refs))
	}
	var tracked string
	if ok, _ := storage.Load(ctx, f.st, announceKey(refs[0]), &tracked); !ok || tracked != "A" {
		t.Fatalf("today post not tracked: %q", tracked)
	}
}

func TestClockAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		h, m int
		d    time.Duration
		want string
	}{
		{19, 0, 0, "19:00:00"},
		{19, 0, 10 * time.Second, "19:00:10"},
		{23, 55, 10 * time.Minute, "00:05:00"},
	}
	for _, tt := range tests {
		if got := clockAfter(tt.h, tt.m, tt.d); got != tt.want {
			t.Fatalf("clockAfter(%d, %d, %v) = %q, want %q", tt.h, tt.m, tt.d, got, tt.want)
		}
	}
}
