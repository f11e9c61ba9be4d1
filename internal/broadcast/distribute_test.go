package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"totdbot/internal/subscription"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	fail     map[int64]error
	seenFile map[int64]string
	calls    int
	fileID   string
}

func newFakeSender() *fakeSender {
	return &fakeSender{fail: map[int64]error{}, seenFile: map[int64]string{}, fileID: "photo-file-1"}
}

func (f *fakeSender) Send(ctx context.Context, to kit.ChatTarget, msg *kit.OutMessage) (kit.Sent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if msg.Image != nil {
		f.seenFile[to.ChatID] = msg.Image.FileID
	}
	if err := f.fail[to.ChatID]; err != nil {
		return kit.Sent{}, err
	}
	sent := kit.Sent{Ref: kit.MessageRef{ChatID: to.ChatID, MessageID: int(to.ChatID) * 10}}
	if msg.Image != nil && msg.Image.FileID == "" {
		sent.ImageFileID = f.fileID
	}
	return sent, nil
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []int64
}

func (f *fakeRemover) Delete(ctx context.Context, groupID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, groupID)
	return nil
}

type fakeOperator struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeOperator) Notify(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

type pauseCounter struct {
	mu sync.Mutex
	n  int
}

func (p *pauseCounter) sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
	return nil
}

func subs(n int) []subscription.Subscription {
	out := make([]subscription.Subscription, n)
	for i := range out {
		out[i] = subscription.Subscription{GroupID: int64(i + 1)}
	}
	return out
}

func announcement(t *testing.T) *kit.OutMessage {
	t.Helper()
	m, err := kit.NewOutMessage("Track of the Day", kit.WithImageURL("https://example.org/thumb.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDistributeBatchesAndRemovesRevoked(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	sender.fail[10] = fmt.Errorf("forbidden: %w", kit.ErrAccessRevoked)
	remover := &fakeRemover{}
	pauses := &pauseCounter{}

	svc := New(Config{BatchSize: 25, BatchPause: time.Second}, sender, remover, logx.Nop(), WithSleep(pauses.sleep))
	rep := svc.Distribute(context.Background(), announcement(t), subs(60))

	if pauses.n != 2 || rep.Pauses != 2 {
		t.Fatalf("pauses = %d (report %d), want 2", pauses.n, rep.Pauses)
	}
	if rep.Sent != 59 || len(rep.Refs) != 59 {
		t.Fatalf("sent = %d refs = %d, want 59", rep.Sent, len(rep.Refs))
	}
	if rep.Removed != 1 || len(remover.removed) != 1 || remover.removed[0] != 10 {
		t.Fatalf("removed = %d %v, want [10]", rep.Removed, remover.removed)
	}
	if sender.calls != 60 {
		t.Fatalf("calls = %d, want 60", sender.calls)
	}

	last, ok := svc.Last()
	if !ok || last.ID != rep.ID || last.DoneAt.IsZero() {
		t.Fatalf("Last() = %+v, %v", last, ok)
	}
}

func TestDistributeReusesUploadedImage(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	sender.fail[1] = fmt.Errorf("bad gateway: %w", kit.ErrTransient)
	svc := New(Config{BatchSize: 30}, sender, &fakeRemover{}, logx.Nop(), WithSleep((&pauseCounter{}).sleep))

	msg := announcement(t)
	rep := svc.Distribute(context.Background(), msg, subs(40))

	if msg.Image.FileID != "photo-file-1" {
		t.Fatalf("FileID = %q, want write-back", msg.Image.FileID)
	}
	// 1 failed transiently, 2 uploaded, everyone after reused the handle
	if sender.seenFile[2] != "" {
		t.Fatalf("second destination saw %q, want upload", sender.seenFile[2])
	}
	for id := int64(3); id <= 40; id++ {
		if sender.seenFile[id] != "photo-file-1" {
			t.Fatalf("destination %d saw %q", id, sender.seenFile[id])
		}
	}
	if rep.Transient != 1 || rep.Sent != 39 || rep.Removed != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestDistributeUnknownErrorNotifiesOperator(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	sender.fail[3] = errors.New("weird platform answer")
	op := &fakeOperator{}
	remover := &fakeRemover{}
	svc := New(Config{BatchSize: 25}, sender, remover, logx.Nop(), WithOperator(op), WithSleep((&pauseCounter{}).sleep))

	rep := svc.Distribute(context.Background(), announcement(t), subs(5))
	if rep.Unknown != 1 || rep.Sent != 4 {
		t.Fatalf("report = %+v", rep)
	}
	if len(op.texts) != 1 {
		t.Fatalf("operator messages = %v", op.texts)
	}
	if len(remover.removed) != 0 {
		t.Fatal("unknown error removed a subscription")
	}
}

func TestDistributeEmptyIsNoop(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	svc := New(Config{}, sender, &fakeRemover{}, logx.Nop())
	rep := svc.Distribute(context.Background(), announcement(t), nil)
	if rep.Total != 0 || sender.calls != 0 {
		t.Fatalf("report = %+v calls = %d", rep, sender.calls)
	}
}

func TestDistributeCancelled(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	ctx, cancel := context.WithCancel(context.Background())
	svc := New(Config{BatchSize: 5}, sender, &fakeRemover{}, logx.Nop(), WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	rep := svc.Distribute(ctx, announcement(t), subs(12))
	if rep.Sent != 5 || rep.Transient != 7 {
		t.Fatalf("report = %+v, want 5 sent and 7 abandoned", rep)
	}
}
