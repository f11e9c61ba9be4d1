package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"totdbot/internal/subscription"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

const maxFailuresKept = 200

// Distribute sends msg to every subscription and blocks until all sends finished.
//
// Leading sends run synchronously until one succeeds, so the image handle it
// returns is written into msg before anyone else receives it. The rest are
// issued without waiting on each other; after every BatchSize sends the
// distributor pauses for BatchPause. One destination never aborts the others.
func (s *Service) Distribute(ctx context.Context, msg *kit.OutMessage, subs []subscription.Subscription) Report {
	cfg := s.config()
	r := &Report{ID: uuid.NewString(), Total: len(subs), StartedAt: time.Now()}
	if msg != nil {
		r.Name = msg.Title
	}
	log := s.log.With(logx.String("run", r.ID))

	if len(subs) == 0 {
		log.Info("no subscriptions; nothing to distribute")
		r.DoneAt = time.Now()
		s.remember(r)
		return copyReport(r)
	}
	if err := msg.Validate(); err != nil {
		log.Error("refusing to distribute invalid message", logx.Err(err))
		r.Unknown = len(subs)
		r.DoneAt = time.Now()
		s.remember(r)
		return copyReport(r)
	}
	s.remember(r)
	log.Info("distribution started", logx.Int("total", len(subs)), logx.Int("batch", cfg.BatchSize))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(sub subscription.Subscription, sent kit.Sent, err error) {
		mu.Lock()
		defer mu.Unlock()
		s.recordLocked(ctx, log, r, sub, sent, err)
	}

	headDone := false
	for i, sub := range subs {
		if ctx.Err() != nil {
			log.Warn("distribution cancelled", logx.Int("remaining", len(subs)-i), logx.Err(ctx.Err()))
			mu.Lock()
			for _, rest := range subs[i:] {
				r.Transient++
				if len(r.Failures) < maxFailuresKept {
					r.Failures = append(r.Failures, rest.GroupID)
				}
			}
			mu.Unlock()
			break
		}

		if !headDone {
			// Synchronous until the first success hands back the image handle.
			sent, err := s.sendOne(ctx, msg, sub)
			if err == nil {
				msg.SetImageFileID(sent.ImageFileID)
				headDone = true
			}
			record(sub, sent, err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sent, err := s.sendOne(ctx, msg, sub)
				record(sub, sent, err)
			}()
		}

		if n := i + 1; n < len(subs) && n%cfg.BatchSize == 0 {
			mu.Lock()
			r.Pauses++
			mu.Unlock()
			s.metrics.BroadcastPause()
			log.Debug("batch pause", logx.Int("issued", n), logx.Duration("pause", cfg.BatchPause))
			_ = s.sleep(ctx, cfg.BatchPause)
		}
	}
	wg.Wait()

	mu.Lock()
	r.DoneAt = time.Now()
	final := copyReport(r)
	mu.Unlock()

	s.metrics.BroadcastFinished(final.Total-final.Removed, final.DoneAt.Sub(final.StartedAt))
	fields := []logx.Field{
		logx.Int("total", final.Total),
		logx.Int("sent", final.Sent),
		logx.Int("removed", final.Removed),
		logx.Int("transient", final.Transient),
		logx.Int("unknown", final.Unknown),
		logx.Int("pauses", final.Pauses),
		logx.Duration("dur", final.DoneAt.Sub(final.StartedAt)),
	}
	if final.Failed() > 0 {
		log.Warn("distribution finished with failures", fields...)
	} else {
		log.Info("distribution finished", fields...)
	}
	return final
}

func (s *Service) sendOne(ctx context.Context, msg *kit.OutMessage, sub subscription.Subscription) (sent kit.Sent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic in broadcast send", logx.Int64("group", sub.GroupID), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	to := sub.Target
	if to.ChatID == 0 {
		to.ChatID = sub.GroupID
	}
	return s.sender.Send(ctx, to, msg)
}

func (s *Service) recordLocked(ctx context.Context, log logx.Logger, r *Report, sub subscription.Subscription, sent kit.Sent, err error) {
	if err == nil {
		r.Sent++
		r.Refs = append(r.Refs, Delivery{GroupID: sub.GroupID, Ref: sent.Ref})
		s.metrics.BroadcastSend("sent")
		return
	}
	if len(r.Failures) < maxFailuresKept {
		r.Failures = append(r.Failures, sub.GroupID)
	}

	class := kit.Classify(err)
	s.metrics.BroadcastSend(class.String())
	switch class {
	case kit.ClassPermanent:
		r.Removed++
		if derr := s.subs.Delete(ctx, sub.GroupID); derr != nil {
			log.Warn("failed to remove revoked subscription", logx.Int64("group", sub.GroupID), logx.Err(derr))
		} else {
			s.metrics.SubscriptionRemoved()
		}
		log.Info("subscription removed after permanent failure", logx.Int64("group", sub.GroupID), logx.Err(err))
	case kit.ClassTransient:
		r.Transient++
		log.Warn("send abandoned after transient failure", logx.Int64("group", sub.GroupID), logx.Err(err))
	default:
		r.Unknown++
		log.Error("unexpected send failure", logx.Int64("group", sub.GroupID), logx.Err(err))
		if s.operator != nil {
			text := fmt.Sprintf("Unexpected error while sending %q to %d: %v", r.Name, sub.GroupID, err)
			if nerr := s.operator.Notify(ctx, text); nerr != nil {
				log.Debug("operator notification failed", logx.Err(nerr))
			}
		}
	}
}
