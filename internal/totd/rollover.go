package totd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"totdbot/internal/bingo"
	"totdbot/internal/content"
	"totdbot/internal/eventbus"
	"totdbot/internal/ranking"
	"totdbot/internal/storage"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

// ErrNotPublished means the source still serves the previous cycle's item.
// The rollover task returns it so the engine retries with backoff.
var ErrNotPublished = errors.New("totd: new item not published yet")

// rolloverState is persisted after every completed rollover.
type rolloverState struct {
	Item  content.Item
	Cycle string
	At    time.Time
}

func (s *Session) lastRollover(ctx context.Context) (rolloverState, error) {
	var st rolloverState
	_, err := storage.Load(ctx, s.d.Store, keyLastRollover, &st)
	return st, err
}

// Rollover moves the bot to the newly released item: bingo votes are resolved,
// the outgoing tally is archived into the rankings and the announcement goes
// out to every subscribed chat. A rollover for an item that was already
// announced is a no-op.
func (s *Session) Rollover(ctx context.Context) (err error) {
	start := s.now()
	result := "ok"
	defer func() {
		if err != nil && result == "ok" {
			result = "error"
		}
		s.d.Metrics.Rollover(result, s.now().Sub(start))
	}()

	cycle := s.cycle()
	last, err := s.lastRollover(ctx)
	if err != nil {
		return fmt.Errorf("load rollover state: %w", err)
	}

	it, err := s.Item(ctx, true)
	if err != nil {
		return fmt.Errorf("fetch current item: %w", err)
	}
	if it.Day == "" {
		it.Day = cycle
	}
	log := s.log.With(logx.String("item", it.ID), logx.String("cycle", cycle))

	if last.Item.ID == it.ID {
		if last.Cycle == cycle {
			result = "skipped"
			log.Info("rollover already done for this item")
			return nil
		}
		result = "retry"
		return fmt.Errorf("%w (still %s)", ErrNotPublished, it.ID)
	}

	if s.d.Resolver != nil {
		res, rerr := s.d.Resolver.ResolveAll(ctx)
		if rerr != nil {
			log.Warn("bingo resolution incomplete", logx.Err(rerr))
		}
		s.announceResolutions(ctx, res)
	}

	if err := s.archive(ctx, last.Item, it); err != nil {
		return err
	}

	if last.Item.ID != "" {
		if err := storage.Save(ctx, s.d.Store, keyYesterdayItem, last.Item); err != nil {
			return fmt.Errorf("save yesterday's item: %w", err)
		}
	}

	msg, err := announcement(it)
	if err != nil {
		return fmt.Errorf("build announcement: %w", err)
	}
	if s.d.Subs != nil && s.d.Broadcast != nil {
		subs, err := s.d.Subs.List(ctx)
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		rep := s.d.Broadcast.Distribute(ctx, msg, subs)
		for _, d := range rep.Refs {
			s.trackAnnouncement(ctx, d.Ref, it.ID)
		}
		log.Info("announcement distributed",
			logx.Int("sent", rep.Sent), logx.Int("total", rep.Total), logx.Int("failed", rep.Failed()))
	}

	state := rolloverState{Item: it, Cycle: cycle, At: s.now()}
	if err := storage.Save(ctx, s.d.Store, keyLastRollover, state); err != nil {
		return fmt.Errorf("save rollover state: %w", err)
	}
	s.publish(eventbus.Rollover, state)
	log.Info("rollover complete", logx.Duration("took", s.now().Sub(start)))
	return nil
}

// archive closes the outgoing tally and feeds it into the rankings. It is
// skipped when the current tally already belongs to the new item, so a retried
// rollover never archives twice.
func (s *Session) archive(ctx context.Context, outgoing, incoming content.Item) error {
	if s.d.Ratings == nil {
		return nil
	}
	s.tallyMu.Lock()
	defer s.tallyMu.Unlock()
	cur, err := s.d.Ratings.Current(ctx)
	if err != nil {
		return fmt.Errorf("load tally: %w", err)
	}
	if cur.ItemID == incoming.ID {
		return nil
	}
	old, err := s.d.Ratings.Archive(ctx, incoming.ID)
	if err != nil {
		return fmt.Errorf("archive tally: %w", err)
	}
	if s.d.Rankings == nil || old.ItemID == "" {
		return nil
	}

	stats := old.Stats()
	e := ranking.Entry{ItemID: old.ItemID, Name: old.ItemID, Score: stats.AverageKarma.Value, Votes: stats.TotalVotes}
	if outgoing.ID == old.ItemID {
		e.Name = outgoing.DisplayName()
		e.Author = outgoing.DisplayAuthor()
		e.Day = outgoing.Day
	}
	if _, err := s.d.Rankings.Record(ctx, e, s.now()); err != nil {
		return fmt.Errorf("record ranking: %w", err)
	}
	return nil
}

func (s *Session) announceResolutions(ctx context.Context, res []bingo.Resolution) {
	for _, r := range res {
		if r.Outcome == bingo.Unchanged {
			continue
		}
		s.publish(eventbus.BingoResolved, r)
		if s.d.Subs == nil {
			continue
		}
		sub, ok, err := s.d.Subs.Get(ctx, r.GroupID)
		if err != nil || !ok {
			continue
		}
		if _, err := resolutionMessage(r).Send(ctx, s.d.Adapter, sub.Target); err != nil {
			s.log.Warn("bingo result not delivered", logx.Int64("group", r.GroupID), logx.Int("cell", r.Cell), logx.Err(err))
		}
	}
}

// RolloverBingo resolves pending votes, then gives every subscribed chat a new
// board. Boards of chats that unsubscribed are dropped.
func (s *Session) RolloverBingo(ctx context.Context) error {
	if s.d.Boards == nil || s.d.Subs == nil {
		return nil
	}
	if s.d.Resolver != nil {
		res, err := s.d.Resolver.ResolveAll(ctx)
		if err != nil {
			s.log.Warn("bingo resolution incomplete", logx.Err(err))
		}
		s.announceResolutions(ctx, res)
	}

	subs, err := s.d.Subs.List(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	keep := make(map[int64]bool, len(subs))
	var errs []error
	for _, sub := range subs {
		keep[sub.GroupID] = true
		if _, err := s.d.Boards.Regenerate(ctx, s.gen, sub.GroupID, now); err != nil {
			errs = append(errs, fmt.Errorf("group %d: %w", sub.GroupID, err))
		}
	}

	groups, err := s.d.Boards.Groups(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, g := range groups {
		if keep[g] {
			continue
		}
		if err := s.d.Boards.Delete(ctx, g); err != nil {
			errs = append(errs, fmt.Errorf("group %d: %w", g, err))
		}
	}

	s.publish(eventbus.BingoRolled, len(subs))
	s.log.Info("bingo boards regenerated", logx.Int("groups", len(subs)), logx.Int("errors", len(errs)))
	return errors.Join(errs...)
}

// Remind pings every chat with a mention bound for region.
func (s *Session) Remind(ctx context.Context, region string) error {
	if s.d.Subs == nil {
		return nil
	}
	subs, err := s.d.Subs.List(ctx)
	if err != nil {
		return err
	}
	sent := 0
	for _, sub := range subs {
		mention := sub.Roles[region]
		if mention == "" {
			continue
		}
		_, err := s.d.Adapter.SendText(ctx, sub.Target, reminderText(region, mention), &kit.SendOptions{DisablePreview: true})
		if err == nil {
			sent++
			continue
		}
		switch kit.Classify(err) {
		case kit.ClassPermanent:
			s.log.Info("chat revoked access; removing subscription", logx.Int64("group", sub.GroupID))
			if err := s.d.Subs.Delete(ctx, sub.GroupID); err != nil {
				s.log.Warn("subscription removal failed", logx.Int64("group", sub.GroupID), logx.Err(err))
			} else {
				s.d.Metrics.SubscriptionRemoved()
			}
		case kit.ClassTransient:
			s.log.Warn("reminder not delivered", logx.Int64("group", sub.GroupID), logx.Err(err))
		default:
			s.oops(ctx, fmt.Sprintf("reminder for %s in group %d failed", region, sub.GroupID), err)
		}
	}
	s.log.Info("reminders sent", logx.String("region", region), logx.Int("sent", sent))
	return nil
}
