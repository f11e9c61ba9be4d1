package totd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"totdbot/internal/bingo"
	"totdbot/internal/broadcast"
	"totdbot/internal/cache"
	"totdbot/internal/content"
	"totdbot/internal/storage"
	"totdbot/internal/subscription"
	"totdbot/internal/task/engine"
	"totdbot/internal/task/scheduler"
	"totdbot/internal/transport/telegram/router"
	logx "totdbot/pkg/logx"
)

const (
	msgNoItem      = "I can't reach the track data right now. Try again in a few minutes."
	msgNotEnabled  = "This chat isn't subscribed. An admin can turn the daily post on with /enable."
	msgRolloverRun = "A rollover is already running."
)

// Commands returns the chat commands served by the session.
func (s *Session) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "today",
			Aliases:     []string{"totd"},
			Description: "post today's track with rating buttons",
			Timeout:     30 * time.Second,
			Handle:      s.cmdToday,
		},
		{
			Route:       "enable",
			Description: "post the track of the day in this chat",
			Access:      router.AccessChatAdmin,
			Handle:      s.cmdEnable,
		},
		{
			Route:       "disable",
			Description: "stop the daily post in this chat",
			Access:      router.AccessChatAdmin,
			Handle:      s.cmdDisable,
		},
		{
			Route:       "ratings",
			Description: "community ratings of today's track",
			Usage:       "/ratings [yesterday]",
			Handle:      s.cmdRatings,
		},
		{
			Route:       "leaderboard",
			Aliases:     []string{"lb"},
			Description: "top 10 and the top 100/1k/10k times",
			Usage:       "/leaderboard [-f]",
			Timeout:     30 * time.Second,
			Handle:      s.cmdLeaderboard,
		},
		{
			Route:       "rankings",
			Description: "best and worst rated tracks",
			Handle:      s.cmdRankings,
		},
		{
			Route:       "bingo",
			Description: "this week's bingo board",
			Handle:      s.cmdBingo,
		},
		{
			Route:       "bingo last",
			Description: "last week's bingo board",
			Handle:      s.cmdBingoLast,
		},
		{
			Route:       "bingo vote",
			Aliases:     []string{"bingo_vote", "bv"},
			Description: "vote on checking a bingo field",
			Usage:       "/bingo vote <1-25>",
			Handle:      s.cmdBingoVote,
		},
		{
			Route:       "reminders",
			Description: "ping a mention before a Cup of the Day",
			Usage:       "/reminders <region> <mention...> | /reminders <region> off",
			Access:      router.AccessChatAdmin,
			Handle:      s.cmdReminders,
		},
		{
			Route:       "debug rollover",
			Description: "run the rollover now",
			Access:      router.AccessOwnerOnly,
			Handle:      s.cmdDebugRollover,
		},
		{
			Route:       "debug bingo",
			Description: "regenerate every bingo board now",
			Access:      router.AccessOwnerOnly,
			Handle:      s.cmdDebugBingo,
		},
		{
			Route:       "debug status",
			Description: "rollover, distribution and schedule status",
			Access:      router.AccessOwnerOnly,
			Handle:      s.cmdDebugStatus,
		},
	}
}

// OnError is the router error handler: users get MsgOops, the operator the details.
func (s *Session) OnError(ctx context.Context, req *router.Request, err error) {
	if req == nil {
		s.oops(ctx, "command failed", err)
		return
	}
	s.oops(ctx, "command "+req.Command+" failed", err)
	if rerr := req.ReplyText(ctx, MsgOops); rerr != nil {
		req.Logger.Debug("oops reply failed", logx.Err(rerr))
	}
}

func (s *Session) cmdToday(ctx context.Context, req *router.Request) error {
	it, err := s.Item(ctx, false)
	if errors.Is(err, cache.ErrDataUnavailable) {
		return req.ReplyText(ctx, msgNoItem)
	}
	if err != nil {
		return err
	}
	msg, err := announcement(it)
	if err != nil {
		return err
	}
	sent, err := s.d.Adapter.Send(ctx, req.Chat, msg)
	if err != nil {
		return err
	}
	s.trackAnnouncement(ctx, sent.Ref, it.ID)
	return nil
}

func (s *Session) cmdEnable(ctx context.Context, req *router.Request) error {
	if _, ok, err := s.d.Subs.Get(ctx, req.Chat.ChatID); err != nil {
		return err
	} else if ok {
		return req.ReplyText(ctx, "This chat is already subscribed.")
	}
	sub := subscription.Subscription{
		GroupID:   req.Chat.ChatID,
		Target:    req.Chat,
		CreatedAt: s.now(),
		CreatedBy: req.FromID,
	}
	if err := s.d.Subs.Put(ctx, sub); err != nil {
		return err
	}
	req.Logger.Info("chat subscribed")
	return req.ReplyText(ctx, "You got it, I'll post the TOTD every day just after it comes out.")
}

func (s *Session) cmdDisable(ctx context.Context, req *router.Request) error {
	if _, ok, err := s.d.Subs.Get(ctx, req.Chat.ChatID); err != nil {
		return err
	} else if !ok {
		return req.ReplyText(ctx, "This chat wasn't subscribed.")
	}
	if err := s.d.Subs.Delete(ctx, req.Chat.ChatID); err != nil {
		return err
	}
	req.Logger.Info("chat unsubscribed")
	return req.ReplyText(ctx, "Alright, I'll stop posting from now on.")
}

func (s *Session) cmdRatings(ctx context.Context, req *router.Request) error {
	yesterday := len(req.Args) > 0 && strings.EqualFold(req.Args[0], "yesterday")
	if !yesterday {
		rec, err := s.d.Ratings.Current(ctx)
		if err != nil {
			return err
		}
		var name string
		if it, err := s.Item(ctx, false); err == nil && it.ID == rec.ItemID {
			name = it.DisplayName() + " by " + it.DisplayAuthor()
		}
		return req.Reply(ctx, ratingsMessage(rec, name, false))
	}

	rec, ok, err := s.d.Ratings.Yesterday(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return req.ReplyText(ctx, "I don't have yesterday's ratings yet.")
	}
	var it content.Item
	var name string
	if found, err := storage.Load(ctx, s.d.Store, keyYesterdayItem, &it); err == nil && found && it.ID == rec.ItemID {
		name = it.DisplayName() + " by " + it.DisplayAuthor()
	}
	return req.Reply(ctx, ratingsMessage(rec, name, true))
}

func (s *Session) cmdLeaderboard(ctx context.Context, req *router.Request) error {
	force := req.BoolFlags["f"] || req.BoolFlags["force"]
	it, lb, err := s.Leaderboard(ctx, force)
	if errors.Is(err, cache.ErrDataUnavailable) {
		if it.ID != "" {
			return req.ReplyText(ctx, "Nobody has driven today's track yet.")
		}
		return req.ReplyText(ctx, msgNoItem)
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, leaderboardMessage(it, lb))
}

func (s *Session) cmdRankings(ctx context.Context, req *router.Request) error {
	r, err := s.d.Rankings.Load(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, rankingsMessage(r))
}

func (s *Session) cmdBingo(ctx context.Context, req *router.Request) error {
	b, err := s.d.Boards.Ensure(ctx, s.gen, req.Chat.ChatID, s.now())
	if err != nil {
		return err
	}
	return req.Reply(ctx, boardMessage(b, false))
}

func (s *Session) cmdBingoLast(ctx context.Context, req *router.Request) error {
	b, ok, err := s.d.Boards.Last(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		return req.ReplyText(ctx, "There was no bingo board here last week.")
	}
	return req.Reply(ctx, boardMessage(b, true))
}

func (s *Session) cmdBingoVote(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.ReplyText(ctx, "Usage: /bingo vote <1-25>")
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return req.ReplyText(ctx, "Usage: /bingo vote <1-25>")
	}
	if _, err := s.d.Boards.Ensure(ctx, s.gen, req.Chat.ChatID, s.now()); err != nil {
		return err
	}
	_, err = s.d.Resolver.StartVote(ctx, req.Chat.ChatID, req.Chat, n, req.FromID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bingo.ErrInvalidCell):
		return req.ReplyText(ctx, fmt.Sprintf("Pick a field between 1 and %d.", bingo.CellCount))
	case errors.Is(err, bingo.ErrCellChecked):
		return req.ReplyText(ctx, "That field is already checked.")
	case errors.Is(err, bingo.ErrVoteActive):
		return req.ReplyText(ctx, "There's already a vote running for that field.")
	case errors.Is(err, bingo.ErrNoBoard):
		return req.ReplyText(ctx, "There's no bingo board here yet, try /bingo first.")
	default:
		return err
	}
}

func (s *Session) cmdReminders(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return req.ReplyText(ctx, "Usage: /reminders <region> <mention...> or /reminders <region> off\nRegions: "+strings.Join(s.Regions(), ", "))
	}
	region := strings.ToLower(req.Args[0])
	known := false
	for _, r := range s.Regions() {
		known = known || r == region
	}
	if !known {
		return req.ReplyText(ctx, "Unknown region. Pick one of: "+strings.Join(s.Regions(), ", "))
	}

	mention := strings.Join(req.Args[1:], " ")
	if strings.EqualFold(mention, "off") {
		mention = ""
	}
	_, err := s.d.Subs.SetRole(ctx, req.Chat.ChatID, region, mention)
	if errors.Is(err, subscription.ErrNotSubscribed) {
		return req.ReplyText(ctx, msgNotEnabled)
	}
	if err != nil {
		return err
	}
	if mention == "" {
		return req.ReplyText(ctx, "Okay, no more "+region+" reminders here.")
	}
	return req.ReplyText(ctx, "Got it, I'll ping "+mention+" before every "+region+" Cup of the Day.")
}

// trigger runs a registered schedule now, sharing its overlap guard.
func (s *Session) trigger(ctx context.Context, req *router.Request, name, started string) error {
	if s.d.Scheduler == nil {
		return errors.New("scheduler unavailable")
	}
	err := s.d.Scheduler.Trigger(name)
	switch {
	case errors.Is(err, engine.ErrOverlapSkip):
		return req.ReplyText(ctx, msgRolloverRun)
	case errors.Is(err, scheduler.ErrUnknownSchedule):
		return req.ReplyText(ctx, name+" is not scheduled.")
	case err != nil:
		return err
	}
	req.Logger.Info("manual run requested", logx.String("task", name))
	return req.ReplyText(ctx, started)
}

func (s *Session) cmdDebugRollover(ctx context.Context, req *router.Request) error {
	return s.trigger(ctx, req, RolloverTask, "Rollover started.")
}

func (s *Session) cmdDebugBingo(ctx context.Context, req *router.Request) error {
	return s.trigger(ctx, req, BingoTask, "Bingo regeneration started.")
}

func (s *Session) cmdDebugStatus(ctx context.Context, req *router.Request) error {
	last, err := s.lastRollover(ctx)
	if err != nil {
		return err
	}
	var rep *broadcast.Report
	if s.d.Broadcast != nil {
		if r, ok := s.d.Broadcast.Last(); ok {
			rep = &r
		}
	}
	var sched strings.Builder
	if s.d.Scheduler != nil {
		snap := s.d.Scheduler.Snapshot()
		fmt.Fprintf(&sched, "tz %s\n", snap.Timezone)
		for _, it := range snap.Schedules {
			state := ""
			if it.Running {
				state = " (running)"
			}
			fmt.Fprintf(&sched, "%-20s next %s%s\n", it.Name, it.Next.In(s.cfg.Location).Format("Mon 02 Jan 15:04"), state)
		}
	}
	return req.Reply(ctx, statusMessage(last, rep, sched.String()))
}
