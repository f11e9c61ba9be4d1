// Package totd wires the daily item cycle together: rollover, announcements,
// rating reactions, weekly bingo, reminders and the chat commands.
package totd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"totdbot/internal/bingo"
	"totdbot/internal/broadcast"
	"totdbot/internal/cache"
	"totdbot/internal/content"
	"totdbot/internal/eventbus"
	"totdbot/internal/metrics"
	"totdbot/internal/ranking"
	"totdbot/internal/rating"
	"totdbot/internal/storage"
	"totdbot/internal/subscription"
	"totdbot/internal/task/scheduler"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

// MsgOops is the only text users see for unexpected failures.
const MsgOops = "Oops, something went wrong here - please let the operator know that didn't work."

const (
	itemKey        = "item"
	leaderboardKey = "leaderboard"

	keyYesterdayItem = "item/yesterday"
	keyLastRollover  = "rollover/last"
	announcePrefix   = "announce/"

	RolloverTask = "totd.rollover"
	BingoTask    = "totd.bingo"
	remindPrefix = "totd.remind."
)

// Reminder pings region mentions at At ("HH:MM") every day.
type Reminder struct {
	Region string
	At     string
}

type Config struct {
	Location *time.Location
	// Boundary is the local "HH:MM" a new item is released.
	Boundary      string
	RolloverDelay time.Duration
	BingoWeekday  time.Weekday
	Reminders     []Reminder

	ItemTTL         time.Duration
	LeaderboardTTL  time.Duration
	RolloverTimeout time.Duration
	BingoPool       []string
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Boundary == "" {
		c.Boundary = "19:00"
	}
	if c.ItemTTL <= 0 {
		c.ItemTTL = 10 * time.Minute
	}
	if c.LeaderboardTTL <= 0 {
		c.LeaderboardTTL = 5 * time.Minute
	}
	if c.RolloverTimeout <= 0 {
		c.RolloverTimeout = 10 * time.Minute
	}
	return c
}

// Deps are the collaborators a Session drives. Scheduler, Bus, Metrics and
// Operator may be nil.
type Deps struct {
	Store     storage.Store
	Source    content.Source
	Cache     *cache.Coordinator
	Broadcast *broadcast.Service
	Subs      *subscription.Store
	Ratings   *rating.Store
	Rankings  *ranking.Maintainer
	Boards    *bingo.Store
	Resolver  *bingo.Resolver
	Adapter   kit.Adapter
	Operator  kit.OperatorChannel
	Scheduler *scheduler.Service
	Bus       eventbus.Bus
	Metrics   *metrics.Manager
	Log       logx.Logger
	Now       func() time.Time
}

// Session is built once at startup and shared by commands and scheduled jobs.
type Session struct {
	cfg          Config
	d            Deps
	log          logx.Logger
	now          func() time.Time
	boundaryHour int
	boundaryMin  int
	gen          bingo.Generator

	// tallyMu serializes read-modify-write cycles on the rating tally.
	tallyMu sync.Mutex
}

func New(cfg Config, d Deps) (*Session, error) {
	cfg = cfg.withDefaults()
	h, m, err := parseHHMM(cfg.Boundary)
	if err != nil {
		return nil, fmt.Errorf("totd boundary: %w", err)
	}
	if d.Store == nil || d.Source == nil || d.Cache == nil || d.Adapter == nil {
		return nil, errors.New("totd: store, source, cache and adapter are required")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Session{
		cfg:          cfg,
		d:            d,
		log:          d.Log.With(logx.String("comp", "totd")),
		now:          d.Now,
		boundaryHour: h,
		boundaryMin:  m,
		gen:          bingo.Generator{Pool: cfg.BingoPool, Location: cfg.Location, BoundaryHour: h},
	}
	d.Cache.Follow(itemKey, cache.Follower{Key: leaderboardKey, TTL: cfg.LeaderboardTTL, Fetch: s.fetchLeaderboardFor})
	return s, nil
}

func parseHHMM(v string) (int, int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// cycle is the date of the cycle now falls in.
func (s *Session) cycle() string {
	return content.CycleDate(s.now(), s.cfg.Location, s.boundaryHour).Format(time.DateOnly)
}

// Item returns the current item, refreshing the cache when stale or forced.
func (s *Session) Item(ctx context.Context, force bool) (content.Item, error) {
	b, err := s.d.Cache.GetOrRefresh(ctx, itemKey, s.fetchItem, s.cfg.ItemTTL, force)
	if err != nil {
		return content.Item{}, err
	}
	var it content.Item
	if err := content.Decode(b, &it); err != nil {
		return content.Item{}, fmt.Errorf("decode cached item: %w", err)
	}
	return it, nil
}

func (s *Session) fetchItem(ctx context.Context) ([]byte, error) {
	it, err := s.d.Source.CurrentItem(ctx)
	if errors.Is(err, content.ErrNoCurrentItem) {
		return nil, fmt.Errorf("%w: %w", cache.ErrDataUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return content.Encode(it)
}

func (s *Session) fetchLeaderboardFor(ctx context.Context, itemPayload []byte) ([]byte, error) {
	var it content.Item
	if err := content.Decode(itemPayload, &it); err != nil {
		return nil, err
	}
	lb, err := s.d.Source.Leaderboard(ctx, it)
	if errors.Is(err, content.ErrNoRecords) {
		return nil, fmt.Errorf("%w: %w", cache.ErrDataUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return content.Encode(lb)
}

// Leaderboard returns the current item's leaderboard. A cached board of an
// older item is refreshed.
func (s *Session) Leaderboard(ctx context.Context, force bool) (content.Item, content.Leaderboard, error) {
	it, err := s.Item(ctx, false)
	if err != nil {
		return content.Item{}, content.Leaderboard{}, err
	}
	fetch := func(ctx context.Context) ([]byte, error) {
		b, err := content.Encode(it)
		if err != nil {
			return nil, err
		}
		return s.fetchLeaderboardFor(ctx, b)
	}

	var lb content.Leaderboard
	for attempt := 0; attempt < 2; attempt++ {
		b, err := s.d.Cache.GetOrRefresh(ctx, leaderboardKey, fetch, s.cfg.LeaderboardTTL, force)
		if err != nil {
			return it, content.Leaderboard{}, err
		}
		if err := content.Decode(b, &lb); err != nil {
			return it, content.Leaderboard{}, fmt.Errorf("decode cached leaderboard: %w", err)
		}
		if lb.ItemID == it.ID {
			return it, lb, nil
		}
		force = true
	}
	return it, lb, nil
}

func announceKey(ref kit.MessageRef) string {
	return announcePrefix + strconv.FormatInt(ref.ChatID, 10) + "/" + strconv.Itoa(ref.MessageID)
}

// trackAnnouncement remembers which item an announcement message belongs to.
func (s *Session) trackAnnouncement(ctx context.Context, ref kit.MessageRef, itemID string) {
	if err := storage.Save(ctx, s.d.Store, announceKey(ref), itemID); err != nil {
		s.log.Warn("announcement tracking failed", logx.Int64("chat_id", ref.ChatID), logx.Int("msg_id", ref.MessageID), logx.Err(err))
	}
}

// oops reports an unexpected error to the operator channel.
func (s *Session) oops(ctx context.Context, what string, err error) {
	s.log.Error(what, logx.Err(err))
	if s.d.Operator == nil {
		return
	}
	if nerr := s.d.Operator.Notify(ctx, what+": "+err.Error()); nerr != nil {
		s.log.Debug("operator notify failed", logx.Err(nerr))
	}
}

func (s *Session) publish(typ string, data any) {
	if s.d.Bus != nil {
		s.d.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
