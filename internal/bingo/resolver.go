package bingo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"totdbot/internal/metrics"
	"totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

const (
	YesSymbol = "✅"
	NoSymbol  = "❌"
)

var (
	ErrNoBoard     = errors.New("bingo: no board for this chat")
	ErrInvalidCell = errors.New("bingo: invalid cell")
	ErrCellChecked = errors.New("bingo: cell already checked")
	ErrVoteActive  = errors.New("bingo: vote already running for this cell")
)

// Platform is the slice of the chat adapter the resolver needs.
type Platform interface {
	Send(ctx context.Context, to transport.ChatTarget, msg *transport.OutMessage) (transport.Sent, error)
	ReactionTallies(ctx context.Context, ref transport.MessageRef) (map[string]int, error)
}

// Resolution is the result of one cell vote evaluated at rollover.
type Resolution struct {
	GroupID int64
	Cell    int // 1-based
	Text    string
	Yes     int
	No      int
	Outcome Outcome
	// Won is set on the resolution that completed the board's first line.
	Won bool
}

// Resolver runs the per-cell vote lifecycle: NoVote -> VoteActive -> Checked | StillOpen.
type Resolver struct {
	store    *Store
	platform Platform
	metrics  *metrics.Manager
	log      logx.Logger
	now      func() time.Time
}

func NewResolver(store *Store, platform Platform, m *metrics.Manager, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{
		store:    store,
		platform: platform,
		metrics:  m,
		log:      log.With(logx.String("comp", "bingo")),
		now:      time.Now,
	}
}

// StartVote opens a vote on cell (1-based) of the group's board and posts the vote message to to.
func (r *Resolver) StartVote(ctx context.Context, groupID int64, to transport.ChatTarget, cell int, by int64) (Cell, error) {
	b, ok, err := r.store.Current(ctx, groupID)
	if err != nil {
		return Cell{}, err
	}
	if !ok {
		return Cell{}, ErrNoBoard
	}
	if cell < 1 || cell > CellCount {
		return Cell{}, fmt.Errorf("%w: %d", ErrInvalidCell, cell)
	}
	c := b.Cells[cell-1]
	if c.Checked {
		return c, ErrCellChecked
	}
	if c.Vote != nil {
		return c, ErrVoteActive
	}

	msg, err := transport.NewOutMessage(
		"Bingo vote: "+CellLabel(c.Text),
		transport.WithDescription(fmt.Sprintf("Should field %d be checked on this week's board? Votes are counted at the next track rollover.", cell)),
		transport.WithReactions(YesSymbol, NoSymbol),
	)
	if err != nil {
		return Cell{}, err
	}
	sent, err := r.platform.Send(ctx, to, msg)
	if err != nil {
		return Cell{}, err
	}

	c.Vote = &Vote{ID: uuid.NewString(), Ref: sent.Ref, StartedAt: r.now(), StartedBy: by}
	b.Cells[cell-1] = c
	if err := r.store.Save(ctx, b); err != nil {
		return Cell{}, err
	}
	r.metrics.BingoVote("started")
	r.log.Info("bingo vote started",
		logx.Int64("group", groupID), logx.Int("cell", cell), logx.String("vote", c.Vote.ID))
	return c, nil
}

// ResolveAll evaluates every open vote on every board. A failure in one group
// is logged and does not stop the others; the first such error is returned.
func (r *Resolver) ResolveAll(ctx context.Context) ([]Resolution, error) {
	groups, err := r.store.Groups(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out      []Resolution
		firstErr error
	)
	for _, g := range groups {
		res, err := r.resolveGroup(ctx, g)
		out = append(out, res...)
		if err != nil {
			r.log.Warn("bingo resolution failed", logx.Int64("group", g), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return out, firstErr
}

func (r *Resolver) resolveGroup(ctx context.Context, groupID int64) ([]Resolution, error) {
	b, ok, err := r.store.Current(ctx, groupID)
	if err != nil || !ok {
		return nil, err
	}
	wonBefore := b.Won()

	var out []Resolution
	for i := range b.Cells {
		c := b.Cells[i]
		if c.Vote == nil || c.Checked {
			continue
		}
		res := Resolution{GroupID: groupID, Cell: i + 1, Text: c.Text}

		tallies, err := r.platform.ReactionTallies(ctx, c.Vote.Ref)
		if err != nil {
			// unreachable message or chat: abandon the vote
			r.log.Debug("bingo vote message unreachable", logx.Int64("group", groupID), logx.Int("cell", i+1), logx.Err(err))
			res.Outcome = StillOpen
		} else {
			res.Yes = max(0, tallies[YesSymbol]-transport.SeedReactionCount)
			res.No = max(0, tallies[NoSymbol]-transport.SeedReactionCount)
			res.Outcome = ResolveVote(c, res.Yes, res.No)
		}

		if res.Outcome == Checked {
			c.Checked = true
		}
		c.Vote = nil
		b.Cells[i] = c
		r.metrics.BingoVote(res.Outcome.String())
		out = append(out, res)
	}
	if len(out) == 0 {
		return nil, nil
	}

	if !wonBefore && b.Won() {
		b.WonAt = r.now()
		out[len(out)-1].Won = true
		r.metrics.BingoWin()
	}
	if err := r.store.Save(ctx, b); err != nil {
		return out, err
	}
	return out, nil
}
