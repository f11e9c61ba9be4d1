package totd

import (
	"context"
	"errors"

	"totdbot/internal/rating"
	"totdbot/internal/storage"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

// HandleReaction counts a rating reaction on a tracked announcement towards the
// current tally. Reactions on other messages, or on announcements of an older
// item, are ignored.
func (s *Session) HandleReaction(ctx context.Context, r kit.Reaction) error {
	cat, ok := rating.ParseSymbol(r.Symbol)
	if !ok || s.d.Ratings == nil {
		return nil
	}
	var itemID string
	found, err := storage.Load(ctx, s.d.Store, announceKey(r.Ref), &itemID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	delta := 1
	if !r.Added {
		delta = -1
	}
	s.tallyMu.Lock()
	rec, err := s.d.Ratings.Apply(ctx, itemID, cat, delta)
	s.tallyMu.Unlock()
	if errors.Is(err, rating.ErrOtherItem) {
		s.log.Debug("reaction on an old announcement", logx.String("item", itemID))
		return nil
	}
	if err != nil {
		return err
	}
	s.d.Metrics.Reaction(r.Added)
	s.log.Debug("rating applied",
		logx.String("item", itemID), logx.String("category", string(cat)), logx.Int("delta", delta), logx.Int("total", rec.Counts.Total()))
	return nil
}
