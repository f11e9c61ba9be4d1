package ranking

import (
	"context"
	"time"

	"totdbot/internal/storage"
	logx "totdbot/pkg/logx"
)

const storeKey = "ranking/all"

// Maintainer persists Rankings and feeds finished items into every window.
type Maintainer struct {
	st  storage.Store
	log logx.Logger
}

func NewMaintainer(st storage.Store, log logx.Logger) *Maintainer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Maintainer{st: st, log: log.With(logx.String("comp", "ranking"))}
}

func (m *Maintainer) Load(ctx context.Context) (Rankings, error) {
	var r Rankings
	if _, err := storage.Load(ctx, m.st, storeKey, &r); err != nil {
		return Rankings{}, err
	}
	return r, nil
}

// Record inserts the outgoing item, then applies the calendar rollover for now.
// The item therefore counts towards the period it was released in.
func (m *Maintainer) Record(ctx context.Context, e Entry, now time.Time) (Rankings, error) {
	r, err := m.Load(ctx)
	if err != nil {
		return Rankings{}, err
	}

	if e.Votes > 0 {
		r.Monthly = Insert(e, r.Monthly, Monthly)
		r.Yearly = Insert(e, r.Yearly, Yearly)
		r.AllTime = Insert(e, r.AllTime, AllTime)
	} else {
		m.log.Debug("skipping item without votes", logx.String("item", e.ItemID))
	}

	var rolled bool
	r, rolled = Rollover(r, now)
	if rolled {
		m.log.Info("ranking windows rolled over", logx.String("date", r.RolledOn))
	}
	r.UpdatedAt = now

	if err := storage.Save(ctx, m.st, storeKey, r); err != nil {
		return Rankings{}, err
	}
	return r, nil
}
