// Package ranking keeps bounded best/worst lists of rated items per time window.
package ranking

import "time"

type Kind int

const (
	Monthly Kind = iota
	Yearly
	AllTime
)

func (k Kind) String() string {
	switch k {
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	case AllTime:
		return "all-time"
	default:
		return "unknown"
	}
}

// Limit is the list length K for the window kind.
func (k Kind) Limit() int {
	if k == AllTime {
		return 10
	}
	return 5
}

type Entry struct {
	ItemID string
	Name   string
	Author string
	Day    string // cycle date, YYYY-MM-DD
	Score  float64
	Votes  int
}

// Window holds the best entries (descending) and the worst entries (ascending).
type Window struct {
	Top    []Entry
	Bottom []Entry
}

type Rankings struct {
	Monthly     Window
	Yearly      Window
	AllTime     Window
	LastMonthly *Window
	LastYearly  *Window

	UpdatedAt time.Time
	// RolledOn is the calendar date of the last window rollover, YYYY-MM-DD.
	RolledOn string
}

// Insert places e in both lists of w. Entries without votes are ignored.
// Equal scores keep insertion order.
func Insert(e Entry, w Window, k Kind) Window {
	if e.Votes <= 0 {
		return w
	}
	limit := k.Limit()

	top := insertBefore(w.Top, e, func(existing Entry) bool { return existing.Score < e.Score })
	if len(top) > limit {
		top = top[:limit]
	}

	bottom := insertBefore(w.Bottom, e, func(existing Entry) bool { return existing.Score > e.Score })
	if len(bottom) > limit {
		// the list is ascending, so the K worst are at the front
		bottom = bottom[:limit]
	}
	return Window{Top: top, Bottom: bottom}
}

func insertBefore(list []Entry, e Entry, before func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(list)+1)
	inserted := false
	for _, cur := range list {
		if !inserted && before(cur) {
			out = append(out, e)
			inserted = true
		}
		out = append(out, cur)
	}
	if !inserted {
		out = append(out, e)
	}
	return out
}

// Rollover snapshots and resets the windows once now is in a later month
// (monthly) or year (yearly and monthly) than the rankings were last touched.
// A missed first-of-month run is caught up on the next call. When a whole
// period was skipped the "last" snapshot is empty, since nothing was rated then.
// Rankings never touched before roll on the first calendar day of a month.
func Rollover(r Rankings, now time.Time) (Rankings, bool) {
	ref, ok := r.reference(now.Location())
	if !ok {
		if now.Day() != 1 {
			return r, false
		}
		ref = now.AddDate(0, 0, -1)
	}
	ry, rm, _ := ref.Date()
	ny, nm, _ := now.Date()
	months := (ny-ry)*12 + int(nm) - int(rm)
	if months <= 0 {
		return r, false
	}

	if ny > ry {
		last := Window{}
		if ny-ry == 1 {
			last = r.Yearly
		}
		r.LastYearly = &last
		r.Yearly = Window{}
	}
	last := Window{}
	if months == 1 {
		last = r.Monthly
	}
	r.LastMonthly = &last
	r.Monthly = Window{}
	r.RolledOn = now.Format(time.DateOnly)
	return r, true
}

// reference is the latest moment the windows are known to cover.
func (r Rankings) reference(loc *time.Location) (time.Time, bool) {
	var ref time.Time
	if r.RolledOn != "" {
		if d, err := time.ParseInLocation(time.DateOnly, r.RolledOn, loc); err == nil {
			ref = d
		}
	}
	if u := r.UpdatedAt.In(loc); !r.UpdatedAt.IsZero() && u.After(ref) {
		ref = u
	}
	return ref, !ref.IsZero()
}
