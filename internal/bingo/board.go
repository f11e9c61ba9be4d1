// Package bingo implements the weekly 25-cell community bingo board and its cell votes.
package bingo

import (
	"errors"
	"fmt"
	"time"

	"totdbot/internal/transport"
)

const (
	Size      = 5
	CellCount = Size * Size
	FreeIndex = CellCount / 2
	// FieldCount is the number of drawn fields; the free space fills the rest.
	FieldCount = CellCount - 1
)

var ErrPoolTooSmall = errors.New("bingo: field pool smaller than 24")

// Vote is an open community vote on one cell.
type Vote struct {
	ID        string
	Ref       transport.MessageRef
	StartedAt time.Time
	StartedBy int64
}

type Cell struct {
	Text    string
	Checked bool
	Vote    *Vote
}

type Board struct {
	GroupID   int64
	Year      int
	Week      int
	Cells     [CellCount]Cell
	CreatedAt time.Time
	WonAt     time.Time
}

func (b Board) Won() bool { return CheckWin(b.Cells) }

// Rand is the subset of math/rand/v2 used for sampling.
type Rand interface {
	IntN(n int) int
}

// GenerateBoard draws 24 distinct fields without replacement and puts the
// pre-checked free space at the center. Repeated pool texts count once.
func GenerateBoard(pool []string, rng Rand) ([CellCount]Cell, error) {
	var cells [CellCount]Cell
	remaining := uniqueFields(pool)
	if len(remaining) < FieldCount {
		return cells, fmt.Errorf("%w: got %d distinct", ErrPoolTooSmall, len(remaining))
	}
	picked := make([]string, 0, FieldCount)
	for len(picked) < FieldCount {
		i := rng.IntN(len(remaining))
		picked = append(picked, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}

	for i, j := 0, 0; i < CellCount; i++ {
		if i == FreeIndex {
			cells[i] = Cell{Text: FreeSpace, Checked: true}
			continue
		}
		cells[i] = Cell{Text: picked[j]}
		j++
	}
	return cells, nil
}

func uniqueFields(pool []string) []string {
	seen := make(map[string]bool, len(pool))
	out := make([]string, 0, len(pool))
	for _, f := range pool {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

var lines = func() [][Size]int {
	out := make([][Size]int, 0, 2*Size+2)
	for r := 0; r < Size; r++ {
		var l [Size]int
		for c := 0; c < Size; c++ {
			l[c] = r*Size + c
		}
		out = append(out, l)
	}
	for c := 0; c < Size; c++ {
		var l [Size]int
		for r := 0; r < Size; r++ {
			l[r] = r*Size + c
		}
		out = append(out, l)
	}
	var d1, d2 [Size]int
	for i := 0; i < Size; i++ {
		d1[i] = i*Size + i
		d2[i] = i*Size + (Size - 1 - i)
	}
	return append(out, d1, d2)
}()

// CheckWin reports whether any row, column or diagonal is fully checked.
func CheckWin(cells [CellCount]Cell) bool {
	for _, l := range lines {
		full := true
		for _, i := range l {
			if !cells[i].Checked {
				full = false
				break
			}
		}
		if full {
			return true
		}
	}
	return false
}

type Outcome int

const (
	// Unchanged means the cell had no open vote or was already checked.
	Unchanged Outcome = iota
	Checked
	StillOpen
)

func (o Outcome) String() string {
	switch o {
	case Checked:
		return "checked"
	case StillOpen:
		return "still_open"
	default:
		return "unchanged"
	}
}

// ResolveVote decides an open cell vote. yes and no exclude the bot's seed reactions.
// Ties keep the cell unchecked.
func ResolveVote(c Cell, yes, no int) Outcome {
	if c.Checked || c.Vote == nil {
		return Unchanged
	}
	if yes > no {
		return Checked
	}
	return StillOpen
}

// WeekNumber returns the ISO year and week of t in the daily cycle: t is shifted back
// by the boundary hour in loc first, so a week starts at the boundary, not at midnight.
func WeekNumber(t time.Time, loc *time.Location, boundaryHour int) (year, week int) {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	d := time.Date(lt.Year(), lt.Month(), lt.Day(), 12, 0, 0, 0, loc)
	if lt.Hour() < boundaryHour {
		d = d.AddDate(0, 0, -1)
	}
	return d.ISOWeek()
}
