// Package content fetches the daily item and its leaderboard from the
// Trackmania web services.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoCurrentItem means the campaign listing had no entry running right now.
	ErrNoCurrentItem = errors.New("content: no current item")
	// ErrNoRecords means the leaderboard had no records yet.
	ErrNoRecords = errors.New("content: leaderboard is empty")
)

// Item is the daily item with the metadata used for announcements.
type Item struct {
	ID         string
	SeasonID   string
	Name       string
	Author     string
	AuthorName string

	// Medal times in milliseconds.
	Bronze     int
	Silver     int
	Gold       int
	AuthorTime int

	UploadedAt   time.Time
	ThumbnailURL string

	TMXID   int
	TMXName string
	Tags    []string

	// Day is the cycle date (YYYY-MM-DD) the item belongs to.
	Day string
}

// DisplayName prefers the exchange name, then the unformatted in-game name.
func (it Item) DisplayName() string {
	if it.TMXName != "" {
		return it.TMXName
	}
	return StripFormatting(it.Name)
}

func (it Item) DisplayAuthor() string {
	if it.AuthorName != "" {
		return it.AuthorName
	}
	return it.Author
}

// Record is one leaderboard row.
type Record struct {
	Position   int
	Score      int
	AccountID  string
	PlayerName string
}

type Leaderboard struct {
	ItemID   string
	SeasonID string
	// Records holds the top ten followed by the 100/1000/10000 thresholds that exist.
	Records []Record
}

// Source is the upstream the bot reads items from.
type Source interface {
	CurrentItem(ctx context.Context) (Item, error)
	Leaderboard(ctx context.Context, item Item) (Leaderboard, error)
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Endpoint   string
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("content: %s returned HTTP %d", e.Endpoint, e.Code)
}
