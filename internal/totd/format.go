package totd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"totdbot/internal/bingo"
	"totdbot/internal/broadcast"
	"totdbot/internal/content"
	"totdbot/internal/ranking"
	"totdbot/internal/rating"
	kit "totdbot/internal/transport"
	"totdbot/pkg/tgui"
)

const (
	tmioLeaderboardURL = "https://trackmania.io/#/totd/leaderboard/%s/%s"
	tmxTrackURL        = "https://trackmania.exchange/s/tr/%d"
)

// itemLabel names the kind of track: "Scenery" and "Nascar" tags win over "Track".
func itemLabel(it content.Item) string {
	switch {
	case slices.Contains(it.Tags, "Nascar"):
		return "Nascar"
	case slices.Contains(it.Tags, "Scenery"):
		return "Scenery"
	default:
		return "Track"
	}
}

// dayTitle renders a cycle date as "May 1st".
func dayTitle(day string) string {
	d, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return day
	}
	return d.Month().String() + " " + humanize.Ordinal(d.Day())
}

func medals(it content.Item) string {
	return strings.Join([]string{
		"🥉 " + content.FormatTime(it.Bronze),
		"🥈 " + content.FormatTime(it.Silver),
		"🥇 " + content.FormatTime(it.Gold),
		"🏆 " + content.FormatTime(it.AuthorTime),
	}, "\n")
}

// announcement builds the daily post with rating buttons.
func announcement(it content.Item) (*kit.OutMessage, error) {
	opts := []kit.MessageOption{
		kit.WithDescription("React to this message to rate the " + itemLabel(it) + " of the Day!"),
		kit.WithField("Name", it.DisplayName(), true),
		kit.WithField("Author", it.DisplayAuthor(), true),
	}
	if !it.UploadedAt.IsZero() {
		opts = append(opts, kit.WithField("Uploaded on", it.UploadedAt.Format("January 2, 2006"), false))
	}
	opts = append(opts, kit.WithField("Medal times", medals(it), false))
	if len(it.Tags) > 0 {
		opts = append(opts, kit.WithField("Styles (according to TMX)", strings.Join(it.Tags, ", "), true))
	}
	if it.TMXID > 0 {
		opts = append(opts, kit.WithField("TMX", fmt.Sprintf(tmxTrackURL, it.TMXID), false))
	}
	if it.SeasonID != "" {
		opts = append(opts, kit.WithAttachment("Leaderboard on Trackmania.io", fmt.Sprintf(tmioLeaderboardURL, it.SeasonID, it.ID)))
	}
	opts = append(opts,
		kit.WithImageURL(it.ThumbnailURL),
		kit.WithFooter("Cycle "+it.Day),
		kit.WithReactions(rating.Symbols()...),
	)
	return kit.NewOutMessage("Here's the "+dayTitle(it.Day)+" "+itemLabel(it)+" of the Day!", opts...)
}

// ratingsMessage renders a tally; name is the item line and may be empty.
func ratingsMessage(rec rating.Record, name string, yesterday bool) tgui.Message {
	stats := rec.Stats()
	b := tgui.New()
	if yesterday {
		b.Title("📊", "Here are yesterday's TOTD ratings!")
	} else {
		b.Title("📊", "Here are today's TOTD ratings!")
	}
	if name != "" {
		b.Line(name)
	}
	if yesterday {
		b.Line("These ratings come from every chat I post in.")
	} else {
		b.Line("This track is still being voted on, so take these numbers with a grain of salt.")
	}

	b.Blank().Section("Ratings")
	for i := len(rating.Categories) - 1; i >= 0; i-- {
		c := rating.Categories[i]
		b.HTML(tgui.Code(c.Symbol()) + tgui.Esc(" - "+strconv.Itoa(rec.Counts[c])))
	}

	b.Blank().Section("Verdict")
	b.KV("Total ratings", humanize.Comma(int64(stats.TotalVotes)))
	if stats.AverageRating.Valid {
		b.KV("Average rating", stats.AverageRating.String())
		b.KV("Average karma", stats.AverageKarma.String())
	}
	return b.Line(rating.Verdict(stats, yesterday)).Build()
}

func leaderboardMessage(it content.Item, lb content.Leaderboard) tgui.Message {
	var top, thresholds []content.Record
	for _, r := range lb.Records {
		if r.Position <= 10 {
			top = append(top, r)
		} else {
			thresholds = append(thresholds, r)
		}
	}

	var sb strings.Builder
	sb.WriteString("      Time       Name\n")
	for _, r := range top {
		fmt.Fprintf(&sb, "%3d  %-10s %s\n", r.Position, content.FormatTime(r.Score), tgui.TruncRunes(r.PlayerName, 24))
	}

	b := tgui.New().
		Title("🏁", "Here's today's TOTD leaderboard!").
		Line(it.DisplayName() + " by " + it.DisplayAuthor()).
		Blank().Section("Top 10").
		Pre(sb.String())
	if len(thresholds) > 0 {
		b.Blank()
		for _, r := range thresholds {
			b.HTML(tgui.Esc("To get top "+humanize.Comma(int64(r.Position))+", you need to drive at least a ") + tgui.B(content.FormatTime(r.Score)) + ".")
		}
	}
	if it.SeasonID != "" {
		b.Blank().HTML("Full leaderboard on " + tgui.Link("Trackmania.io", fmt.Sprintf(tmioLeaderboardURL, it.SeasonID, it.ID)))
	}
	return b.Blank().HTML(tgui.I("The threshold times are not exact - they might be off by a position or two.")).Build()
}

func windowLines(b *tgui.Builder, title string, w ranking.Window) {
	b.Blank().Section(title)
	if len(w.Top) == 0 {
		b.Line("Nothing rated yet.")
		return
	}
	entry := func(i int, e ranking.Entry) string {
		return fmt.Sprintf("%d. %s by %s (%s, %.1f from %s votes)", i+1, e.Name, e.Author, e.Day, e.Score, humanize.Comma(int64(e.Votes)))
	}
	b.Line("Best:")
	for i, e := range w.Top {
		b.Line(entry(i, e))
	}
	b.Line("Worst:")
	for i, e := range w.Bottom {
		b.Line(entry(i, e))
	}
}

func rankingsMessage(r ranking.Rankings) tgui.Message {
	b := tgui.New().Title("🏆", "TOTD rankings")
	windowLines(b, "This month", r.Monthly)
	if r.LastMonthly != nil {
		windowLines(b, "Last month", *r.LastMonthly)
	}
	windowLines(b, "This year", r.Yearly)
	if r.LastYearly != nil {
		windowLines(b, "Last year", *r.LastYearly)
	}
	windowLines(b, "All time", r.AllTime)
	return b.Build()
}

func boardMessage(board bingo.Board, last bool) tgui.Message {
	title := fmt.Sprintf("Bingo for week %d, %d", board.Week, board.Year)
	if last {
		title = "Last week's bingo (week " + strconv.Itoa(board.Week) + ")"
	}
	b := tgui.New().Title("🎲", title).Pre(bingo.Render(board))
	switch {
	case board.Won():
		b.Line("BINGO! This board has a full line.")
	case !last:
		b.Line("Start a vote on a field with /bingo vote <number>.")
	}
	return b.Build()
}

func resolutionMessage(r bingo.Resolution) tgui.Message {
	b := tgui.New()
	label := bingo.CellLabel(r.Text)
	switch r.Outcome {
	case bingo.Checked:
		b.Title("✅", fmt.Sprintf("Field %d is checked: %s", r.Cell, label))
	default:
		b.Title("🔓", fmt.Sprintf("Field %d stays open: %s", r.Cell, label))
	}
	b.Line(fmt.Sprintf("Votes: %d yes, %d no", r.Yes, r.No))
	if r.Won {
		b.Blank().Line("🎉 BINGO! That completes a line on this week's board!")
	}
	return b.Build()
}

func reminderText(region, mention string) string {
	if region != "" {
		region = strings.ToUpper(region[:1]) + region[1:]
	}
	return fmt.Sprintf("⏰ %s Cup of the Day starts soon! %s", region, mention)
}

func statusMessage(last rolloverState, rep *broadcast.Report, schedules string) tgui.Message {
	b := tgui.New().Title("🛠", "Status")
	if last.Item.ID != "" {
		b.KV("Last rollover", last.Item.DisplayName()+" ("+last.Cycle+", "+humanize.Time(last.At)+")")
	} else {
		b.KV("Last rollover", "never")
	}
	if rep != nil {
		b.KV("Last distribution", fmt.Sprintf("%s: %d/%d sent, %d removed, %d transient, %d unknown",
			rep.Name, rep.Sent, rep.Total, rep.Removed, rep.Transient, rep.Unknown))
	}
	if schedules != "" {
		b.Blank().Section("Schedules").Pre(schedules)
	}
	return b.Build()
}
