package totd

import (
	"strings"
	"testing"

	"totdbot/internal/bingo"
	"totdbot/internal/content"
	"totdbot/internal/rating"
)

func TestItemLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tags []string
		want string
	}{
		{nil, "Track"},
		{[]string{"Tech", "Scenery"}, "Scenery"},
		{[]string{"Nascar", "Scenery"}, "Nascar"},
	}
	for _, tt := range tests {
		if got := itemLabel(content.Item{Tags: tt.tags}); got != tt.want {
			t.Fatalf("itemLabel(%v) = %q, want %q", tt.tags, got, tt.want)
		}
	}
}

func TestAnnouncement(t *testing.T) {
	t.Parallel()
	it := item("A", "2024-05-01")
	it.TMXID = 1234
	it.ThumbnailURL = "https://example.com/a.jpg"

	msg, err := announcement(it)
	if err != nil {
		t.Fatalf("announcement: %v", err)
	}
	if msg.Title != "Here's the May 1st Track of the Day!" {
		t.Fatalf("Title = %q", msg.Title)
	}
	if len(msg.Reactions) != len(rating.Categories) || msg.Reactions[0] != "+++" {
		t.Fatalf("Reactions = %v", msg.Reactions)
	}
	if msg.Image == nil || msg.Image.URL != it.ThumbnailURL {
		t.Fatalf("Image = %+v", msg.Image)
	}
	if msg.Attachment == nil || msg.Attachment.URL != "https://trackmania.io/#/totd/leaderboard/season/A" {
		t.Fatalf("Attachment = %+v", msg.Attachment)
	}
	var medals string
	for _, f := range msg.Fields {
		if f.Name == "Medal times" {
			medals = f.Value
		}
	}
	if !strings.Contains(medals, "🏆 0:42.123") {
		t.Fatalf("medal field = %q", medals)
	}
}

func TestRatingsMessage(t *testing.T) {
	t.Parallel()
	rec := rating.Record{ItemID: "A", Counts: rating.Tally{rating.PlusPlusPlus: 1200, rating.Minus: 3}}
	text := ratingsMessage(rec, "Track by Author", false).Text
	for _, want := range []string{"today's TOTD ratings", "Track by Author", "<code>+++</code> - 1200", "1,203", "grain of salt"} {
		if !strings.Contains(text, want) {
			t.Fatalf("ratings text missing %q:\n%s", want, text)
		}
	}
	if empty := ratingsMessage(rating.Record{}, "", true).Text; !strings.Contains(empty, "didn't get any votes yesterday") {
		t.Fatalf("empty yesterday text = %q", empty)
	}
}

func TestLeaderboardMessage(t *testing.T) {
	t.Parallel()
	lb := content.Leaderboard{ItemID: "A", Records: []content.Record{
		{Position: 1, Score: 41500, PlayerName: "<b>fast</b>"},
		{Position: 1000, Score: 48250},
	}}
	text := leaderboardMessage(item("A", "2024-05-01"), lb).Text
	for _, want := range []string{"&lt;b&gt;fast&lt;/b&gt;", "To get top 1,000, you need to drive at least a <b>0:48.250</b>."} {
		if !strings.Contains(text, want) {
			t.Fatalf("leaderboard text missing %q:\n%s", want, text)
		}
	}
}

func TestResolutionMessage(t *testing.T) {
	t.Parallel()
	text := resolutionMessage(bingo.Resolution{Cell: 3, Text: "Ice", Yes: 4, No: 1, Outcome: bingo.Checked, Won: true}).Text
	if !strings.Contains(text, "Field 3 is checked") || !strings.Contains(text, "BINGO") {
		t.Fatalf("resolution text = %q", text)
	}
}
