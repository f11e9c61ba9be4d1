package tgui

import (
	"strings"
	"testing"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	d, err := Data("bingo", "vote", "12:x")
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	ns, action, payload, ok := ParseData(d)
	if !ok || ns != "bingo" || action != "vote" || payload != "12:x" {
		t.Fatalf("ParseData(%q) = %q %q %q %v", d, ns, action, payload, ok)
	}
	if _, err := Data("ns", "a", strings.Repeat("x", MaxCallbackDataLen)); err != ErrCallbackDataTooLong {
		t.Fatalf("Data(long) err = %v, want ErrCallbackDataTooLong", err)
	}
	if _, _, _, ok := ParseData("nocolon"); ok {
		t.Fatalf("ParseData(nocolon) ok = true")
	}
}

func TestReactionKeyboard(t *testing.T) {
	t.Parallel()
	syms := []string{"+++", "++", "+", "-", "--", "---"}
	rm := ReactionKeyboard(syms, map[string]int{"+++": 3, "-": 1}, 3)

	if len(rm.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(rm.InlineKeyboard))
	}
	first := rm.InlineKeyboard[0][0]
	if first.Text != "+++ 3" || first.Data != "react:0" {
		t.Fatalf("first button = %q/%q", first.Text, first.Data)
	}
	if got := rm.InlineKeyboard[0][1].Text; got != "++" {
		t.Fatalf("uncounted button text = %q, want ++", got)
	}

	tests := []struct {
		data string
		want int
		ok   bool
	}{
		{"react:0", 0, true},
		{"react:5", 5, true},
		{"react:-1", 0, false},
		{"bingo:0", 0, false},
		{"react:x", 0, false},
	}
	for _, tt := range tests {
		got, ok := ReactionIndex(tt.data)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ReactionIndex(%q) = %d, %v, want %d, %v", tt.data, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()
	msg := New().Title("🏁", "A & B").KV("Author", "<script>").Line("plain").Build()

	want := "🏁 <b>A &amp; B</b>\n• <b>Author</b>: &lt;script&gt;\nplain"
	if msg.Text != want {
		t.Fatalf("Text = %q, want %q", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview {
		t.Fatalf("Opt = %+v", msg.Opt)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("héllo", 10); got != "héllo" {
		t.Fatalf("TruncRunes short = %q", got)
	}
	if got := TruncRunes("héllo", 2); got != "hé…" {
		t.Fatalf("TruncRunes cut = %q, want hé…", got)
	}
}
