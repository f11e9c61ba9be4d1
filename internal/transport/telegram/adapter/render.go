package adapter

import (
	"strings"
	"unicode/utf8"

	kit "totdbot/internal/transport"
	"totdbot/pkg/tgui"
)

// captionLimit is Telegram's photo caption limit in characters.
const captionLimit = 1024

// renderHTML lays an OutMessage out as Telegram HTML. Inline fields that
// follow each other share a line.
func renderHTML(m *kit.OutMessage) string {
	var b strings.Builder
	b.WriteString(tgui.B(m.Title).String())
	if d := strings.TrimSpace(m.Description); d != "" {
		b.WriteString("\n")
		b.WriteString(tgui.Esc(d).String())
	}

	if len(m.Fields) > 0 {
		b.WriteString("\n")
	}
	var inline []string
	flush := func() {
		if len(inline) > 0 {
			b.WriteString("\n" + strings.Join(inline, "  ·  "))
			inline = inline[:0]
		}
	}
	for _, f := range m.Fields {
		kv := tgui.B(f.Name).String() + ": " + tgui.Esc(f.Value).String()
		if f.Inline {
			inline = append(inline, kv)
			continue
		}
		flush()
		b.WriteString("\n" + kv)
	}
	flush()

	if m.Attachment != nil {
		b.WriteString("\n\n📎 " + tgui.Link(m.Attachment.Name, m.Attachment.URL).String())
	}
	if f := strings.TrimSpace(m.Footer); f != "" {
		b.WriteString("\n\n" + tgui.I(f).String())
	}
	return b.String()
}

func fitsCaption(s string) bool { return utf8.RuneCountInString(s) <= captionLimit }

// displayCounts strips the seed reaction so buttons show real votes only.
func displayCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for s, n := range counts {
		if n -= kit.SeedReactionCount; n > 0 {
			out[s] = n
		}
	}
	return out
}
