package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is already safe for ParseMode "HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks s as already-safe HTML.
func Raw(s string) H { return H(s) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Pre renders a monospace block; each sent message needs balanced tags, so
// keep one block under the message limit.
func Pre(s string) H {
	return H("<pre>" + html.EscapeString(s) + "</pre>")
}

func Link(text, url string) H {
	return H(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(text)))
}

// Mention links a display name to a Telegram user.
func Mention(name string, userID int64) H {
	return Link(name, fmt.Sprintf("tg://user?id=%d", userID))
}

// HiddenLink is an invisible link whose URL Telegram expands into a preview.
func HiddenLink(url string) H {
	return H(fmt.Sprintf(`<a href="%s">&#8205;</a>`, html.EscapeString(url)))
}

// JoinH joins non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) != "" {
			ss = append(ss, p.String())
		}
	}
	return H(strings.Join(ss, sep))
}
