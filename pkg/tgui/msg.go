package tgui

import (
	"context"
	"strings"

	kit "totdbot/internal/transport"
)

// Message is a rendered reply: HTML text plus send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Editor is the edit half of the adapter.
type Editor interface {
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
}

func (m Message) Send(ctx context.Context, to kit.TextSender, target kit.ChatTarget) (kit.MessageRef, error) {
	return to.SendText(ctx, target, m.Text, m.options())
}

func (m Message) Edit(ctx context.Context, ed Editor, ref kit.MessageRef) error {
	return ed.EditText(ctx, ref, m.Text, m.options())
}

func (m Message) options() *kit.SendOptions {
	if m.Opt == nil {
		return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return m.Opt
}

// Builder assembles an HTML reply line by line. Plain-text inputs are escaped.
type Builder struct {
	preview bool
	markup  any
	lines   []string
}

func New() *Builder { return &Builder{} }

// Preview enables link previews (off by default).
func (b *Builder) Preview(v bool) *Builder {
	b.preview = v
	return b
}

// Inline attaches an inline keyboard.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil {
		b.markup = nil
		return b
	}
	b.markup = kb.Markup()
	return b
}

// Title adds a bold title line; emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e := strings.TrimSpace(emoji); e != "" {
		b.lines = append(b.lines, Esc(e).String()+" "+B(t).String())
	} else {
		b.lines = append(b.lines, B(t).String())
	}
	return b
}

func (b *Builder) Section(title string) *Builder {
	if t := strings.TrimSpace(title); t != "" {
		b.lines = append(b.lines, B(t).String())
	}
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// HTML appends already-safe markup.
func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.Line("• " + it)
		}
	}
	return b
}

// KV adds a "• key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(strings.TrimSpace(value)).String())
	return b
}

func (b *Builder) Pre(code string) *Builder {
	if code = strings.TrimRight(code, "\n"); code != "" {
		b.lines = append(b.lines, Pre(code).String())
	}
	return b
}

func (b *Builder) Build() Message {
	return Message{
		Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"),
		Opt:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: !b.preview, ReplyMarkupAdapter: b.markup},
	}
}
