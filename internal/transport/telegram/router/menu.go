package router

import (
	"slices"
	"strings"

	kit "totdbot/internal/transport"
)

// Telegram caps: names are [a-z0-9_]{1,32}, descriptions 256 chars, 100 entries.
const (
	maxMenuName    = 32
	maxMenuDesc    = 256
	maxMenuEntries = 100
)

// menuName folds s into a Telegram command name. Separators collapse to one
// underscore and anything else outside [a-z0-9] is dropped.
func menuName(s string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
		case r == '_', r == '-', r == ' ', r == '/', r == '\t':
			sep = true
		}
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "n_" + out
	}
	if len(out) > maxMenuName {
		out = strings.TrimRight(out[:maxMenuName], "_")
	}
	return out
}

// routeMenuName joins a route into one command name: "bingo vote" -> "bingo_vote".
func routeMenuName(route []string) (string, bool) {
	name := menuName(strings.Join(route, "_"))
	return name, name != ""
}

// menuCommands builds the public command menu. Owner-only commands are left
// out entirely; admin commands stay listed with a note since any member can
// see the menu. Top-level routes come first, then subcommands.
func menuCommands(cmds []Command) []kit.BotCommand {
	type item struct {
		depth int
		kit.BotCommand
	}
	var items []item
	seen := map[string]bool{}
	for _, c := range cmds {
		if c.Access == AccessOwnerOnly {
			continue
		}
		route := splitRoute(c.Route)
		name, ok := routeMenuName(route)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		items = append(items, item{depth: len(route), BotCommand: kit.BotCommand{
			Command:     name,
			Description: menuDescription(c, route),
		}})
	}
	slices.SortStableFunc(items, func(a, b item) int {
		if a.depth != b.depth {
			return a.depth - b.depth
		}
		return strings.Compare(a.Command, b.Command)
	})

	out := make([]kit.BotCommand, 0, min(len(items), maxMenuEntries))
	for _, it := range items[:min(len(items), maxMenuEntries)] {
		out = append(out, it.BotCommand)
	}
	return out
}

func menuDescription(c Command, route []string) string {
	desc := strings.Join(strings.Fields(c.Description), " ")
	if desc == "" {
		desc = strings.Join(route, " ")
	}
	if c.Access == AccessChatAdmin {
		desc += " (admins)"
	}
	if r := []rune(desc); len(r) > maxMenuDesc {
		desc = string(r[:maxMenuDesc])
	}
	return desc
}
