package router

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// helpText renders help in Telegram HTML for the top level or one command path.
func (r *Router) helpText(path []string) string {
	r.mu.RLock()
	root, alias := r.root, r.alias
	r.mu.RUnlock()

	if len(path) == 0 {
		return helpTopHTML(root)
	}

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		p = strings.TrimPrefix(p, "/")
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok := alias[p]; ok && leaf != nil && leaf.cmd != nil {
				cur = leaf
				full = splitRoute(leaf.cmd.Route)
				break
			}
			return "❓ <b>Unknown command</b>\nSend <code>/help</code> for the list."
		}
		cur = n
		full = append(full, p)
	}
	return helpNodeHTML(cur, full)
}

type topRow struct {
	name  string
	desc  string
	badge string
}

func helpTopHTML(root *cmdNode) string {
	var rows []topRow
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		rows = append(rows, topRow{name: name, desc: summarizeNodeDesc(n), badge: accessBadge(n)})
	}
	// restricted commands last, alphabetical within a group
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].badge != rows[j].badge {
			return rows[i].badge < rows[j].badge
		}
		return rows[i].name < rows[j].name
	})

	lines := []string{"📚 <b>Commands</b>", "Send <code>/help &lt;command&gt;</code> for details.", ""}
	for _, row := range rows {
		line := "• " + row.badge + "<code>/" + html.EscapeString(row.name) + "</code>"
		if row.desc != "" {
			line += " - " + html.EscapeString(row.desc)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func helpNodeHTML(cur *cmdNode, full []string) string {
	lines := []string{fmt.Sprintf("📚 <b>Help</b> <code>%s</code>", html.EscapeString("/"+strings.Join(full, " ")))}

	if c := cur.cmd; c != nil {
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		switch c.Access {
		case AccessOwnerOnly:
			lines = append(lines, "🔒 <i>Bot owners only</i>")
		case AccessChatAdmin:
			lines = append(lines, "🛡 <i>Chat admins only</i>")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
		if short := buildShortcuts(*c); len(short) > 0 {
			lines = append(lines, "", "<b>Shortcuts</b>")
			for _, s := range short {
				lines = append(lines, "• <code>/"+html.EscapeString(s)+"</code>")
			}
		}
	}

	if len(cur.children) > 0 {
		lines = append(lines, "", "<b>Subcommands</b>")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			line := "• " + accessBadge(n) + "<code>/" + html.EscapeString(strings.Join(append(append([]string(nil), full...), name), " ")) + "</code>"
			if d := summarizeNodeDesc(n); d != "" {
				line += " - " + html.EscapeString(d)
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	shown := kids[:min(3, len(kids))]
	s := strings.Join(shown, ", ")
	if len(kids) > len(shown) {
		s += ", …"
	}
	return "subcommands: " + s
}

// nodeIsOwnerOnly reports whether n, or every command below a group node, is owner-only.
func nodeIsOwnerOnly(n *cmdNode) bool {
	if n == nil {
		return false
	}
	if n.cmd != nil {
		return n.cmd.Access == AccessOwnerOnly
	}
	for _, ch := range n.children {
		if !nodeIsOwnerOnly(ch) {
			return false
		}
	}
	return true
}

func accessBadge(n *cmdNode) string {
	switch {
	case nodeIsOwnerOnly(n):
		return "🔒 "
	case n != nil && n.cmd != nil && n.cmd.Access == AccessChatAdmin:
		return "🛡 "
	default:
		return ""
	}
}

func buildShortcuts(c Command) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if route := splitRoute(c.Route); len(route) > 1 {
		if name, ok := routeMenuName(route); ok {
			add(name)
		}
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") {
			continue
		}
		add(a)
		add(menuName(a))
	}
	sort.Strings(out)
	return out
}
