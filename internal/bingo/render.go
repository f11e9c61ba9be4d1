package bingo

import (
	"fmt"
	"strings"
)

// Render draws the board as a monospace grid followed by the numbered field list.
func Render(b Board) string {
	var sb strings.Builder
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			i := r*Size + c
			switch {
			case b.Cells[i].Checked:
				sb.WriteString(" X ")
			case b.Cells[i].Vote != nil:
				sb.WriteString(" ? ")
			default:
				fmt.Fprintf(&sb, "%2d ", i+1)
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for i, c := range b.Cells {
		mark := "[ ]"
		switch {
		case c.Checked:
			mark = "[x]"
		case c.Vote != nil:
			mark = "[?]"
		}
		fmt.Fprintf(&sb, "%s %2d. %s\n", mark, i+1, CellLabel(c.Text))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// CellLabel flattens a multi-line cell text to one line.
func CellLabel(text string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(text, "-\n", "-")), " ")
}
