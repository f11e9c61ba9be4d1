package tgui

import (
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// ReactNS is the callback namespace of reaction buttons: "react:<index>".
const ReactNS = "react"

// Inline builds inline keyboards row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn is a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// ReactionKeyboard renders one button per symbol labelled "<symbol> <count>".
// Buttons carry the symbol's index so long symbols still fit callback_data.
// Rows hold at most perRow buttons.
func ReactionKeyboard(symbols []string, counts map[string]int, perRow int) *tele.ReplyMarkup {
	if perRow <= 0 {
		perRow = 3
	}
	kb := NewInline()
	row := make([]tele.Btn, 0, perRow)
	for i, s := range symbols {
		label := s
		if n, ok := counts[s]; ok {
			label += " " + strconv.Itoa(n)
		}
		row = append(row, Btn(label, ReactNS+":"+strconv.Itoa(i)))
		if len(row) == perRow {
			kb.Row(row...)
			row = make([]tele.Btn, 0, perRow)
		}
	}
	if len(row) > 0 {
		kb.Row(row...)
	}
	return kb.Markup()
}

// ReactionIndex extracts the symbol index from reaction button data.
func ReactionIndex(data string) (int, bool) {
	ns, action, _, ok := ParseData(data)
	if !ok || ns != ReactNS {
		return 0, false
	}
	i, err := strconv.Atoi(action)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
