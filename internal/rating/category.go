// Package rating turns reaction tallies into community rating statistics.
package rating

import "strings"

// Category is one feedback tier. Its weight is the number of Plus or Minus tokens in its name.
type Category string

const (
	MinusMinusMinus Category = "MinusMinusMinus"
	MinusMinus      Category = "MinusMinus"
	Minus           Category = "Minus"
	Plus            Category = "Plus"
	PlusPlus        Category = "PlusPlus"
	PlusPlusPlus    Category = "PlusPlusPlus"
)

// Categories lists every tier from worst to best.
var Categories = []Category{MinusMinusMinus, MinusMinus, Minus, Plus, PlusPlus, PlusPlusPlus}

var symbols = map[Category]string{
	MinusMinusMinus: "---",
	MinusMinus:      "--",
	Minus:           "-",
	Plus:            "+",
	PlusPlus:        "++",
	PlusPlusPlus:    "+++",
}

func (c Category) Positive() bool { return strings.HasPrefix(string(c), "Plus") }

func (c Category) Weight() int {
	if c.Positive() {
		return strings.Count(string(c), "Plus")
	}
	return strings.Count(string(c), "Minus")
}

func (c Category) Valid() bool {
	_, ok := symbols[c]
	return ok
}

// Symbol is the reaction symbol shown on rating buttons.
func (c Category) Symbol() string { return symbols[c] }

// ParseSymbol maps a reaction symbol back to its category.
func ParseSymbol(s string) (Category, bool) {
	for c, sym := range symbols {
		if sym == s {
			return c, true
		}
	}
	return "", false
}

// Symbols returns the reaction symbols in display order, best first.
func Symbols() []string {
	out := make([]string, 0, len(Categories))
	for i := len(Categories) - 1; i >= 0; i-- {
		out = append(out, Categories[i].Symbol())
	}
	return out
}
