package rating

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestCalculateStats(t *testing.T) {
	convey.Convey("Given a tally", t, func() {
		convey.Convey("When it has no votes", func() {
			s := CalculateStats(Tally{Plus: 0, Minus: 0})

			convey.Convey("Then every average is absent, not zero", func() {
				convey.So(s.TotalVotes, convey.ShouldEqual, 0)
				convey.So(s.AverageRating.Valid, convey.ShouldBeFalse)
				convey.So(s.AverageKarma.Valid, convey.ShouldBeFalse)
				convey.So(s.AveragePositive.Valid, convey.ShouldBeFalse)
				convey.So(s.AverageNegative.Valid, convey.ShouldBeFalse)
				convey.So(Verdict(s, false), convey.ShouldEqual, "Looks like I don't have any votes yet...")
				convey.So(Verdict(s, true), convey.ShouldEqual, "Looks like I didn't get any votes yesterday...")
			})
		})

		convey.Convey("When it mixes positive and negative votes", func() {
			s := CalculateStats(Tally{PlusPlusPlus: 2, Plus: 1, MinusMinus: 1})

			convey.Convey("Then weights and karma follow the tier distance", func() {
				convey.So(s.TotalVotes, convey.ShouldEqual, 4)
				convey.So(s.WeightedVotes, convey.ShouldEqual, 5)
				convey.So(s.TotalKarma, convey.ShouldEqual, 280)
				convey.So(s.AverageRating.Value, convey.ShouldEqual, 1.3)
				convey.So(s.AverageKarma.Value, convey.ShouldEqual, 70)
				convey.So(s.AveragePositive.Value, convey.ShouldEqual, 2.3)
				convey.So(s.AverageNegative.Value, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When only negative votes exist", func() {
			s := CalculateStats(Tally{MinusMinusMinus: 3})

			convey.Convey("Then the positive average is absent and karma bottoms out", func() {
				convey.So(s.AverageRating.Value, convey.ShouldEqual, -3)
				convey.So(s.AverageKarma.Value, convey.ShouldEqual, 0)
				convey.So(s.AveragePositive.Valid, convey.ShouldBeFalse)
				convey.So(s.AverageNegative.Value, convey.ShouldEqual, 3)
				convey.So(Verdict(s, false), convey.ShouldEqual, "Looks like it was an absolute nightmare of a track!")
			})
		})

		convey.Convey("When counts are negative or categories unknown", func() {
			s := CalculateStats(Tally{Plus: -4, Category("Sideways"): 9, PlusPlus: 1})

			convey.Convey("Then they are ignored", func() {
				convey.So(s.TotalVotes, convey.ShouldEqual, 1)
				convey.So(s.AverageKarma.Value, convey.ShouldEqual, 80)
			})
		})
	})
}

func TestRound1MatchesHalfUp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want float64
	}{
		{1.25, 1.3},
		{-0.25, -0.2},
		{2.0 / 3.0, 0.7},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round1(tt.in); got != tt.want {
			t.Fatalf("round1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVerdictThresholds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		avg  float64
		want string
	}{
		{-2.5, "Looks like it was an absolute nightmare of a track!"},
		{-2, "Best to just forget about this one, huh?"},
		{-0.1, "Not exactly a good track, but it could have been worse."},
		{0, "An alright track, nothing special though."},
		{1.9, "Pretty good track today, but not quite perfect."},
		{2, "Absolutely fantastic track, definitely a highlight!"},
	}
	for _, tt := range tests {
		s := Stats{TotalVotes: 1, AverageRating: some(tt.avg)}
		if got := Verdict(s, false); got != tt.want {
			t.Fatalf("Verdict(%v) = %q, want %q", tt.avg, got, tt.want)
		}
	}
}

func TestCategorySymbols(t *testing.T) {
	t.Parallel()
	for _, c := range Categories {
		got, ok := ParseSymbol(c.Symbol())
		if !ok || got != c {
			t.Fatalf("ParseSymbol(%q) = %v, %v", c.Symbol(), got, ok)
		}
	}
	if _, ok := ParseSymbol("?"); ok {
		t.Fatal("ParseSymbol accepted an unknown symbol")
	}
	syms := Symbols()
	if syms[0] != "+++" || syms[len(syms)-1] != "---" {
		t.Fatalf("Symbols() = %v", syms)
	}
	if PlusPlus.Weight() != 2 || MinusMinusMinus.Weight() != 3 || Minus.Positive() {
		t.Fatal("weights wrong")
	}
}
