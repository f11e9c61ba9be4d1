package rating

import (
	"math"
	"strconv"
)

// Tally holds vote counts per category. Missing categories count as zero.
type Tally map[Category]int

func (t Tally) Total() int {
	n := 0
	for _, v := range t {
		if v > 0 {
			n += v
		}
	}
	return n
}

// Clone returns a copy with every category present.
func (t Tally) Clone() Tally {
	out := make(Tally, len(Categories))
	for _, c := range Categories {
		out[c] = max(0, t[c])
	}
	return out
}

// Score is an average that may be undefined.
type Score struct {
	Value float64
	Valid bool
}

func some(v float64) Score { return Score{Value: v, Valid: true} }

func (s Score) String() string {
	if !s.Valid {
		return "-"
	}
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

type Stats struct {
	TotalVotes    int
	WeightedVotes int
	TotalKarma    int

	// All averages are absent when TotalVotes is 0. AveragePositive and
	// AverageNegative are also absent when their side has no votes.
	AverageRating   Score
	AverageKarma    Score
	AveragePositive Score
	AverageNegative Score
}

// CalculateStats aggregates a tally. Averages are rounded to one decimal.
func CalculateStats(t Tally) Stats {
	var (
		totalPos, totalNeg       int
		weightedPos, weightedNeg int
		karmaPos, karmaNeg       int
	)
	for c, n := range t {
		if n <= 0 || !c.Valid() {
			continue
		}
		w := c.Weight()
		if c.Positive() {
			weightedPos += w * n
			karmaPos += (60 + (w-1)*20) * n // 60 / 80 / 100
			totalPos += n
		} else {
			weightedNeg += w * n
			karmaNeg += (60 - w*20) * n // 40 / 20 / 0
			totalNeg += n
		}
	}

	s := Stats{
		TotalVotes:    totalPos + totalNeg,
		WeightedVotes: weightedPos - weightedNeg,
		TotalKarma:    karmaPos + karmaNeg,
	}
	if s.TotalVotes == 0 {
		return s
	}
	s.AverageRating = some(round1(float64(s.WeightedVotes) / float64(s.TotalVotes)))
	s.AverageKarma = some(round1(float64(s.TotalKarma) / float64(s.TotalVotes)))
	if totalPos > 0 {
		s.AveragePositive = some(round1(float64(weightedPos) / float64(totalPos)))
	}
	if totalNeg > 0 {
		s.AverageNegative = some(round1(float64(weightedNeg) / float64(totalNeg)))
	}
	return s
}

// round1 rounds half up to one decimal (-0.25 becomes -0.2).
func round1(x float64) float64 {
	return math.Floor(x*10+0.5) / 10
}

// Verdict is the one-line judgement shown under the rating numbers.
func Verdict(s Stats, yesterday bool) string {
	if s.TotalVotes == 0 || !s.AverageRating.Valid {
		if yesterday {
			return "Looks like I didn't get any votes yesterday..."
		}
		return "Looks like I don't have any votes yet..."
	}
	switch r := s.AverageRating.Value; {
	case r < -2:
		return "Looks like it was an absolute nightmare of a track!"
	case r < -1:
		return "Best to just forget about this one, huh?"
	case r < 0:
		return "Not exactly a good track, but it could have been worse."
	case r < 1:
		return "An alright track, nothing special though."
	case r < 2:
		return "Pretty good track today, but not quite perfect."
	default:
		return "Absolutely fantastic track, definitely a highlight!"
	}
}
