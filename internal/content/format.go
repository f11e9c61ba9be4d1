package content

import (
	"strconv"
	"time"

	"github.com/dlclark/regexp2"
)

// formatting codes, see https://doc.maniaplanet.com/client/text-formatting
var formatCodes = regexp2.MustCompile(
	`(?<!\$)((?<d>\$+)\k<d>)?((?<=\$)(?!\$)|(\$([a-f\d]{1,3}|[ionmwsztg<>]|[lhp](\[[^\]]+\])?)))`,
	regexp2.IgnoreCase|regexp2.Multiline,
)

// StripFormatting removes Trackmania `$` text formatting codes.
func StripFormatting(s string) string {
	if s == "" {
		return s
	}
	out, err := formatCodes.Replace(s, "", -1, -1)
	if err != nil {
		return s
	}
	return out
}

// FormatTime renders milliseconds as m:ss.mmm.
func FormatTime(ms int) string {
	if ms < 0 {
		ms = 0
	}
	mins := ms / 60000
	secs := ms / 1000 % 60
	milli := ms % 1000

	b := make([]byte, 0, 10)
	b = strconv.AppendInt(b, int64(mins), 10)
	b = append(b, ':')
	if secs < 10 {
		b = append(b, '0')
	}
	b = strconv.AppendInt(b, int64(secs), 10)
	b = append(b, '.')
	switch {
	case milli < 10:
		b = append(b, '0', '0')
	case milli < 100:
		b = append(b, '0')
	}
	b = strconv.AppendInt(b, int64(milli), 10)
	return string(b)
}

// CycleDate returns the date of the cycle t falls in. A cycle starts at
// boundaryHour local time, so earlier hours belong to the previous date.
func CycleDate(t time.Time, loc *time.Location, boundaryHour int) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	d := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	if lt.Hour() < boundaryHour {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
