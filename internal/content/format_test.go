package content

import (
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0:00.000"},
		{42123, "0:42.123"},
		{61005, "1:01.005"},
		{599999, "9:59.999"},
		{600050, "10:00.050"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.ms); got != tt.want {
			t.Fatalf("FormatTime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestStripFormatting(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"Plain", "Plain"},
		{"$o$fffWinter$z Ride", "Winter Ride"},
		{"$i$s$F00Red", "Red"},
		{"$l[https://example.org]Link$l", "Link"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripFormatting(tt.in); got != tt.want {
			t.Fatalf("StripFormatting(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCycleDate(t *testing.T) {
	t.Parallel()
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, 5, 1, 18, 59, 0, 0, paris), "2024-04-30"},
		{time.Date(2024, 5, 1, 19, 0, 0, 0, paris), "2024-05-01"},
		// day after the spring clock change
		{time.Date(2024, 3, 31, 19, 30, 0, 0, paris), "2024-03-31"},
		{time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC), "2024-05-01"},
	}
	for _, tt := range tests {
		if got := CycleDate(tt.at, paris, 19).Format(time.DateOnly); got != tt.want {
			t.Fatalf("CycleDate(%v) = %s, want %s", tt.at, got, tt.want)
		}
	}
}
