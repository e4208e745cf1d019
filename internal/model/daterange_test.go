package model

import (
	"testing"
	"time"
)

func TestDateRange(t *testing.T) {
	start := time.Date(2025, 3, 29, 15, 4, 0, 0, time.UTC)
	end := time.Date(2025, 4, 1, 23, 0, 0, 0, time.UTC)
	r, err := NewRange(start, end)
	if err != nil {
		t.Fatalf("new range: %v", err)
	}
	if r.Nights() != 3 {
		t.Fatalf("nights = %d, want 3", r.Nights())
	}
	days := r.Days()
	want := []string{"2025-03-29", "2025-03-30", "2025-03-31"}
	for i, d := range days {
		if FormatDate(d) != want[i] {
			t.Fatalf("day %d = %s, want %s", i, FormatDate(d), want[i])
		}
	}
	if r.String() != "[2025-03-29, 2025-04-01)" {
		t.Fatalf("string = %s", r)
	}

	if _, err := NewRange(start, start); err == nil {
		t.Fatal("empty range must be rejected")
	}
	if _, err := NewRange(end, start); err == nil {
		t.Fatal("inverted range must be rejected")
	}
	if (DateRange{Start: end, End: start}).Nights() != 0 {
		t.Fatal("inverted range has no nights")
	}
	if SingleDay(start).Nights() != 1 {
		t.Fatal("single day covers one date")
	}
}

func TestNightsOverLongRanges(t *testing.T) {
	cases := []struct {
		start, end time.Time
		want       int
	}{
		// 400 Gregorian years are exactly 146097 days.
		{time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC), 146097},
		{time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), 3652058},
		{time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 2},
	}
	for _, c := range cases {
		r, err := NewRange(c.start, c.end)
		if err != nil {
			t.Fatalf("new range %s..%s: %v", FormatDate(c.start), FormatDate(c.end), err)
		}
		if got := r.Nights(); got != c.want {
			t.Errorf("%s nights = %d, want %d", r, got, c.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil || d.Location() != time.UTC || d.Day() != 29 {
		t.Fatalf("parse leap day: %v %v", d, err)
	}
	for _, s := range []string{"", "2024-02-30", "29/02/2024", "2024-2-1"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q) accepted", s)
		}
	}
}

func TestBookingStatusTerminal(t *testing.T) {
	for s, want := range map[BookingStatus]bool{
		BookingPending:   false,
		BookingConfirmed: false,
		BookingCompleted: true,
		BookingCancelled: true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s terminal = %v, want %v", s, !want, want)
		}
	}
}

func TestParseResourceKind(t *testing.T) {
	if k, err := ParseResourceKind(" Hotel "); err != nil || k != KindHotel {
		t.Fatalf("hotel: %v %v", k, err)
	}
	if _, err := ParseResourceKind("cruise"); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
