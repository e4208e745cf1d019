package model

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// DateRange is the half-open interval [Start, End) of calendar days.  For a
// hotel stay Start is the check-in and End the check-out date; a trip covers
// exactly its departure date.  Both ends are truncated to UTC midnight.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// NewRange builds [start, end) and rejects empty or inverted ranges.
func NewRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if !r.End.After(r.Start) {
		return DateRange{}, errors.New("end date must be after start date")
	}
	return r, nil
}

// SingleDay is the range covering just the date of t.
func SingleDay(t time.Time) DateRange {
	d := Day(t)
	return DateRange{Start: d, End: d.AddDate(0, 0, 1)}
}

const secondsPerDay = 24 * 60 * 60

// Nights is the number of days in the range.  It counts calendar days
// rather than dividing a time.Duration, which saturates near 292 years.
func (r DateRange) Nights() int {
	if !r.End.After(r.Start) {
		return 0
	}
	return int((Day(r.End).Unix() - Day(r.Start).Unix()) / secondsPerDay)
}

// Days lists every date in the range in ascending order.
func (r DateRange) Days() []time.Time {
	n := r.Nights()
	days := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, r.Start.AddDate(0, 0, i))
	}
	return days
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", FormatDate(r.Start), FormatDate(r.End))
}
