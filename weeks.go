package main

import (
	"errors"
	"fmt"
	"time"
)

const reportDateLayout = "01-02-2006"

// ErrBadDateFormat is returned for date tokens not in MM-DD-YYYY form.
// The whole request aborts; no partial result is produced.
var ErrBadDateFormat = errors.New("dates must be in MM-DD-YYYY")

func ParseReportDate(s string) (time.Time, error) {
	t, err := time.Parse(reportDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateFormat, s)
	}
	return t, nil
}

// mondayIndex returns the weekday index with Monday=0 .. Sunday=6.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekSpan is a queried date range aligned to natural Sunday-Saturday weeks.
// End is exclusive: the start of the day after the requested end date, so the
// final day is counted in full. When Same is set the span fits inside one
// natural week and is queried as an exact range instead of week-snapped.
type WeekSpan struct {
	Start        time.Time
	End          time.Time
	AlignedStart time.Time
	AlignedEnd   time.Time
	Weeks        int
	Same         bool
}

// AlignWeeks snaps a calendar date range to Sunday week boundaries. The start
// date moves back to its most recent Sunday; the end date is first extended by
// one day (inclusive end) and then moves forward to the next Sunday. A range
// that aligns to zero whole weeks still yields one bucket.
func AlignWeeks(start, end time.Time) WeekSpan {
	endIncl := end.AddDate(0, 0, 1)

	alignedStart := start
	if idx := mondayIndex(start); idx != 6 {
		alignedStart = start.AddDate(0, 0, -(idx + 1))
	}

	endIdx := mondayIndex(endIncl)
	var alignedEnd time.Time
	if endIdx != 6 {
		alignedEnd = endIncl.AddDate(0, 0, 6-endIdx)
	} else {
		alignedEnd = endIncl.AddDate(0, 0, 7)
	}

	span := WeekSpan{
		Start:        start,
		End:          endIncl,
		AlignedStart: alignedStart,
		AlignedEnd:   alignedEnd,
	}

	if endIncl.Sub(start) < 7*24*time.Hour && endIdx != 6 {
		span.Same = true
		span.Weeks = 1
		return span
	}

	span.Weeks = int(alignedEnd.Sub(alignedStart) / (7 * 24 * time.Hour))
	if span.Weeks < 1 {
		span.Weeks = 1
	}
	return span
}

// QueryRange returns the instant range the span's records are drawn from.
func (s WeekSpan) QueryRange() (time.Time, time.Time) {
	if s.Same {
		return s.Start, s.End
	}
	return s.AlignedStart, s.AlignedEnd
}

// WeekBucket is one 7-day (or exact-range) counting window.
type WeekBucket struct {
	Label string
	Start time.Time
	End   time.Time
}

// Buckets expands the span into sequential counting windows. A same-week span
// yields a single bucket labeled with the full range; otherwise each bucket is
// labeled with its week-start date.
func (s WeekSpan) Buckets() []WeekBucket {
	if s.Same {
		label := s.Start.Format("2006-01-02") + " - " + s.End.Format("2006-01-02")
		return []WeekBucket{{Label: label, Start: s.Start, End: s.End}}
	}
	buckets := make([]WeekBucket, 0, s.Weeks)
	for i := 0; i < s.Weeks; i++ {
		ws := s.AlignedStart.AddDate(0, 0, 7*i)
		buckets = append(buckets, WeekBucket{
			Label: ws.Format("2006-01-02"),
			Start: ws,
			End:   ws.AddDate(0, 0, 7),
		})
	}
	return buckets
}

// LastWeekRange returns the previous full Sunday-aligned week relative to now.
func LastWeekRange(now time.Time) (time.Time, time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sunday := day
	if idx := mondayIndex(day); idx != 6 {
		sunday = day.AddDate(0, 0, -(idx + 1))
	}
	return sunday.AddDate(0, 0, -7), sunday
}
