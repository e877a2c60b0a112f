// Package backfill orchestrates the resumable day-by-day replay of usage
// data: date-range handling, the per-day service pipeline, the persisted
// completion ledger, and run progress reporting.
package backfill

import (
	"fmt"
	"time"
)

const (
	// MaxRangeDays is the hard cap on one backfill request.
	MaxRangeDays = 1000
	// WarnRangeDays is where we start suggesting smaller ranges.
	WarnRangeDays = 365

	dateLayout = "2006-01-02"
)

// ParseDate validates a YYYY-MM-DD string. Dates before 2020 or in the
// future are configuration errors.
func ParseDate(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	parsed, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: expected YYYY-MM-DD, got %q", name, raw)
	}
	if parsed.Year() < 2020 {
		return time.Time{}, fmt.Errorf("%s year %d is too old (minimum: 2020)", name, parsed.Year())
	}
	if parsed.After(time.Now().UTC()) {
		return time.Time{}, fmt.Errorf("%s %s is in the future", name, raw)
	}
	return parsed, nil
}

// Range is an inclusive span of calendar days, both bounds at midnight UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange parses and validates a start/end date pair.
func NewRange(startRaw, endRaw string) (Range, error) {
	start, err := ParseDate(startRaw, "start date")
	if err != nil {
		return Range{}, err
	}
	end, err := ParseDate(endRaw, "end date")
	if err != nil {
		return Range{}, err
	}
	if start.After(end) {
		return Range{}, fmt.Errorf("start date (%s) must be before or equal to end date (%s)", startRaw, endRaw)
	}
	r := Range{Start: start, End: end}
	if r.Days() > MaxRangeDays {
		return Range{}, fmt.Errorf("backfill range too large: %d days (maximum: %d days)", r.Days(), MaxRangeDays)
	}
	return r, nil
}

// LastNDays returns the range covering the n days ending today (UTC).
func LastNDays(n int) (Range, error) {
	if n < 1 {
		return Range{}, fmt.Errorf("days must be positive, got %d", n)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(n - 1))
	r := Range{Start: start, End: end}
	if r.Days() > MaxRangeDays {
		return Range{}, fmt.Errorf("backfill range too large: %d days (maximum: %d days)", r.Days(), MaxRangeDays)
	}
	return r, nil
}

// Days is the inclusive day count of the range.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Dates lists every day in the range, in order.
func (r Range) Dates() []time.Time {
	dates := make([]time.Time, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Contains reports whether the day falls inside the range.
func (r Range) Contains(day time.Time) bool {
	return !day.Before(r.Start) && !day.After(r.End)
}

// DayWindow returns the query window covering one calendar day.
func DayWindow(day time.Time) (from, to time.Time) {
	from = day.UTC().Truncate(24 * time.Hour)
	to = from.Add(24*time.Hour - time.Nanosecond)
	return from, to
}
