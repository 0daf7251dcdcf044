// Package window splits a requested date range into matching periods and
// derives the search windows used for secondary and historical product
// queries.
package window

import "time"

// DefaultFrequencyDays is the default period length. Weekly periods are
// snapped to calendar weeks (Monday through Sunday); any other frequency
// starts exactly at the requested date.
const DefaultFrequencyDays = 7

// Period is one contiguous time window within the overall query range.
// Start and End are calendar dates, both inclusive.
type Period struct {
	Index int
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on or between the period bounds.
func (p Period) Contains(t time.Time) bool {
	d := Date(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Date truncates t to midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NearestPreviousMonday returns the Monday on or before d. Passing a
// Monday is a no-op.
func NearestPreviousMonday(d time.Time) time.Time {
	d = Date(d)
	// time.Weekday counts Sunday as 0; shift so Monday is 0.
	back := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -back)
}

// NearestNextSunday returns the Sunday on or after d. Passing a Sunday
// is a no-op.
func NearestNextSunday(d time.Time) time.Time {
	d = Date(d)
	if d.Weekday() == time.Sunday {
		return d
	}
	return NearestPreviousMonday(d).AddDate(0, 0, 6)
}

// Sequence produces the ordered, non-overlapping, gap-free periods
// covering at least [start, end]. With the default weekly frequency the
// range is widened to whole calendar weeks; otherwise periods begin
// exactly at start and advance by freqDays.
func Sequence(start, end time.Time, freqDays int) []Period {
	if freqDays <= 0 {
		freqDays = DefaultFrequencyDays
	}

	start = Date(start)
	end = Date(end)
	if freqDays == DefaultFrequencyDays {
		start = NearestPreviousMonday(start)
		end = NearestNextSunday(end)
	}

	days := int(end.Sub(start).Hours() / 24)
	n := days / freqDays
	if days%freqDays != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}

	periods := make([]Period, 0, n)
	for i := 0; i < n; i++ {
		ps := start.AddDate(0, 0, i*freqDays)
		periods = append(periods, Period{
			Index: i,
			Start: ps,
			End:   ps.AddDate(0, 0, freqDays-1),
		})
	}
	return periods
}

// Secondary returns the symmetric search window around a primary
// product's acquisition time, inclusive of both bounds.
func Secondary(primary time.Time, deltaDays int) (time.Time, time.Time) {
	delta := time.Duration(deltaDays) * 24 * time.Hour
	return primary.Add(-delta), primary.Add(delta)
}

// Historical returns the lookback window used to find the same
// relative-orbit acquisition from the previous repeat cycle: a window
// starting offsetDays before the given acquisition date and spanning
// spanDays, both bounds inclusive.
func Historical(acquired time.Time, offsetDays, spanDays int) (time.Time, time.Time) {
	start := Date(acquired).AddDate(0, 0, -offsetDays)
	return start, start.AddDate(0, 0, spanDays)
}
