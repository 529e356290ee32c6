package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
)

// ErrInvalidWindow marks an availability record that cannot be turned into an interval.
// Callers skip such records instead of failing the whole query.
var ErrInvalidWindow = errors.New("invalid availability window")

const minutesPerDay = 24 * 60

// Day is a civil date with no location attached.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return DayOf(t), nil
}

// DayOf returns the calendar date of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// AddDays returns the calendar day n days after d (before it when n is negative).
func (d Day) AddDays(n int) Day {
	return DayOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

func (d Day) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// At returns the instant minute minutes after local midnight of d in loc. Wall-clock times that a
// DST transition skips are moved forward by the gap; ambiguous ones resolve to the first occurrence.
func (d Day) At(minute int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, minute, 0, 0, loc)
}

// Bounds is local midnight to the following local midnight, in UTC.
func (d Day) Bounds(loc *time.Location) Interval {
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	end := time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc)
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// LoadLocation resolves an IANA zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Normalize converts w into the UTC interval it covers on day. ok is false when the window
// does not apply to that day. mentorLoc is used for recurring windows that carry no zone.
//
// One-off windows keep their stored UTC instants; the window's zone (its IANA name when present,
// else its recorded offset, else UTC) only decides which local day they fall on, and the result
// is clipped to that day.
func Normalize(w model.AvailabilityWindow, day Day, mentorLoc *time.Location) (Interval, bool, error) {
	if mentorLoc == nil {
		mentorLoc = time.UTC
	}
	if w.Recurring {
		return normalizeRecurring(w, day, mentorLoc)
	}
	return normalizeOneOff(w, day)
}

func normalizeRecurring(w model.AvailabilityWindow, day Day, mentorLoc *time.Location) (Interval, bool, error) {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return Interval{}, false, fmt.Errorf("%w: day_of_week %d", ErrInvalidWindow, w.DayOfWeek)
	}
	if w.StartMinute < 0 || w.EndMinute > minutesPerDay || w.StartMinute >= w.EndMinute {
		return Interval{}, false, fmt.Errorf("%w: local range %d-%d", ErrInvalidWindow, w.StartMinute, w.EndMinute)
	}
	loc := mentorLoc
	if strings.TrimSpace(w.Timezone) != "" {
		l, err := LoadLocation(w.Timezone)
		if err != nil {
			return Interval{}, false, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		loc = l
	}
	if day.Weekday() != time.Weekday(w.DayOfWeek) {
		return Interval{}, false, nil
	}
	iv := Interval{Start: day.At(w.StartMinute, loc).UTC(), End: day.At(w.EndMinute, loc).UTC()}
	if !iv.Valid() {
		// Only possible when a DST jump swallows the whole window.
		return Interval{}, false, nil
	}
	return iv, true, nil
}

func normalizeOneOff(w model.AvailabilityWindow, day Day) (Interval, bool, error) {
	iv := Interval{Start: w.StartUTC.UTC(), End: w.EndUTC.UTC()}
	if !iv.Valid() {
		return Interval{}, false, fmt.Errorf("%w: instants %s..%s", ErrInvalidWindow, w.StartUTC, w.EndUTC)
	}
	loc, err := oneOffLocation(w)
	if err != nil {
		return Interval{}, false, err
	}
	clipped, ok := Clip(iv, day.Bounds(loc))
	return clipped, ok, nil
}

func oneOffLocation(w model.AvailabilityWindow) (*time.Location, error) {
	if strings.TrimSpace(w.Timezone) != "" {
		loc, err := LoadLocation(w.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		return loc, nil
	}
	if w.OffsetMinutes == nil || *w.OffsetMinutes == 0 {
		return time.UTC, nil
	}
	off := *w.OffsetMinutes
	if off < -14*60 || off > 14*60 {
		return nil, fmt.Errorf("%w: offset %d minutes", ErrInvalidWindow, off)
	}
	return time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", off/60, abs(off%60)), off*60), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
