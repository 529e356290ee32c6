package reminders

import (
	"sort"
	"time"
)

// MaxOffset is the longest lead time a reminder may have.
const MaxOffset = 7 * 24 * time.Hour

// Reminder is one planned notification for a session.
type Reminder struct {
	Offset time.Duration
	FireAt time.Time
}

func (r Reminder) OffsetMinutes() int {
	return int(r.Offset / time.Minute)
}

// Plan computes the fire time start-offset for every distinct positive whole-minute offset up to
// MaxOffset. Fire times already behind the booking time stay in the plan; the sweep sends them on
// its next tick. The result is ordered by fire time.
func Plan(start time.Time, offsets []time.Duration) []Reminder {
	seen := make(map[time.Duration]bool, len(offsets))
	var out []Reminder
	for _, o := range offsets {
		o = o.Truncate(time.Minute)
		if o <= 0 || o > MaxOffset || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, Reminder{Offset: o, FireAt: start.Add(-o).UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// OffsetMinutes flattens a plan into the integer offsets the store keys reminders by.
func OffsetMinutes(plan []Reminder) []int {
	out := make([]int, 0, len(plan))
	for _, r := range plan {
		out = append(out, r.OffsetMinutes())
	}
	return out
}
