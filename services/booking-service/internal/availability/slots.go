package availability

import "time"

// DefaultStep is the spacing between candidate starts when the caller does not pick one.
const DefaultStep = 15 * time.Minute

// Slot is a candidate session start. It is computed per query and never stored.
type Slot struct {
	Start     time.Time
	Duration  time.Duration
	Available bool
}

func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End()}
}

// Generate walks every window from its start in step increments and emits a candidate wherever a
// session of the given duration still fits. Step is independent of duration, so candidates may
// overlap each other. Windows are concatenated without dedup.
func Generate(windows []Interval, duration, step time.Duration) []Slot {
	if duration <= 0 {
		return nil
	}
	if step <= 0 {
		step = DefaultStep
	}
	var out []Slot
	for _, w := range windows {
		for _, start := range Steps(w, duration, step) {
			out = append(out, Slot{Start: start, Duration: duration, Available: true})
		}
	}
	return out
}
