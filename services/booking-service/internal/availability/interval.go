package availability

import (
	"sort"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Valid() bool {
	return !iv.Start.IsZero() && !iv.End.IsZero() && iv.End.After(iv.Start)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Contains reports whether other lies entirely inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Overlaps uses strict half-open semantics: intervals that only touch do not overlap,
// so back-to-back sessions are legal.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func OverlapsAny(iv Interval, others []Interval) bool {
	for _, o := range others {
		if Overlaps(iv, o) {
			return true
		}
	}
	return false
}

// Clip returns the part of iv inside bounds. ok is false when nothing is left.
func Clip(iv, bounds Interval) (Interval, bool) {
	out := iv
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	if !out.End.After(out.Start) {
		return Interval{}, false
	}
	return out, true
}

// Merge sorts intervals and joins the ones that overlap or touch.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.End.After(iv.Start) {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := make([]Interval, 0, len(sorted))
	for _, cur := range sorted {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}

// Subtract removes every block from base and returns what remains, in order.
func Subtract(base Interval, blocks []Interval) []Interval {
	if !base.End.After(base.Start) {
		return nil
	}
	var clipped []Interval
	for _, b := range blocks {
		if c, ok := Clip(b, base); ok {
			clipped = append(clipped, c)
		}
	}
	if len(clipped) == 0 {
		return []Interval{base}
	}

	var out []Interval
	cursor := base.Start
	for _, b := range Merge(clipped) {
		if b.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if base.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}

// Steps returns the start times of every length-sized interval inside iv, one per step,
// starting at iv.Start.
func Steps(iv Interval, length, step time.Duration) []time.Time {
	if length <= 0 || step <= 0 {
		return nil
	}
	var starts []time.Time
	for t := iv.Start; !t.Add(length).After(iv.End); t = t.Add(step) {
		starts = append(starts, t)
	}
	return starts
}
