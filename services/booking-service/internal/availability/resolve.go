package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
)

// Resolve drops candidates that overlap a blackout or a booking, or that start at or before now.
// The survivors are returned in ascending start order.
func Resolve(candidates []Slot, blackouts, bookings []Interval, now time.Time) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		if !c.Start.After(now) {
			continue
		}
		iv := c.Interval()
		if OverlapsAny(iv, blackouts) || OverlapsAny(iv, bookings) {
			continue
		}
		c.Available = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// BookingIntervals returns the busy intervals of every session that is not cancelled.
func BookingIntervals(sessions []model.Session) []Interval {
	out := make([]Interval, 0, len(sessions))
	for _, s := range sessions {
		if s.Cancelled() {
			continue
		}
		out = append(out, Interval{Start: s.ScheduledAt.UTC(), End: s.EndsAt().UTC()})
	}
	return out
}
