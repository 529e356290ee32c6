package model

import "time"

// AvailabilityWindow is a mentor-declared bookable window, or a blackout when IsAvailable is false.
//
// Recurring windows use DayOfWeek (0 = Sunday) with StartMinute/EndMinute measured from local
// midnight. One-off windows use StartUTC/EndUTC; OffsetMinutes is the mentor's UTC offset at
// authoring time and is nil when it was never captured.
type AvailabilityWindow struct {
	ID            string
	MentorID      string
	IsAvailable   bool
	Recurring     bool
	DayOfWeek     int
	StartMinute   int
	EndMinute     int
	StartUTC      time.Time
	EndUTC        time.Time
	OffsetMinutes *int
	Timezone      string
}
