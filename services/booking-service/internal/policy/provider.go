package policy

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/reminders"
)

const maxOffsetMinutes = int(reminders.MaxOffset / time.Minute)

// Provider returns the reminder offsets a mentor wants before each session.
type Provider interface {
	ReminderOffsets(ctx context.Context, mentorID string) ([]time.Duration, error)
}

// DefaultOffsets applies whenever a mentor has no usable setting.
func DefaultOffsets() []time.Duration {
	return []time.Duration{60 * time.Minute, 30 * time.Minute, 10 * time.Minute, time.Minute}
}

// ParseOffsets reads a comma separated list of minutes. Non-numeric, non-positive, repeated and
// longer-than-reminders.MaxOffset entries are dropped. ok is false when nothing usable remains.
func ParseOffsets(raw string) ([]time.Duration, bool) {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 || mins > maxOffsetMinutes {
			continue
		}
		d := time.Duration(mins) * time.Minute
		if !slices.Contains(offsets, d) {
			offsets = append(offsets, d)
		}
	}
	return offsets, len(offsets) > 0
}

// FormatOffsets is the inverse of ParseOffsets.
func FormatOffsets(offsets []time.Duration) string {
	parts := make([]string, 0, len(offsets))
	for _, o := range offsets {
		parts = append(parts, strconv.Itoa(int(o/time.Minute)))
	}
	return strings.Join(parts, ",")
}

type staticProvider struct {
	offsets []time.Duration
}

func NewStaticProvider(offsets []time.Duration) Provider {
	if len(offsets) == 0 {
		offsets = DefaultOffsets()
	}
	return &staticProvider{offsets: offsets}
}

func (p *staticProvider) ReminderOffsets(_ context.Context, _ string) ([]time.Duration, error) {
	return slices.Clone(p.offsets), nil
}
