package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
)

type fakeStore struct {
	timezone string
	windows  []model.AvailabilityWindow
	sessions []model.Session
	err      error

	sessionCalls int
}

func (f *fakeStore) MentorTimezone(context.Context, string) (string, error) {
	return f.timezone, f.err
}

func (f *fakeStore) ListWindows(context.Context, string) ([]model.AvailabilityWindow, error) {
	return f.windows, f.err
}

func (f *fakeStore) ListActiveSessions(_ context.Context, _ string, from, to time.Time) ([]model.Session, error) {
	f.sessionCalls++
	var out []model.Session
	for _, s := range f.sessions {
		if s.Cancelled() {
			continue
		}
		if s.ScheduledAt.Before(to) && s.EndsAt().After(from) {
			out = append(out, s)
		}
	}
	return out, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mondayMorning() model.AvailabilityWindow {
	return model.AvailabilityWindow{ID: "mon", IsAvailable: true, Recurring: true, DayOfWeek: int(time.Monday), StartMinute: 9 * 60, EndMinute: 10 * 60}
}

func newTestFinder(store Store, now time.Time) *Finder {
	return NewFinder(store, discardLogger(), FinderConfig{Now: func() time.Time { return now }})
}

func TestFinderRecurringMondayScenario(t *testing.T) {
	store := &fakeStore{timezone: "America/New_York", windows: []model.AvailabilityWindow{mondayMorning()}}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slots, err := newTestFinder(store, now).Slots(context.Background(), Query{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: 15 * time.Minute, Step: 15 * time.Minute})
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	ny := mustLoad(t, "America/New_York")
	local := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, ny) }
	expectStarts(t, slots, local(9, 0), local(9, 15), local(9, 30), local(9, 45))
}

func TestFinderExistingBookingScenario(t *testing.T) {
	store := &fakeStore{
		windows: []model.AvailabilityWindow{mondayMorning()},
		sessions: []model.Session{
			{ID: "s1", ScheduledAt: at(9, 15), DurationMinutes: 15, Status: model.StatusScheduled},
			{ID: "s2", ScheduledAt: at(9, 45), DurationMinutes: 15, Status: model.StatusCancelled},
		},
	}
	slots, err := newTestFinder(store, at(0, 0)).Slots(context.Background(), Query{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: 15 * time.Minute})
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	expectStarts(t, slots, at(9, 0), at(9, 30), at(9, 45))
}

func TestFinderSkipsMalformedWindows(t *testing.T) {
	store := &fakeStore{windows: []model.AvailabilityWindow{
		{ID: "broken", IsAvailable: true, EndUTC: at(12, 0)},
		mondayMorning(),
	}}
	slots, err := newTestFinder(store, at(0, 0)).Slots(context.Background(), Query{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: 30 * time.Minute, Step: 30 * time.Minute})
	if err != nil {
		t.Fatalf("malformed window must not fail the query: %v", err)
	}
	expectStarts(t, slots, at(9, 0), at(9, 30))
}

func TestFinderAppliesBlackouts(t *testing.T) {
	store := &fakeStore{windows: []model.AvailabilityWindow{
		mondayMorning(),
		{ID: "dentist", IsAvailable: false, StartUTC: at(9, 20), EndUTC: at(9, 40)},
	}}
	slots, err := newTestFinder(store, at(0, 0)).Slots(context.Background(), Query{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: 15 * time.Minute})
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	expectStarts(t, slots, at(9, 0), at(9, 45))
}

func TestFinderNoWindowsSkipsSessionLookup(t *testing.T) {
	store := &fakeStore{}
	slots, err := newTestFinder(store, at(0, 0)).Slots(context.Background(), Query{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: 15 * time.Minute})
	if err != nil || len(slots) != 0 {
		t.Fatalf("expected no slots, got %v (%v)", slots, err)
	}
	if store.sessionCalls != 0 {
		t.Fatalf("expected no session lookup, got %d", store.sessionCalls)
	}
}

func TestFinderValidatesQuery(t *testing.T) {
	f := newTestFinder(&fakeStore{}, at(0, 0))
	bad := []Query{
		{Day: Day{2026, time.March, 2}, Duration: time.Minute},
		{MentorID: "m1", Duration: time.Minute},
		{MentorID: "m1", Day: Day{2026, time.March, 2}},
		{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: 9 * time.Hour},
		{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: time.Minute, Step: -time.Minute},
	}
	for i, q := range bad {
		if _, err := f.Slots(context.Background(), q); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("case %d: expected ErrInvalidQuery, got %v", i, err)
		}
	}
}

func TestFinderPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	_, err := newTestFinder(&fakeStore{err: storeErr}, at(0, 0)).Slots(context.Background(), Query{MentorID: "m1", Day: Day{2026, time.March, 2}, Duration: time.Minute})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestDayPlanCheck(t *testing.T) {
	plan := DayPlan{
		Open:      []Interval{{at(9, 0), at(12, 0)}},
		Blackouts: []Interval{{at(11, 0), at(11, 30)}},
		Bookings:  []Interval{{at(10, 0), at(10, 30)}},
	}
	now := at(8, 0)
	cases := []struct {
		iv   Interval
		want Verdict
	}{
		{Interval{at(9, 0), at(9, 30)}, Fits},
		{Interval{at(9, 30), at(10, 0)}, Fits},
		{Interval{at(9, 50), at(10, 20)}, Taken},
		{Interval{at(11, 15), at(11, 45)}, Unavailable},
		{Interval{at(11, 45), at(12, 15)}, Unavailable},
		{Interval{at(7, 0), at(7, 30)}, Unavailable},
	}
	for i, tc := range cases {
		if got := plan.Check(tc.iv, now); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}
