package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
)

const (
	MaxDuration = 8 * time.Hour
	MaxStep     = 2 * time.Hour

	defaultStoreTimeout = 3 * time.Second
)

var ErrInvalidQuery = errors.New("invalid availability query")

// Store is the read side of availability: mentor settings, windows and the sessions that block them.
type Store interface {
	// MentorTimezone returns the mentor's IANA zone, or "" when none is configured.
	MentorTimezone(ctx context.Context, mentorID string) (string, error)
	ListWindows(ctx context.Context, mentorID string) ([]model.AvailabilityWindow, error)
	// ListActiveSessions returns non-cancelled sessions overlapping [from, to).
	ListActiveSessions(ctx context.Context, mentorID string, from, to time.Time) ([]model.Session, error)
}

// DayPlan is one mentor's normalized availability for one local day.
type DayPlan struct {
	Day       Day
	Location  *time.Location
	Open      []Interval
	Blackouts []Interval
	Bookings  []Interval
}

type Verdict int

const (
	Fits Verdict = iota
	Unavailable
	Taken
)

// MentorLocation resolves the mentor's configured zone. An unknown zone is logged and treated as UTC.
func MentorLocation(ctx context.Context, store Store, logger *slog.Logger, mentorID string) (*time.Location, error) {
	tz, err := store.MentorTimezone(ctx, mentorID)
	if err != nil {
		return nil, fmt.Errorf("load mentor timezone: %w", err)
	}
	loc, err := LoadLocation(tz)
	if err != nil {
		logger.Warn("unknown mentor timezone, using UTC", "mentor_id", mentorID, "timezone", tz, "err", err)
		return time.UTC, nil
	}
	return loc, nil
}

// zoneSkewDays bounds how many calendar days a window's own zone and the mentor's zone can
// disagree by (UTC offsets run from -12h to +14h).
const zoneSkewDays = 2

// LoadDay reads and normalizes everything needed to answer availability questions for the local
// day in loc. Open windows are those belonging to day; blackouts apply by instant, whichever local
// day their own zone puts them on. Malformed windows are logged and skipped.
func LoadDay(ctx context.Context, store Store, logger *slog.Logger, mentorID string, day Day, loc *time.Location) (DayPlan, error) {
	return loadPlan(ctx, store, logger, mentorID, day, loc, 0)
}

// LoadAround is LoadDay with open windows from every day a window zone could file iv's local
// day under. Commit uses it so any slot listed under any query date is recognized.
func LoadAround(ctx context.Context, store Store, logger *slog.Logger, mentorID string, iv Interval, loc *time.Location) (DayPlan, error) {
	return loadPlan(ctx, store, logger, mentorID, DayOf(iv.Start.In(loc)), loc, zoneSkewDays)
}

func loadPlan(ctx context.Context, store Store, logger *slog.Logger, mentorID string, day Day, loc *time.Location, openRadius int) (DayPlan, error) {
	windows, err := store.ListWindows(ctx, mentorID)
	if err != nil {
		return DayPlan{}, fmt.Errorf("list availability windows: %w", err)
	}

	plan := DayPlan{Day: day, Location: loc}
	span := day.Bounds(loc)
	for _, w := range windows {
		radius := zoneSkewDays
		if w.IsAvailable {
			radius = openRadius
		}
		for k := -radius; k <= radius; k++ {
			iv, ok, err := Normalize(w, day.AddDays(k), loc)
			if err != nil {
				logger.Warn("skipping malformed availability window", "mentor_id", mentorID, "window_id", w.ID, "err", err)
				break
			}
			if !ok {
				continue
			}
			if w.IsAvailable {
				plan.Open = append(plan.Open, iv)
				span = cover(span, iv)
			} else {
				plan.Blackouts = append(plan.Blackouts, iv)
			}
		}
	}
	if len(plan.Open) == 0 {
		return plan, nil
	}

	sessions, err := store.ListActiveSessions(ctx, mentorID, span.Start, span.End)
	if err != nil {
		return DayPlan{}, fmt.Errorf("list sessions: %w", err)
	}
	plan.Bookings = BookingIntervals(sessions)
	return plan, nil
}

// Slots returns the bookable candidates of the plan.
func (p DayPlan) Slots(duration, step time.Duration, now time.Time) []Slot {
	return Resolve(Generate(p.Open, duration, step), p.Blackouts, p.Bookings, now)
}

// Check tells whether a session occupying iv can be booked. It accepts exactly the intervals that
// Slots could produce at some step: inside a single open window, clear of blackouts and bookings,
// and starting after now.
func (p DayPlan) Check(iv Interval, now time.Time) Verdict {
	if OverlapsAny(iv, p.Bookings) {
		return Taken
	}
	if !iv.Start.After(now) || OverlapsAny(iv, p.Blackouts) {
		return Unavailable
	}
	for _, open := range p.Open {
		if open.Contains(iv) {
			return Fits
		}
	}
	return Unavailable
}

func cover(a, b Interval) Interval {
	if b.Start.Before(a.Start) {
		a.Start = b.Start
	}
	if b.End.After(a.End) {
		a.End = b.End
	}
	return a
}

type Query struct {
	MentorID string
	Day      Day
	Duration time.Duration
	Step     time.Duration
}

func (q Query) Validate() error {
	switch {
	case strings.TrimSpace(q.MentorID) == "":
		return fmt.Errorf("%w: mentor_id required", ErrInvalidQuery)
	case q.Day == (Day{}):
		return fmt.Errorf("%w: date required", ErrInvalidQuery)
	case q.Duration <= 0 || q.Duration > MaxDuration:
		return fmt.Errorf("%w: duration must be between 1 minute and %s", ErrInvalidQuery, MaxDuration)
	case q.Step < 0 || q.Step > MaxStep:
		return fmt.Errorf("%w: step must be at most %s", ErrInvalidQuery, MaxStep)
	}
	return nil
}

type FinderConfig struct {
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Finder answers availability queries. It holds no mutable state and is safe for concurrent use.
type Finder struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewFinder(store Store, logger *slog.Logger, cfg FinderConfig) *Finder {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Finder{store: store, logger: logger, timeout: cfg.StoreTimeout, now: cfg.Now}
}

func (f *Finder) Slots(ctx context.Context, q Query) ([]Slot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	loc, err := MentorLocation(storeCtx, f.store, f.logger, q.MentorID)
	if err != nil {
		return nil, err
	}
	plan, err := LoadDay(storeCtx, f.store, f.logger, q.MentorID, q.Day, loc)
	if err != nil {
		return nil, err
	}
	return plan.Slots(q.Duration, q.Step, f.now().UTC()), nil
}
