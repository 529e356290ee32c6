package booking

import (
	"context"
	"sync"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/outbox"
)

// memStore serializes transactions behind a mutex and enforces the same per-mentor overlap rule
// as the sessions_no_overlap exclusion constraint.
type memStore struct {
	mu       sync.Mutex
	timezone string
	windows  []model.AvailabilityWindow
	sessions []model.Session
	keys     map[string]string
	plans    map[string][]int
	events   []outbox.Event

	// hideSessions makes reads miss committed sessions, as a concurrent uncommitted insert would.
	hideSessions bool
	txErr        error
	clock        func() time.Time
}

func newMemStore(windows ...model.AvailabilityWindow) *memStore {
	return &memStore{
		windows: windows,
		keys:    map[string]string{},
		plans:   map[string][]int{},
		clock:   func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, keys: map[string]string{}, plans: map[string][]int{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.sessions = append(m.sessions, tx.sessions...)
	for k, v := range tx.keys {
		m.keys[k] = v
	}
	for k, v := range tx.plans {
		m.plans[k] = v
	}
	m.events = append(m.events, tx.events...)
	for id, c := range tx.cancelled {
		for i := range m.sessions {
			if m.sessions[i].ID == id {
				at := c
				m.sessions[i].Status = model.StatusCancelled
				m.sessions[i].CancelledAt = &at
			}
		}
	}
	return nil
}

func (m *memStore) session(id string) (model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return model.Session{}, false
}

func (m *memStore) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if !s.Cancelled() {
			n++
		}
	}
	return n
}

type memTx struct {
	store     *memStore
	sessions  []model.Session
	keys      map[string]string
	plans     map[string][]int
	events    []outbox.Event
	cancelled map[string]time.Time
}

func (t *memTx) MentorTimezone(context.Context, string) (string, error) {
	return t.store.timezone, nil
}

func (t *memTx) ListWindows(_ context.Context, mentorID string) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	for _, w := range t.store.windows {
		if w.MentorID == "" || w.MentorID == mentorID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (t *memTx) ListActiveSessions(_ context.Context, mentorID string, from, to time.Time) ([]model.Session, error) {
	if t.store.hideSessions {
		return nil, nil
	}
	var out []model.Session
	for _, s := range append(append([]model.Session(nil), t.store.sessions...), t.sessions...) {
		if s.MentorID == mentorID && !s.Cancelled() && s.ScheduledAt.Before(to) && s.EndsAt().After(from) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) LockIdempotencyKey(_ context.Context, mentorID, key string) (string, error) {
	return t.store.keys[mentorID+"/"+key], nil
}

func (t *memTx) FinalizeIdempotency(_ context.Context, mentorID, key, sessionID string) error {
	t.keys[mentorID+"/"+key] = sessionID
	return nil
}

func (t *memTx) GetSessionForUpdate(_ context.Context, mentorID, sessionID string) (model.Session, error) {
	for _, s := range t.store.sessions {
		if s.ID == sessionID && s.MentorID == mentorID {
			return s, nil
		}
	}
	return model.Session{}, model.ErrNotFound
}

func (t *memTx) InsertSession(_ context.Context, s model.Session) (model.Session, error) {
	iv := availability.Interval{Start: s.ScheduledAt, End: s.EndsAt()}
	for _, other := range append(append([]model.Session(nil), t.store.sessions...), t.sessions...) {
		if other.MentorID != s.MentorID || other.Cancelled() {
			continue
		}
		if availability.Overlaps(iv, availability.Interval{Start: other.ScheduledAt, End: other.EndsAt()}) {
			return model.Session{}, model.ErrSessionOverlap
		}
	}
	s.CreatedAt = t.store.clock()
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *memTx) CancelSession(_ context.Context, _, sessionID, _ string) (time.Time, error) {
	if t.cancelled == nil {
		t.cancelled = map[string]time.Time{}
	}
	at := t.store.clock()
	t.cancelled[sessionID] = at
	return at, nil
}

func (t *memTx) InsertReminderPlan(_ context.Context, sessionID string, offsets []int) error {
	t.plans[sessionID] = offsets
	return nil
}

func (t *memTx) InsertOutbox(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}
