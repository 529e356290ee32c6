package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/mentorslots/libs/db"
	otelx "github.com/md-rashed-zaman/mentorslots/libs/otel"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/reminders"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultStoreTimeout = 3 * time.Second
	maxDurationMinutes  = int(availability.MaxDuration / time.Minute)
)

// Tx is the transactional view of the booking store. Every method runs inside the transaction
// opened by Store.InTx.
type Tx interface {
	availability.Store

	// LockIdempotencyKey claims (mentorID, key) for the rest of the transaction and returns the
	// session id a previous request stored under it, or "".
	LockIdempotencyKey(ctx context.Context, mentorID, key string) (string, error)
	FinalizeIdempotency(ctx context.Context, mentorID, key, sessionID string) error

	GetSessionForUpdate(ctx context.Context, mentorID, sessionID string) (model.Session, error)
	// InsertSession returns model.ErrSessionOverlap when the store's overlap constraint rejects the row.
	InsertSession(ctx context.Context, s model.Session) (model.Session, error)
	CancelSession(ctx context.Context, mentorID, sessionID, reason string) (time.Time, error)

	InsertReminderPlan(ctx context.Context, sessionID string, offsetMinutes []int) error
	InsertOutbox(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Request struct {
	MentorID        string
	MenteeID        string
	Start           time.Time
	DurationMinutes int
	Contact         model.Contact
	IdempotencyKey  string
}

type Config struct {
	StoreTimeout time.Duration
	Now          func() time.Time
	NewID        func() string
}

// Committer claims slots. The overlap check runs inside the same transaction as the insert and the
// store's exclusion constraint is the final arbiter, so concurrent commits across replicas never
// produce overlapping sessions.
type Committer struct {
	store   Store
	policy  policy.Provider
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string
	tracer  trace.Tracer
}

func NewCommitter(store Store, offsets policy.Provider, logger *slog.Logger, cfg Config) *Committer {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if offsets == nil {
		offsets = policy.NewStaticProvider(nil)
	}
	return &Committer{
		store:   store,
		policy:  offsets,
		logger:  logger,
		timeout: cfg.StoreTimeout,
		now:     cfg.Now,
		newID:   cfg.NewID,
		tracer:  otelx.Tracer("booking-service/booking"),
	}
}

// Commit books req and plans its reminders before returning. Errors are *ValidationError,
// *ConflictError or wrap ErrStoreUnavailable.
func (c *Committer) Commit(ctx context.Context, req Request) (model.Session, error) {
	ctx, span := c.tracer.Start(ctx, "booking.commit", trace.WithAttributes(
		attribute.String("mentor.id", req.MentorID),
		attribute.Int("session.duration_minutes", req.DurationMinutes),
	))
	defer span.End()

	session, err := c.commit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Session{}, err
	}
	span.SetAttributes(attribute.String("session.id", session.ID))
	return session, nil
}

func (c *Committer) commit(ctx context.Context, req Request) (model.Session, error) {
	req = normalizeRequest(req)
	if err := validate(req); err != nil {
		return model.Session{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	offsets := c.reminderOffsets(storeCtx, req.MentorID)

	var created model.Session
	var replayed bool
	err := c.store.InTx(storeCtx, func(ctx context.Context, tx Tx) error {
		if req.IdempotencyKey != "" {
			prior, err := tx.LockIdempotencyKey(ctx, req.MentorID, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if prior != "" {
				s, err := tx.GetSessionForUpdate(ctx, req.MentorID, prior)
				if err != nil {
					return fmt.Errorf("load replayed session: %w", err)
				}
				created, replayed = s, true
				return nil
			}
		}

		now := c.now().UTC()
		loc, err := availability.MentorLocation(ctx, tx, c.logger, req.MentorID)
		if err != nil {
			return err
		}
		start := req.Start.UTC()
		iv := availability.Interval{Start: start, End: start.Add(time.Duration(req.DurationMinutes) * time.Minute)}
		plan, err := availability.LoadAround(ctx, tx, c.logger, req.MentorID, iv, loc)
		if err != nil {
			return err
		}
		switch plan.Check(iv, now) {
		case availability.Taken:
			return &ConflictError{Reason: SlotTaken}
		case availability.Unavailable:
			return &ConflictError{Reason: SlotUnavailable}
		}

		s, err := tx.InsertSession(ctx, model.Session{
			ID:              c.newID(),
			MentorID:        req.MentorID,
			MenteeID:        req.MenteeID,
			ScheduledAt:     start,
			DurationMinutes: req.DurationMinutes,
			Status:          model.StatusScheduled,
			Contact:         req.Contact,
		})
		if errors.Is(err, model.ErrSessionOverlap) {
			return &ConflictError{Reason: SlotTaken}
		}
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		planned := reminders.OffsetMinutes(reminders.Plan(start, offsets))
		if len(planned) > 0 {
			if err := tx.InsertReminderPlan(ctx, s.ID, planned); err != nil {
				return fmt.Errorf("insert reminder plan: %w", err)
			}
		}

		evt, err := bookedEvent(s, planned)
		if err != nil {
			return err
		}
		if err := tx.InsertOutbox(ctx, evt); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		if req.IdempotencyKey != "" {
			if err := tx.FinalizeIdempotency(ctx, req.MentorID, req.IdempotencyKey, s.ID); err != nil {
				return fmt.Errorf("finalize idempotency key: %w", err)
			}
		}
		created = s
		return nil
	})
	if err != nil {
		return model.Session{}, classify(err)
	}

	if replayed {
		c.logger.Info("session commit replayed", "mentor_id", req.MentorID, "session_id", created.ID)
	} else {
		c.logger.Info("session booked", "mentor_id", req.MentorID, "session_id", created.ID, "scheduled_at", created.ScheduledAt)
	}
	return created, nil
}

// Cancel marks a scheduled session cancelled. Cancelling an already cancelled session returns it
// unchanged. The reminder sweep stops picking the session up on its next tick.
func (c *Committer) Cancel(ctx context.Context, mentorID, sessionID, reason string) (model.Session, error) {
	mentorID = strings.TrimSpace(mentorID)
	sessionID = strings.TrimSpace(sessionID)
	if mentorID == "" {
		return model.Session{}, invalid("mentor_id", "required")
	}
	if sessionID == "" {
		return model.Session{}, invalid("session_id", "required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out model.Session
	err := c.store.InTx(storeCtx, func(ctx context.Context, tx Tx) error {
		s, err := tx.GetSessionForUpdate(ctx, mentorID, sessionID)
		if err != nil {
			return err
		}
		if s.Cancelled() {
			out = s
			return nil
		}
		if s.Status != model.StatusScheduled {
			return ErrNotCancellable
		}
		at, err := tx.CancelSession(ctx, mentorID, sessionID, strings.TrimSpace(reason))
		if err != nil {
			return fmt.Errorf("cancel session: %w", err)
		}
		s.Status = model.StatusCancelled
		s.CancelledAt = &at
		s.CancelReason = strings.TrimSpace(reason)

		evt, err := cancelledEvent(s)
		if err != nil {
			return err
		}
		if err := tx.InsertOutbox(ctx, evt); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		out = s
		c.logger.Info("session cancelled", "mentor_id", mentorID, "session_id", sessionID)
		return nil
	})
	if err != nil {
		return model.Session{}, classify(err)
	}
	return out, nil
}

func (c *Committer) reminderOffsets(ctx context.Context, mentorID string) []time.Duration {
	offsets, err := c.policy.ReminderOffsets(ctx, mentorID)
	if err != nil {
		c.logger.Warn("reminder offsets lookup failed, using defaults", "mentor_id", mentorID, "err", err)
		return policy.DefaultOffsets()
	}
	if len(offsets) == 0 {
		return policy.DefaultOffsets()
	}
	return offsets
}

func normalizeRequest(req Request) Request {
	req.MentorID = strings.TrimSpace(req.MentorID)
	req.MenteeID = strings.TrimSpace(req.MenteeID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.Contact.Email = strings.TrimSpace(req.Contact.Email)
	req.Contact.Phone = strings.TrimSpace(req.Contact.Phone)
	req.Contact.Telegram = strings.TrimSpace(req.Contact.Telegram)
	return req
}

func validate(req Request) error {
	switch {
	case req.MentorID == "":
		return invalid("mentor_id", "required")
	case req.MenteeID == "":
		return invalid("mentee_id", "required")
	case req.MentorID == req.MenteeID:
		return invalid("mentee_id", "must differ from mentor_id")
	case req.Start.IsZero():
		return invalid("start_time", "required")
	case req.Start.Second() != 0 || req.Start.Nanosecond() != 0:
		return invalid("start_time", "must fall on a whole minute")
	case req.DurationMinutes <= 0:
		return invalid("duration_minutes", "must be positive")
	case req.DurationMinutes > maxDurationMinutes:
		return invalid("duration_minutes", fmt.Sprintf("must be at most %d", maxDurationMinutes))
	case len(req.IdempotencyKey) > 200:
		return invalid("idempotency_key", "too long")
	}
	return nil
}

func classify(err error) error {
	var ve *ValidationError
	var ce *ConflictError
	switch {
	case errors.As(err, &ve), errors.As(err, &ce):
		return err
	case errors.Is(err, model.ErrNotFound), errors.Is(err, ErrNotCancellable):
		return err
	case db.IsNotFound(err):
		return model.ErrNotFound
	case db.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

type sessionEvent struct {
	SessionID       string `json:"session_id"`
	MentorID        string `json:"mentor_id"`
	MenteeID        string `json:"mentee_id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	ReminderOffsets []int  `json:"reminder_offsets_minutes,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func bookedEvent(s model.Session, offsets []int) (outbox.Event, error) {
	return newEvent(outbox.TopicSessionBooked, sessionEvent{
		SessionID:       s.ID,
		MentorID:        s.MentorID,
		MenteeID:        s.MenteeID,
		ScheduledAt:     s.ScheduledAt.UTC().Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		ReminderOffsets: offsets,
	})
}

func cancelledEvent(s model.Session) (outbox.Event, error) {
	evt := sessionEvent{
		SessionID:       s.ID,
		MentorID:        s.MentorID,
		MenteeID:        s.MenteeID,
		ScheduledAt:     s.ScheduledAt.UTC().Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		Reason:          s.CancelReason,
	}
	if s.CancelledAt != nil {
		evt.CancelledAt = s.CancelledAt.UTC().Format(time.RFC3339)
	}
	return newEvent(outbox.TopicSessionCancelled, evt)
}

func newEvent(topic string, payload sessionEvent) (outbox.Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return outbox.Event{}, fmt.Errorf("marshal %s: %w", topic, err)
	}
	return outbox.Event{AggregateType: "session", AggregateID: payload.SessionID, EventType: topic, Payload: body}, nil
}
