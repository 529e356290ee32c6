package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/outbox"
)

// Store is the PostgreSQL booking store. Its own methods read through the pool; InTx hands out a
// transactional view for the committer.
type Store struct {
	queries
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{queries: queries{q: pool}, pool: pool, outbox: outboxRepo}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txStore{queries: queries{q: tx}, tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	queries
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *txStore) LockIdempotencyKey(ctx context.Context, mentorID, key string) (string, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO session_idempotency_keys (mentor_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (mentor_id, idempotency_key) DO NOTHING
	`, mentorID, key); err != nil {
		return "", err
	}
	var sessionID string
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(session_id::text, '')
		FROM session_idempotency_keys
		WHERE mentor_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, mentorID, key).Scan(&sessionID)
	return sessionID, err
}

func (t *txStore) FinalizeIdempotency(ctx context.Context, mentorID, key, sessionID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE session_idempotency_keys
		SET session_id = $3, updated_at = now()
		WHERE mentor_id = $1 AND idempotency_key = $2
	`, mentorID, key, sessionID)
	return err
}

func (t *txStore) GetSessionForUpdate(ctx context.Context, mentorID, sessionID string) (model.Session, error) {
	s, err := scanSession(t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id::text = $1 AND mentor_id = $2
		FOR UPDATE
	`, sessionID, mentorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrNotFound
	}
	return s, err
}

func (t *txStore) InsertSession(ctx context.Context, s model.Session) (model.Session, error) {
	var duration *int
	if s.DurationMinutes > 0 {
		duration = &s.DurationMinutes
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sessions
			(id, mentor_id, mentee_id, scheduled_at, duration_minutes, ends_at, status,
			 contact_email, contact_phone, contact_telegram)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, s.ID, s.MentorID, s.MenteeID, s.ScheduledAt, duration, s.EndsAt(), s.Status,
		s.Contact.Email, s.Contact.Phone, s.Contact.Telegram).Scan(&s.CreatedAt)
	if db.HasCode(err, db.CodeExclusionViolation) {
		return model.Session{}, model.ErrSessionOverlap
	}
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func (t *txStore) CancelSession(ctx context.Context, mentorID, sessionID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE sessions
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($3, '')
		WHERE id::text = $1 AND mentor_id = $2
		RETURNING cancelled_at
	`, sessionID, mentorID, reason).Scan(&cancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, model.ErrNotFound
	}
	return cancelledAt, err
}

func (t *txStore) InsertReminderPlan(ctx context.Context, sessionID string, offsetMinutes []int) error {
	offsets := make([]int32, 0, len(offsetMinutes))
	for _, m := range offsetMinutes {
		if m <= 0 || m > math.MaxInt32 {
			return fmt.Errorf("reminder offset %d minutes out of range", m)
		}
		offsets = append(offsets, int32(m))
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO session_reminders (session_id, offset_minutes)
		SELECT $1::uuid, unnest($2::int[])
		ON CONFLICT (session_id, offset_minutes) DO NOTHING
	`, sessionID, offsets)
	return err
}

func (t *txStore) InsertOutbox(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

var (
	_ booking.Store = (*Store)(nil)
	_ booking.Tx    = (*txStore)(nil)
)
