package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q querier
}

const sessionColumns = `
	id::text, mentor_id, mentee_id, scheduled_at, duration_minutes, status,
	contact_email, contact_phone, contact_telegram, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func (r queries) MentorTimezone(ctx context.Context, mentorID string) (string, error) {
	var tz string
	err := r.q.QueryRow(ctx, `SELECT timezone FROM mentor_settings WHERE mentor_id = $1`, mentorID).Scan(&tz)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return tz, err
}

func (r queries) MentorReminderOffsets(ctx context.Context, mentorID string) (string, bool, error) {
	var raw string
	err := r.q.QueryRow(ctx, `SELECT reminder_offsets FROM mentor_settings WHERE mentor_id = $1`, mentorID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, raw != "", nil
}

func (r queries) ListWindows(ctx context.Context, mentorID string) ([]model.AvailabilityWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, mentor_id, is_available, recurring,
			COALESCE(day_of_week, 0), COALESCE(start_minute, 0), COALESCE(end_minute, 0),
			start_utc, end_utc, timezone_offset_minutes, timezone
		FROM availability_windows
		WHERE mentor_id = $1 AND archived_at IS NULL
		ORDER BY created_at, id
	`, mentorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		var startUTC, endUTC *time.Time
		if err := rows.Scan(
			&w.ID,
			&w.MentorID,
			&w.IsAvailable,
			&w.Recurring,
			&w.DayOfWeek,
			&w.StartMinute,
			&w.EndMinute,
			&startUTC,
			&endUTC,
			&w.OffsetMinutes,
			&w.Timezone,
		); err != nil {
			return nil, err
		}
		if startUTC != nil {
			w.StartUTC = startUTC.UTC()
		}
		if endUTC != nil {
			w.EndUTC = endUTC.UTC()
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (r queries) ListActiveSessions(ctx context.Context, mentorID string, from, to time.Time) ([]model.Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE mentor_id = $1
			AND status <> 'cancelled'
			AND scheduled_at < $3
			AND ends_at > $2
		ORDER BY scheduled_at ASC
	`, mentorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r queries) ListSessions(ctx context.Context, mentorID string, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE mentor_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2
	`, mentorID, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]model.Session, error) {
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	var duration *int
	var cancelledAt *time.Time
	err := row.Scan(
		&s.ID,
		&s.MentorID,
		&s.MenteeID,
		&s.ScheduledAt,
		&duration,
		&s.Status,
		&s.Contact.Email,
		&s.Contact.Phone,
		&s.Contact.Telegram,
		&cancelledAt,
		&s.CancelReason,
		&s.CreatedAt,
	)
	if err != nil {
		return model.Session{}, err
	}
	if duration != nil {
		s.DurationMinutes = *duration
	}
	s.ScheduledAt = s.ScheduledAt.UTC()
	s.CancelledAt = cancelledAt
	return s, nil
}
