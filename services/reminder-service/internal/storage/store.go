package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/model"
)

// Store reads reminder plans written by booking-service and owns reminder_records.
type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// Candidates returns planned reminders of scheduled sessions starting in [from, to] whose fire
// time is at or before now and that have not been recorded. The nearest session comes first so a
// reminder that keeps failing cannot hold the batch against sessions starting sooner.
func (s *Store) Candidates(ctx context.Context, from, to, now time.Time, limit int) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id::text, s.mentor_id, s.mentee_id, s.scheduled_at, s.status,
			r.offset_minutes, rr.session_id IS NOT NULL,
			s.contact_email, s.contact_phone, s.contact_telegram
		FROM session_reminders r
		JOIN sessions s ON s.id = r.session_id
		LEFT JOIN reminder_records rr
			ON rr.session_id = r.session_id AND rr.offset_minutes = r.offset_minutes
		WHERE s.status = 'scheduled'
			AND s.scheduled_at BETWEEN $1 AND $2
			AND s.scheduled_at - make_interval(mins => r.offset_minutes) <= $3
			AND rr.session_id IS NULL
		ORDER BY s.scheduled_at, r.offset_minutes DESC, s.id
		LIMIT $4
	`, from, to, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(
			&c.SessionID,
			&c.MentorID,
			&c.MenteeID,
			&c.ScheduledAt,
			&c.Status,
			&c.OffsetMinutes,
			&c.Recorded,
			&c.Contact.Email,
			&c.Contact.Phone,
			&c.Contact.Telegram,
		); err != nil {
			return nil, err
		}
		c.ScheduledAt = c.ScheduledAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordOutcome inserts rec unless a record for the same (session, offset) exists. inserted
// is false when another dispatcher got there first.
func (s *Store) RecordOutcome(ctx context.Context, rec model.Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO reminder_records (session_id, offset_minutes, sent_at, outcome, channel)
		VALUES ($1::uuid, $2, $3, $4, $5)
		ON CONFLICT (session_id, offset_minutes) DO NOTHING
	`, rec.SessionID, rec.OffsetMinutes, rec.SentAt, rec.Outcome, rec.Channel)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Records lists the reminder records of one session ordered by offset, largest first.
func (s *Store) Records(ctx context.Context, sessionID string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id::text, offset_minutes, sent_at, outcome, channel
		FROM reminder_records
		WHERE session_id::text = $1
		ORDER BY offset_minutes DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var rec model.Record
		if err := rows.Scan(&rec.SessionID, &rec.OffsetMinutes, &rec.SentAt, &rec.Outcome, &rec.Channel); err != nil {
			return nil, err
		}
		rec.SentAt = rec.SentAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
