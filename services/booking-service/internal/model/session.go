package model

import (
	"errors"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// DefaultSessionMinutes is the length assumed for a session whose duration was never recorded.
const DefaultSessionMinutes = 60

var (
	ErrNotFound       = errors.New("not found")
	ErrSessionOverlap = errors.New("session overlaps an existing session")
)

type Contact struct {
	Email    string
	Phone    string
	Telegram string
}

type Session struct {
	ID              string
	MentorID        string
	MenteeID        string
	ScheduledAt     time.Time
	DurationMinutes int
	Status          string
	Contact         Contact
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
}

func (s Session) Duration() time.Duration {
	if s.DurationMinutes <= 0 {
		return DefaultSessionMinutes * time.Minute
	}
	return time.Duration(s.DurationMinutes) * time.Minute
}

func (s Session) EndsAt() time.Time {
	return s.ScheduledAt.Add(s.Duration())
}

func (s Session) Cancelled() bool {
	return s.Status == StatusCancelled
}
