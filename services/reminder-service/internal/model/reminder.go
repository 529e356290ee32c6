package model

import "time"

const (
	SessionScheduled = "scheduled"

	OutcomeSent      = "sent"
	OutcomeDiscarded = "discarded"
)

// Contact is the set of addresses a mentee left at booking time. Any field may be empty.
type Contact struct {
	Email    string
	Phone    string
	Telegram string
}

func (c Contact) Empty() bool {
	return c.Email == "" && c.Phone == "" && c.Telegram == ""
}

// Candidate is one planned (session, offset) pair read by the sweep.
type Candidate struct {
	SessionID     string
	MentorID      string
	MenteeID      string
	ScheduledAt   time.Time
	Status        string
	OffsetMinutes int
	Recorded      bool
	Contact       Contact
}

func (c Candidate) FireAt() time.Time {
	return c.ScheduledAt.Add(-time.Duration(c.OffsetMinutes) * time.Minute)
}

// Task is a reminder that is due and has not been recorded yet.
type Task struct {
	SessionID     string
	MentorID      string
	MenteeID      string
	ScheduledAt   time.Time
	OffsetMinutes int
	FireAt        time.Time
	Contact       Contact
}

// Record marks a (session, offset) pair as handled. It is written once and never updated.
type Record struct {
	SessionID     string
	OffsetMinutes int
	SentAt        time.Time
	Outcome       string
	Channel       string
}
