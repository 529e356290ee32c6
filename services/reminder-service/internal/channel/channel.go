package channel

import (
	"context"
	"errors"
)

// ErrInvalidRecipient marks a recipient no retry can fix: a malformed address or one the
// provider rejected outright.
var ErrInvalidRecipient = errors.New("invalid recipient")

const TemplateSessionReminder = "session_reminder"

type Message struct {
	Recipient  string
	TemplateID string
	Subject    string
	Body       string
	Data       map[string]string
}

// Channel delivers a rendered message. Delivery is at-least-once: callers tolerate
// duplicates.
type Channel interface {
	Name() string
	// Validate reports ErrInvalidRecipient when recipient can never be delivered to.
	Validate(recipient string) error
	Send(ctx context.Context, msg Message) error
}

// Noop accepts every message. It backs channels that are switched off in an environment.
type Noop struct {
	name string
}

func NewNoop(name string) *Noop {
	return &Noop{name: name}
}

func (n *Noop) Name() string { return n.name }

func (n *Noop) Validate(recipient string) error {
	if recipient == "" {
		return ErrInvalidRecipient
	}
	return nil
}

func (n *Noop) Send(context.Context, Message) error { return nil }
