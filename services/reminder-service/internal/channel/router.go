package channel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/model"
)

// Route is a channel picked for one task together with the address to use.
type Route struct {
	Channel   Channel
	Recipient string
}

// Router holds the configured channels in preference order.
type Router struct {
	channels []Channel
}

func NewRouter(channels ...Channel) *Router {
	var out []Channel
	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return &Router{channels: out}
}

func (r *Router) Names() []string {
	names := make([]string, 0, len(r.channels))
	for _, ch := range r.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Pick returns the first channel that has a valid address in the task. When every candidate
// address is missing or malformed the error wraps ErrInvalidRecipient.
func (r *Router) Pick(task model.Task) (Route, error) {
	var reasons []string
	for _, ch := range r.channels {
		addr := recipientFor(ch.Name(), task)
		if addr == "" {
			continue
		}
		if err := ch.Validate(addr); err != nil {
			reasons = append(reasons, ch.Name()+": "+err.Error())
			continue
		}
		return Route{Channel: ch, Recipient: addr}, nil
	}
	if len(reasons) == 0 {
		return Route{}, fmt.Errorf("%w: no usable contact for channels %s", ErrInvalidRecipient, strings.Join(r.Names(), ","))
	}
	return Route{}, fmt.Errorf("%w: %s", ErrInvalidRecipient, strings.Join(reasons, "; "))
}

func recipientFor(channel string, task model.Task) string {
	switch channel {
	case "email":
		return strings.TrimSpace(task.Contact.Email)
	case "sms":
		return strings.TrimSpace(task.Contact.Phone)
	case "telegram":
		return strings.TrimSpace(task.Contact.Telegram)
	case "inapp":
		return strings.TrimSpace(task.MenteeID)
	default:
		return ""
	}
}

// IsInvalidRecipient reports whether err can never succeed on retry.
func IsInvalidRecipient(err error) bool {
	return errors.Is(err, ErrInvalidRecipient)
}
