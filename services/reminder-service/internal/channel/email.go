package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

// Email sends plain-text mail through an unauthenticated SMTP relay (Mailpit in dev).
type Email struct {
	host   string
	addr   string
	from   string
	dialer net.Dialer
}

func NewEmail(host, port, from string) *Email {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@mentorslots.local"
	}
	return &Email{
		host:   host,
		addr:   net.JoinHostPort(host, strings.TrimSpace(port)),
		from:   from,
		dialer: net.Dialer{Timeout: 5 * time.Second},
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Validate(recipient string) error {
	_, err := parseEmail(recipient)
	return err
}

func (e *Email) Send(ctx context.Context, msg Message) error {
	to, err := parseEmail(msg.Recipient)
	if err != nil {
		return err
	}

	conn, err := e.dialer.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, e.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if err := c.Mail(e.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		// 5xx on RCPT means the relay will never accept this mailbox.
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
		}
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(e.from, to, msg.Subject, msg.Body))); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

func parseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty email", ErrInvalidRecipient)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	return addr.Address, nil
}

func buildMessage(from, to, subject, body string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		oneLine(subject),
		body,
	)
}

// oneLine keeps header values from injecting extra headers.
func oneLine(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
