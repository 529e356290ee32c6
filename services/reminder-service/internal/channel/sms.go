package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SMSWebhook posts {to, body, template_id} to an HTTP SMS gateway.
type SMSWebhook struct {
	url   string
	token string
	http  *http.Client
}

func NewSMSWebhook(url, token string) *SMSWebhook {
	return &SMSWebhook{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *SMSWebhook) Name() string { return "sms" }

func (s *SMSWebhook) Validate(recipient string) error {
	_, err := normalizePhone(recipient)
	return err
}

func (s *SMSWebhook) Send(ctx context.Context, msg Message) error {
	if s.url == "" {
		return errors.New("sms webhook url not configured")
	}
	to, err := normalizePhone(msg.Recipient)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(map[string]string{
		"to":          to,
		"body":        msg.Body,
		"template_id": msg.TemplateID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: sms gateway rejected %s (%d)", ErrInvalidRecipient, to, resp.StatusCode)
	default:
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
}

// normalizePhone strips common separators and accepts E.164-shaped numbers.
func normalizePhone(raw string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(raw))
	digits := strings.TrimPrefix(cleaned, "+")
	if len(digits) < 7 || len(digits) > 15 || digits[0] == '0' {
		return "", fmt.Errorf("%w: phone %q", ErrInvalidRecipient, raw)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: phone %q", ErrInvalidRecipient, raw)
		}
	}
	return "+" + digits, nil
}
