package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/model"
	"github.com/segmentio/kafka-go"
)

func TestRouterPicksFirstUsableChannel(t *testing.T) {
	r := NewRouter(NewNoop("telegram"), NewEmail("localhost", "1025", ""), NewSMSWebhook("http://sms", ""))

	cases := []struct {
		name    string
		contact model.Contact
		want    string
		addr    string
	}{
		{name: "telegram first", contact: model.Contact{Telegram: "42", Email: "a@example.com"}, want: "telegram", addr: "42"},
		{name: "falls back to email", contact: model.Contact{Email: " a@example.com "}, want: "email", addr: "a@example.com"},
		{name: "skips bad email", contact: model.Contact{Email: "nope", Phone: "+1 (555) 010-9999"}, want: "sms", addr: "+1 (555) 010-9999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			route, err := r.Pick(model.Task{Contact: tc.contact})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if route.Channel.Name() != tc.want || route.Recipient != tc.addr {
				t.Fatalf("expected %s/%s, got %s/%s", tc.want, tc.addr, route.Channel.Name(), route.Recipient)
			}
		})
	}
}

func TestRouterNoUsableContact(t *testing.T) {
	r := NewRouter(NewEmail("localhost", "1025", ""), nil)
	if _, err := r.Pick(model.Task{}); !IsInvalidRecipient(err) {
		t.Fatalf("expected invalid recipient, got %v", err)
	}
	_, err := r.Pick(model.Task{Contact: model.Contact{Email: "not-an-address"}})
	if !IsInvalidRecipient(err) || !strings.Contains(err.Error(), "email:") {
		t.Fatalf("expected email reason, got %v", err)
	}
}

func TestRouterInAppUsesMenteeID(t *testing.T) {
	r := NewRouter(NewEmail("localhost", "1025", ""), NewInApp(&fakeWriter{}, ""))
	route, err := r.Pick(model.Task{MenteeID: "mentee-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Channel.Name() != "inapp" || route.Recipient != "mentee-1" {
		t.Fatalf("unexpected route %s/%s", route.Channel.Name(), route.Recipient)
	}
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("from@example.com", "to@example.com", "Session\r\nBcc: x@example.com", "hello")
	if !strings.Contains(msg, "Subject: Session  Bcc: x@example.com\r\n") {
		t.Fatalf("subject not flattened: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nhello\r\n") {
		t.Fatalf("unexpected body: %q", msg)
	}
}

func TestEmailValidate(t *testing.T) {
	e := NewEmail("localhost", "1025", "")
	if err := e.Validate("Ada <ada@example.com>"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	for _, bad := range []string{"", "ada", "ada@"} {
		if err := e.Validate(bad); !IsInvalidRecipient(err) {
			t.Fatalf("%q: expected invalid recipient, got %v", bad, err)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+1 555-010-9999": "+15550109999",
		"4915112345678":   "+4915112345678",
	}
	for in, want := range cases {
		got, err := normalizePhone(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %q, got %q (%v)", in, want, got, err)
		}
	}
	for _, bad := range []string{"", "12345", "+0123456789", "555-CALL-NOW"} {
		if _, err := normalizePhone(bad); !IsInvalidRecipient(err) {
			t.Fatalf("%q: expected invalid recipient, got %v", bad, err)
		}
	}
}

func TestSMSWebhookSend(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		switch got["to"] {
		case "+15550000000":
			w.WriteHeader(http.StatusUnprocessableEntity)
		case "+15551111111":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	s := NewSMSWebhook(srv.URL, "secret")
	ctx := context.Background()
	if err := s.Send(ctx, Message{Recipient: "+1 555 010 9999", Body: "hi", TemplateID: TemplateSessionReminder}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if auth != "Bearer secret" || got["to"] != "+15550109999" || got["template_id"] != TemplateSessionReminder {
		t.Fatalf("unexpected request auth=%q body=%v", auth, got)
	}

	if err := s.Send(ctx, Message{Recipient: "+15550000000"}); !IsInvalidRecipient(err) {
		t.Fatalf("expected invalid recipient on 422, got %v", err)
	}
	err := s.Send(ctx, Message{Recipient: "+15551111111"})
	if err == nil || IsInvalidRecipient(err) {
		t.Fatalf("expected retryable error on 502, got %v", err)
	}
}

func TestSMSWebhookRequiresURL(t *testing.T) {
	err := NewSMSWebhook("", "").Send(context.Background(), Message{Recipient: "+15550109999"})
	if err == nil || IsInvalidRecipient(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTelegramChatID(t *testing.T) {
	if id, err := chatID("123456"); err != nil || id != int64(123456) {
		t.Fatalf("expected numeric chat id, got %v (%v)", id, err)
	}
	if id, err := chatID("@mentor_news"); err != nil || id != "@mentor_news" {
		t.Fatalf("expected channel username, got %v (%v)", id, err)
	}
	for _, bad := range []string{"", "0", "@abc", "@bad-name", "someone"} {
		if _, err := chatID(bad); !IsInvalidRecipient(err) {
			t.Fatalf("%q: expected invalid recipient, got %v", bad, err)
		}
	}
}

func TestTelegramSend(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1,"chat":{"id":42,"type":"private"},"text":"hi"}}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram("123:test-token", srv.URL)
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	if err := tg.Send(context.Background(), Message{Recipient: "42", Body: "hi"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one api call, got %d", calls)
	}
	if err := tg.Send(context.Background(), Message{Recipient: "nobody"}); !IsInvalidRecipient(err) {
		t.Fatalf("expected invalid recipient, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("invalid recipient must not reach the api, got %d calls", calls)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestInAppSend(t *testing.T) {
	w := &fakeWriter{}
	ch := NewInApp(w, "")
	err := ch.Send(context.Background(), Message{
		Recipient:  "mentee-1",
		TemplateID: TemplateSessionReminder,
		Body:       "soon",
		Data:       map[string]string{"session_id": "s1"},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != TopicReminderDue || string(msg.Key) != "mentee-1" {
		t.Fatalf("unexpected topic/key %s/%s", msg.Topic, msg.Key)
	}
	if meta := kafkax.ExtractEventMeta(msg); meta.EventID == "" || meta.EventType != TopicReminderDue {
		t.Fatalf("unexpected meta %+v", meta)
	}
	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["mentee_id"] != "mentee-1" || payload["body"] != "soon" {
		t.Fatalf("unexpected payload %v", payload)
	}

	w.err = errors.New("broker down")
	if err := ch.Send(context.Background(), Message{Recipient: "mentee-1"}); err == nil || IsInvalidRecipient(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
