package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

const TopicReminderDue = "mentorslots.reminder.due.v1"

// MessageWriter is the subset of *kafka.Writer the in-app channel needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// InApp publishes reminders to Kafka for the in-app notification feed. The recipient is the
// mentee id, which also keys the message.
type InApp struct {
	writer MessageWriter
	topic  string
	now    func() time.Time
}

func NewInApp(w MessageWriter, topic string) *InApp {
	if topic == "" {
		topic = TopicReminderDue
	}
	return &InApp{writer: w, topic: topic, now: time.Now}
}

// NewKafkaInApp dials nothing up front; kafka-go connects on first write.
func NewKafkaInApp(brokers []string, topic string) (*InApp, *kafka.Writer) {
	w := kafkax.NewWriter(brokers, "")
	return NewInApp(w, topic), w
}

func (k *InApp) Name() string { return "inapp" }

func (k *InApp) Validate(recipient string) error {
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("%w: empty mentee id", ErrInvalidRecipient)
	}
	return nil
}

func (k *InApp) Send(ctx context.Context, msg Message) error {
	if err := k.Validate(msg.Recipient); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"mentee_id":   msg.Recipient,
		"template_id": msg.TemplateID,
		"subject":     msg.Subject,
		"body":        msg.Body,
		"data":        msg.Data,
		"created_at":  k.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	headers := kafkax.MetaHeaders(kafkax.EventMeta{EventID: uuid.NewString(), EventType: k.topic})
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   k.topic,
		Key:     []byte(msg.Recipient),
		Value:   payload,
		Headers: kafkax.InjectTraceHeaders(ctx, headers),
	})
}
