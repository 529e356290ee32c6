package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	otelx "github.com/md-rashed-zaman/mentorslots/libs/otel"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/channel"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDiscarded Status = "discarded"
)

type Result struct {
	Status  Status
	Channel string
	Reason  string
	// Duplicate is set when another dispatcher recorded the same reminder first.
	Duplicate bool
}

// Recorder persists reminder outcomes with insert-if-absent semantics.
type Recorder interface {
	RecordOutcome(ctx context.Context, rec model.Record) (inserted bool, err error)
}

// Picker chooses the channel and address for a task.
type Picker interface {
	Pick(task model.Task) (channel.Route, error)
}

type Config struct {
	SendTimeout  time.Duration
	StoreTimeout time.Duration
	Now          func() time.Time
}

type Dispatcher struct {
	router   Picker
	recorder Recorder
	logger   *slog.Logger
	cfg      Config
	tracer   trace.Tracer
}

func NewDispatcher(router Picker, recorder Recorder, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		router:   router,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
		tracer:   otelx.Tracer("reminder-service/dispatch"),
	}
}

// Dispatch sends one reminder and records the outcome.
//
// A send failure writes nothing, so the next sweep retries. An undeliverable recipient is
// recorded as discarded and never retried. Losing the record race to a concurrent sweep
// still counts as sent; the mentee may see the reminder twice.
func (d *Dispatcher) Dispatch(ctx context.Context, task model.Task) Result {
	ctx, span := d.tracer.Start(ctx, "reminder.dispatch", trace.WithAttributes(
		attribute.String("session.id", task.SessionID),
		attribute.Int("reminder.offset_minutes", task.OffsetMinutes),
	))
	defer span.End()

	log := d.logger.With("session_id", task.SessionID, "offset_minutes", task.OffsetMinutes)

	route, err := d.router.Pick(task)
	if err != nil {
		return d.discard(ctx, span, log, task, "", err)
	}
	span.SetAttributes(attribute.String("reminder.channel", route.Channel.Name()))

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err = route.Channel.Send(sendCtx, render(task, route.Recipient))
	cancel()
	if err != nil {
		if channel.IsInvalidRecipient(err) {
			return d.discard(ctx, span, log, task, route.Channel.Name(), err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		log.Warn("reminder send failed", "channel", route.Channel.Name(), "err", err)
		return Result{Status: StatusFailed, Channel: route.Channel.Name(), Reason: err.Error()}
	}

	inserted, err := d.record(ctx, task, model.OutcomeSent, route.Channel.Name())
	if err != nil {
		// Delivered but unrecorded: the next sweep sends again.
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
		log.Error("reminder sent but not recorded", "channel", route.Channel.Name(), "err", err)
		return Result{Status: StatusFailed, Channel: route.Channel.Name(), Reason: "record: " + err.Error()}
	}
	if !inserted {
		log.Info("reminder already recorded by a concurrent sweep", "channel", route.Channel.Name())
	} else {
		log.Info("reminder sent", "channel", route.Channel.Name(), "fire_at", task.FireAt)
	}
	return Result{Status: StatusSent, Channel: route.Channel.Name(), Duplicate: !inserted}
}

func (d *Dispatcher) discard(ctx context.Context, span trace.Span, log *slog.Logger, task model.Task, ch string, cause error) Result {
	span.SetAttributes(attribute.Bool("reminder.discarded", true))
	log.Warn("reminder discarded", "channel", ch, "reason", cause.Error())
	if _, err := d.record(ctx, task, model.OutcomeDiscarded, ch); err != nil {
		span.RecordError(err)
		log.Error("failed to record discarded reminder", "err", err)
	}
	return Result{Status: StatusDiscarded, Channel: ch, Reason: cause.Error()}
}

func (d *Dispatcher) record(ctx context.Context, task model.Task, outcome, ch string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	defer cancel()
	return d.recorder.RecordOutcome(ctx, model.Record{
		SessionID:     task.SessionID,
		OffsetMinutes: task.OffsetMinutes,
		SentAt:        d.cfg.Now().UTC(),
		Outcome:       outcome,
		Channel:       ch,
	})
}

func render(task model.Task, recipient string) channel.Message {
	startsAt := task.ScheduledAt.UTC().Format("Mon 02 Jan 15:04 MST")
	return channel.Message{
		Recipient:  recipient,
		TemplateID: channel.TemplateSessionReminder,
		Subject:    "Upcoming mentoring session",
		Body:       fmt.Sprintf("Reminder: your mentoring session starts in %s (%s).", humanOffset(task.OffsetMinutes), startsAt),
		Data: map[string]string{
			"session_id":     task.SessionID,
			"mentor_id":      task.MentorID,
			"scheduled_at":   task.ScheduledAt.UTC().Format(time.RFC3339),
			"offset_minutes": strconv.Itoa(task.OffsetMinutes),
		},
	}
}

func humanOffset(minutes int) string {
	switch {
	case minutes == 1:
		return "1 minute"
	case minutes%1440 == 0:
		if minutes == 1440 {
			return "1 day"
		}
		return strconv.Itoa(minutes/1440) + " days"
	case minutes%60 == 0:
		if minutes == 60 {
			return "1 hour"
		}
		return strconv.Itoa(minutes/60) + " hours"
	default:
		return strconv.Itoa(minutes) + " minutes"
	}
}
