package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/mentorslots/libs/config"
	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/channel"
)

// buildChannels creates the channels named in NOTIFY_CHANNELS in preference order. A channel
// whose provider is not configured is skipped with a warning. The returned func releases
// client resources.
func buildChannels(logger *slog.Logger) ([]channel.Channel, func(), error) {
	var out []channel.Channel
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, name := range config.List("NOTIFY_CHANNELS", "telegram,email,sms,inapp") {
		switch strings.ToLower(name) {
		case "email":
			out = append(out, channel.NewEmail(
				config.String("SMTP_HOST", "mailpit"),
				config.String("SMTP_PORT", "1025"),
				config.String("SMTP_FROM", "no-reply@mentorslots.local"),
			))
		case "sms":
			switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
			case "webhook":
				out = append(out, channel.NewSMSWebhook(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", "")))
			case "noop":
				out = append(out, channel.NewNoop("sms"))
			default:
				closeAll()
				return nil, nil, fmt.Errorf("unknown SMS_PROVIDER %q", config.String("SMS_PROVIDER", ""))
			}
		case "telegram":
			token := config.String("TELEGRAM_BOT_TOKEN", "")
			if token == "" {
				logger.Warn("telegram channel skipped: TELEGRAM_BOT_TOKEN not set")
				continue
			}
			tg, err := channel.NewTelegram(token, config.String("TELEGRAM_API_URL", ""))
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			out = append(out, tg)
		case "inapp":
			brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
			if len(brokers) == 0 {
				logger.Warn("inapp channel skipped: KAFKA_BROKERS not set")
				continue
			}
			ch, w := channel.NewKafkaInApp(brokers, config.String("KAFKA_REMINDER_TOPIC", channel.TopicReminderDue))
			closers = append(closers, func() { _ = w.Close() })
			out = append(out, ch)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown notification channel %q", name)
		}
	}
	if len(out) == 0 {
		closeAll()
		return nil, nil, fmt.Errorf("no notification channel configured")
	}
	return out, closeAll, nil
}
