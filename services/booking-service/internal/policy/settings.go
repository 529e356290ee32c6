package policy

import (
	"context"
	"log/slog"
	"time"
)

// SettingsStore reads the raw per-mentor reminder setting. found is false when the mentor has
// never saved one.
type SettingsStore interface {
	MentorReminderOffsets(ctx context.Context, mentorID string) (raw string, found bool, err error)
}

type settingsProvider struct {
	store    SettingsStore
	logger   *slog.Logger
	fallback []time.Duration
}

// NewSettingsProvider reads offsets from mentor settings and falls back when the setting is
// absent or unparseable. Store errors are returned so the caller decides what to do.
func NewSettingsProvider(store SettingsStore, logger *slog.Logger, fallback []time.Duration) Provider {
	if len(fallback) == 0 {
		fallback = DefaultOffsets()
	}
	return &settingsProvider{store: store, logger: logger, fallback: fallback}
}

func (p *settingsProvider) ReminderOffsets(ctx context.Context, mentorID string) ([]time.Duration, error) {
	raw, found, err := p.store.MentorReminderOffsets(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if !found {
		return append([]time.Duration(nil), p.fallback...), nil
	}
	offsets, ok := ParseOffsets(raw)
	if !ok {
		p.logger.Warn("unparseable reminder offsets, using defaults", "mentor_id", mentorID, "raw", raw)
		return append([]time.Duration(nil), p.fallback...), nil
	}
	return offsets, nil
}
