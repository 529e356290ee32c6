package policy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "mentorslots:reminder_offsets:"

type cachedProvider struct {
	next   Provider
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedProvider keeps resolved offsets in Redis for ttl. Redis failures fall through to next.
func NewCachedProvider(next Provider, client *redis.Client, ttl time.Duration, logger *slog.Logger) Provider {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cachedProvider{next: next, client: client, ttl: ttl, logger: logger}
}

func (p *cachedProvider) ReminderOffsets(ctx context.Context, mentorID string) ([]time.Duration, error) {
	key := cacheKeyPrefix + mentorID
	raw, err := p.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if offsets, ok := ParseOffsets(raw); ok {
			return offsets, nil
		}
	case !errors.Is(err, redis.Nil):
		p.logger.Warn("reminder offsets cache read failed", "mentor_id", mentorID, "err", err)
	}

	offsets, err := p.next.ReminderOffsets(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if err := p.client.Set(ctx, key, FormatOffsets(offsets), p.ttl).Err(); err != nil {
		p.logger.Warn("reminder offsets cache write failed", "mentor_id", mentorID, "err", err)
	}
	return offsets, nil
}
