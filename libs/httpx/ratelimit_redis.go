package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimitOptions configures a RedisLimiter. Zero values fall back to 60 requests a minute
// under the "mentorslots:rl" prefix, failing closed.
type RedisLimitOptions struct {
	PerWindow int
	Window    time.Duration
	KeyPrefix string
	// FailOpen lets requests through while Redis is unreachable.
	FailOpen bool
	Logger   *slog.Logger
}

// RedisLimiter counts requests per client and route in a fixed window kept in Redis, so every
// booking-service replica draws from one budget.
type RedisLimiter struct {
	rdb  *redis.Client
	opts RedisLimitOptions
}

func NewRedisLimiter(rdb *redis.Client, opts RedisLimitOptions) *RedisLimiter {
	if opts.PerWindow <= 0 {
		opts.PerWindow = 60
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "mentorslots:rl"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RedisLimiter{rdb: rdb, opts: opts}
}

func (l *RedisLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			used, err := l.take(r.Context(), l.key(r))
			if err != nil {
				l.opts.Logger.Warn("rate limit store unavailable", "err", err, "fail_open", l.opts.FailOpen)
				if l.opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}
			remaining := l.opts.PerWindow - int(used)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.opts.PerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if used > int64(l.opts.PerWindow) {
				w.Header().Set("Retry-After", strconv.Itoa(int(l.opts.Window.Seconds())))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// key groups by method and path: slot searches and bookings are budgeted separately.
func (l *RedisLimiter) key(r *http.Request) string {
	return l.opts.KeyPrefix + ":" + r.Method + ":" + r.URL.Path + ":" + clientKey(r)
}

// take bumps the window counter and arms its expiry on first use.
func (l *RedisLimiter) take(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.opts.Window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
