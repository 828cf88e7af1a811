// Package redisstore keeps rate-limit windows in Redis so that several bot
// instances share one counter per sender.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/domain"
)

const (
	defaultKeyPrefix = "dinsos:ratelimit:"

	// keyGrace keeps a window's key around after it resets so that a late
	// reader still sees the final count.
	keyGrace = time.Hour
)

// incrScript replaces a missing or expired window with count 1, otherwise
// increments it. Returns {count, reset_at_ms}.
var incrScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))
if reset == nil or now > reset then
	reset = now + tonumber(ARGV[2])
	redis.call('HSET', KEYS[1], 'count', 1, 'reset_at', reset)
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]) + tonumber(ARGV[3]))
	return {1, reset}
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, reset}
`)

// upsertScript overwrites the window and its key expiry together.
var upsertScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'count', ARGV[1], 'reset_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// redisAPI is the subset of *redis.Client used here.
type redisAPI interface {
	redis.Scripter
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

// RateLimits implements store.RateLimits.
type RateLimits struct {
	client redisAPI
	clock  clock.Clock
	prefix string
}

type Option func(*RateLimits)

// WithKeyPrefix namespaces keys, e.g. per environment.
func WithKeyPrefix(prefix string) Option {
	return func(r *RateLimits) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRateLimits(client redisAPI, clk clock.Clock, opts ...Option) (*RateLimits, error) {
	if client == nil {
		return nil, errors.New("redisstore: client must not be nil")
	}
	if clk == nil {
		return nil, errors.New("redisstore: clock must not be nil")
	}
	r := &RateLimits{client: client, clock: clk, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *RateLimits) key(sender string) string {
	return r.prefix + sender
}

func (r *RateLimits) GetRateLimit(ctx context.Context, sender string) (*domain.RateLimitRecord, error) {
	vals, err := r.client.HMGet(ctx, r.key(sender), "count", "reset_at").Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: GetRateLimit: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, nil
	}
	count, err := intField(vals[0])
	if err != nil {
		return nil, fmt.Errorf("redisstore: GetRateLimit count: %w", err)
	}
	resetAt, err := intField(vals[1])
	if err != nil {
		return nil, fmt.Errorf("redisstore: GetRateLimit reset_at: %w", err)
	}
	return &domain.RateLimitRecord{Sender: sender, Count: int(count), ResetAt: fromMillis(resetAt)}, nil
}

func (r *RateLimits) UpsertRateLimit(ctx context.Context, sender string, count int, resetAt time.Time) error {
	ttl := resetAt.Sub(r.clock.Now())
	if ttl < 0 {
		ttl = 0
	}
	ttl += keyGrace
	err := upsertScript.Run(ctx, r.client, []string{r.key(sender)},
		int64(count), resetAt.UnixMilli(), ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redisstore: UpsertRateLimit: %w", err)
	}
	return nil
}

func (r *RateLimits) IncrementRateLimit(ctx context.Context, sender string, now time.Time, window time.Duration) (domain.RateLimitRecord, error) {
	res, err := incrScript.Run(ctx, r.client, []string{r.key(sender)},
		now.UnixMilli(), window.Milliseconds(), keyGrace.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.RateLimitRecord{}, fmt.Errorf("redisstore: IncrementRateLimit: %w", err)
	}
	if len(res) != 2 {
		return domain.RateLimitRecord{}, fmt.Errorf("redisstore: IncrementRateLimit: unexpected reply length %d", len(res))
	}
	return domain.RateLimitRecord{Sender: sender, Count: int(res[0]), ResetAt: fromMillis(res[1])}, nil
}

func intField(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
