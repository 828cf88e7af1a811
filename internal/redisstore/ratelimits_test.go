package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/store"
	"dinsos-bot/internal/store/storetest"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type window struct {
	count   int64
	resetAt int64
	ttl     int64
}

// fakeRedis runs the Go equivalent of each known script. Key expiry is only
// recorded, never applied.
type fakeRedis struct {
	mu      sync.Mutex
	windows map[string]*window
	err     error
	evals   int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{windows: make(map[string]*window)}
}

func arg(args []interface{}, i int) int64 {
	switch v := args[i].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	key := keys[0]
	switch sha {
	case incrScript.Hash():
		now, win, grace := arg(args, 0), arg(args, 1), arg(args, 2)
		w, ok := f.windows[key]
		if !ok || now > w.resetAt {
			w = &window{count: 1, resetAt: now + win, ttl: win + grace}
			f.windows[key] = w
			return redis.NewCmdResult([]interface{}{int64(1), w.resetAt}, nil)
		}
		w.count++
		return redis.NewCmdResult([]interface{}{w.count, w.resetAt}, nil)
	case upsertScript.Hash():
		f.windows[key] = &window{count: arg(args, 0), resetAt: arg(args, 1), ttl: arg(args, 2)}
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("NOSCRIPT No matching script"))
}

func (f *fakeRedis) Eval(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("fake: Eval not supported"))
}

func (f *fakeRedis) EvalRO(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("fake: EvalRO not supported"))
}

func (f *fakeRedis) EvalShaRO(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("fake: EvalShaRO not supported"))
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", errors.New("fake: ScriptLoad not supported"))
}

func (f *fakeRedis) HMGet(_ context.Context, key string, fields ...string) *redis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewSliceResult(nil, f.err)
	}
	vals := make([]interface{}, len(fields))
	w, ok := f.windows[key]
	if !ok {
		return redis.NewSliceResult(vals, nil)
	}
	for i, field := range fields {
		switch field {
		case "count":
			vals[i] = strconv.FormatInt(w.count, 10)
		case "reset_at":
			vals[i] = strconv.FormatInt(w.resetAt, 10)
		}
	}
	return redis.NewSliceResult(vals, nil)
}

func TestRateLimits_Contract(t *testing.T) {
	storetest.RunRateLimits(t, func(t *testing.T) store.RateLimits {
		r, err := NewRateLimits(newFakeRedis(), clock.NewManual(base))
		require.NoError(t, err)
		return r
	})
}

func TestNewRateLimits_Validation(t *testing.T) {
	_, err := NewRateLimits(nil, clock.System{})
	require.Error(t, err)
	_, err = NewRateLimits(newFakeRedis(), nil)
	require.Error(t, err)
}

func TestRateLimits_KeysAndExpiry(t *testing.T) {
	api := newFakeRedis()
	r, err := NewRateLimits(api, clock.NewManual(base), WithKeyPrefix("test:rl:"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.IncrementRateLimit(ctx, "62811", base, time.Hour)
	require.NoError(t, err)
	w, ok := api.windows["test:rl:62811"]
	require.True(t, ok)
	require.Equal(t, (time.Hour + keyGrace).Milliseconds(), w.ttl)

	require.NoError(t, r.UpsertRateLimit(ctx, "62811", 0, base.Add(10*time.Minute)))
	require.Equal(t, (10*time.Minute + keyGrace).Milliseconds(), api.windows["test:rl:62811"].ttl)

	require.NoError(t, r.UpsertRateLimit(ctx, "old", 3, base.Add(-time.Hour)))
	require.Equal(t, keyGrace.Milliseconds(), api.windows["test:rl:old"].ttl)
}

func TestRateLimits_Errors(t *testing.T) {
	api := newFakeRedis()
	api.err = errors.New("connection refused")
	r, err := NewRateLimits(api, clock.NewManual(base))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.GetRateLimit(ctx, "a")
	require.ErrorContains(t, err, "redisstore: GetRateLimit")
	_, err = r.IncrementRateLimit(ctx, "a", base, time.Hour)
	require.ErrorContains(t, err, "redisstore: IncrementRateLimit")
	require.ErrorContains(t, r.UpsertRateLimit(ctx, "a", 0, base), "redisstore: UpsertRateLimit")
}
