package pipeline

import (
	"context"
	"fmt"
	"time"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/metrics"
	"dinsos-bot/internal/store"
)

// RateLimiter admits at most Max messages per sender per Window. The message
// that first goes over the limit gets Warning as a reply; later ones in the
// same window are dropped silently.
type RateLimiter struct {
	Store   store.RateLimits
	Clock   clock.Clock
	Max     int
	Window  time.Duration
	Warning string
	Metrics *metrics.Metrics
}

func (RateLimiter) Name() string { return FilterRateLimit }

func (f RateLimiter) Check(ctx context.Context, msg domain.Message) (Verdict, error) {
	rec, err := f.Store.IncrementRateLimit(ctx, msg.Sender, f.Clock.Now(), f.Window)
	if err != nil {
		return Verdict{}, fmt.Errorf("pipeline: rate limit increment: %w", err)
	}
	// Compare the count as it stood before this message was counted.
	before := rec.Count - 1
	switch {
	case before < f.Max:
		return accept(fmt.Sprintf("%d/%d", rec.Count, f.Max)), nil
	case before == f.Max:
		f.Metrics.IncRateLimitWarnings()
		v := reject(fmt.Sprintf("rate limit reached (%d/%d)", before, f.Max))
		v.Reply = f.Warning
		return v, nil
	default:
		return reject(fmt.Sprintf("rate limit exceeded (%d/%d)", before, f.Max)), nil
	}
}
