package pipeline

import (
	"errors"
	"log/slog"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/config"
	"dinsos-bot/internal/metrics"
	"dinsos-bot/internal/store"
)

// Deps are the collaborators of the standard pipeline.
type Deps struct {
	Clock       clock.Clock
	Activations store.Activations
	RateLimits  store.RateLimits
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// defaultPolicies lists the error policy of each filter when configuration
// does not override it. Opt-in and rate limiting protect resources and fail
// closed; the rest fail open.
var defaultPolicies = map[string]string{
	FilterSelfGroup:   config.PolicyFailOpen,
	FilterOldMessage:  config.PolicyFailOpen,
	FilterManualReply: config.PolicyFailOpen,
	FilterBlacklist:   config.PolicyFailOpen,
	FilterContext:     config.PolicyFailOpen,
	FilterOptIn:       config.PolicyFailClosed,
	FilterRateLimit:   config.PolicyFailClosed,
}

// Build assembles the standard seven-stage pipeline. Later stages rely on the
// earlier ones having run, so the order is fixed.
func Build(cfg *config.Bot, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config must not be nil")
	}
	if deps.Clock == nil {
		return nil, errors.New("pipeline: clock must not be nil")
	}
	if deps.Activations == nil {
		return nil, errors.New("pipeline: activation store must not be nil")
	}
	if deps.RateLimits == nil {
		return nil, errors.New("pipeline: rate limit store must not be nil")
	}
	kw := Keywords{Bot: cfg.BotKeywords, Trigger: cfg.TriggerKeywords}

	filters := []Filter{
		SelfGroup{},
		OldMessage{Clock: deps.Clock, MaxAge: cfg.Limits.MessageMaxAge},
		ManualReply{Window: cfg.Limits.ManualReplyWindow},
		NewBlacklist(cfg.PersonalContacts),
		ContextDetector{Keywords: kw, PublicNamePatterns: cfg.PublicNamePatterns},
		OptIn{Store: deps.Activations, Keywords: kw, Clock: deps.Clock, Metrics: deps.Metrics},
		RateLimiter{
			Store:   deps.RateLimits,
			Clock:   deps.Clock,
			Max:     cfg.Limits.RateLimitMax,
			Window:  cfg.Limits.RateLimitWindow,
			Warning: cfg.Messages.RateLimitWarning,
			Metrics: deps.Metrics,
		},
	}

	stages := make([]Stage, 0, len(filters))
	for _, f := range filters {
		policy := cfg.Policy(f.Name(), defaultPolicies[f.Name()])
		stages = append(stages, Stage{Filter: f, OnError: ParsePolicy(policy)})
	}
	return New(deps.Logger, deps.Metrics, stages...)
}
