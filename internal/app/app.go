// Package app assembles the message service from its parts. Both entry points
// use it so that Lambda and server mode run the same pipeline.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/config"
	"dinsos-bot/internal/dispatch"
	"dinsos-bot/internal/knowledge"
	"dinsos-bot/internal/metrics"
	"dinsos-bot/internal/pipeline"
	"dinsos-bot/internal/registration"
	"dinsos-bot/internal/store"
	"dinsos-bot/internal/usecase"
)

// Components are the backends chosen by an entry point.
type Components struct {
	Config *config.Bot
	Store  store.Store
	// RateLimits overrides Store for rate-limit windows when set.
	RateLimits store.RateLimits
	Sessions   registration.SessionStore
	// LLM may be nil; questions then get the AI fallback text.
	LLM     knowledge.LLMClient
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewMessageService(c Components) (*usecase.MessageService, error) {
	if c.Config == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if c.Store == nil {
		return nil, errors.New("app: store must not be nil")
	}
	if c.Sessions == nil {
		return nil, errors.New("app: session store must not be nil")
	}
	if c.Clock == nil {
		c.Clock = clock.System{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	limits := c.RateLimits
	if limits == nil {
		limits = c.Store
	}

	admission, err := pipeline.Build(c.Config, pipeline.Deps{
		Clock:       c.Clock,
		Activations: c.Store,
		RateLimits:  limits,
		Logger:      c.Logger,
		Metrics:     c.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build pipeline: %w", err)
	}

	machine, err := registration.NewMachine(c.Sessions, c.Store, c.Clock, registration.Options{
		Validators: registration.ValidatorsFor(c.Config.Registration.Validation),
		Logger:     c.Logger,
		Metrics:    c.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build registration: %w", err)
	}

	deps := dispatch.Deps{
		Clock:     c.Clock,
		Stats:     c.Store,
		Limits:    limits,
		Registrar: machine,
		Logger:    c.Logger,
		Metrics:   c.Metrics,
	}
	if c.LLM != nil {
		responder, err := knowledge.NewResponder(c.LLM, c.Config)
		if err != nil {
			return nil, fmt.Errorf("app: build responder: %w", err)
		}
		deps.Answerer = responder
	}
	dispatcher, err := dispatch.New(c.Config, deps)
	if err != nil {
		return nil, fmt.Errorf("app: build dispatcher: %w", err)
	}

	svc, err := usecase.NewMessageService(admission, c.Store, machine, dispatcher, c.Clock, c.Logger,
		usecase.WithStoreErrorReply(c.Config.Messages.StoreError))
	if err != nil {
		return nil, fmt.Errorf("app: build message service: %w", err)
	}
	return svc, nil
}
