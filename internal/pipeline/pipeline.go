// Package pipeline implements the ordered admission filters every inbound
// message passes before it is answered.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/metrics"
)

// Policy decides how a filter error is resolved.
type Policy int

const (
	// FailOpen treats a failed check as a pass.
	FailOpen Policy = iota
	// FailClosed treats a failed check as a silent rejection.
	FailClosed
)

func (p Policy) String() string {
	if p == FailClosed {
		return config.PolicyFailClosed
	}
	return config.PolicyFailOpen
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) Policy {
	if s == config.PolicyFailClosed {
		return FailClosed
	}
	return FailOpen
}

// Verdict is the outcome of one filter. Reply is only sent on rejection.
type Verdict struct {
	Accept bool
	Reason string
	Reply  string
}

func accept(reason string) Verdict { return Verdict{Accept: true, Reason: reason} }

func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Filter is a single admission check.
type Filter interface {
	Name() string
	Check(ctx context.Context, msg domain.Message) (Verdict, error)
}

// Stage binds a filter to the policy applied when it fails.
type Stage struct {
	Filter  Filter
	OnError Policy
}

// Decision is the pipeline result for one message.
type Decision struct {
	Accepted bool
	// Filter names the stage that rejected the message.
	Filter  string
	Reason  string
	Replies []string
}

// Pipeline runs stages strictly in order and stops at the first rejection.
type Pipeline struct {
	stages  []Stage
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(logger *slog.Logger, m *metrics.Metrics, stages ...Stage) (*Pipeline, error) {
	if logger == nil {
		return nil, errors.New("pipeline: logger must not be nil")
	}
	if len(stages) == 0 {
		return nil, errors.New("pipeline: at least one stage is required")
	}
	for _, s := range stages {
		if s.Filter == nil {
			return nil, errors.New("pipeline: stage filter must not be nil")
		}
	}
	return &Pipeline{stages: stages, logger: logger, metrics: m}, nil
}

// Names lists the stage names in execution order.
func (p *Pipeline) Names() []string {
	out := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, s.Filter.Name())
	}
	return out
}

// Admit runs msg through every stage.
func (p *Pipeline) Admit(ctx context.Context, msg domain.Message) Decision {
	for _, stage := range p.stages {
		name := stage.Filter.Name()
		v, err := stage.Filter.Check(ctx, msg)
		if err != nil {
			p.metrics.IncFilterError(name, stage.OnError.String())
			p.logger.ErrorContext(ctx, "admission filter failed",
				"filter", name,
				"policy", stage.OnError.String(),
				"sender", msg.Sender,
				"err", err,
			)
			if stage.OnError == FailOpen {
				continue
			}
			v = reject("check failed")
		}
		if v.Accept {
			p.logger.DebugContext(ctx, "admission filter passed", "filter", name, "reason", v.Reason, "sender", msg.Sender)
			continue
		}

		p.metrics.IncRejected(name)
		p.logger.InfoContext(ctx, "message skipped",
			"filter", name,
			"reason", v.Reason,
			"sender", msg.Sender,
			"chat", msg.ChatName(),
		)
		d := Decision{Filter: name, Reason: v.Reason}
		if v.Reply != "" {
			d.Replies = []string{v.Reply}
		}
		return d
	}
	p.metrics.IncAdmitted()
	return Decision{Accepted: true}
}
