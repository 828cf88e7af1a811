package pipeline

import (
	"context"
	"fmt"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/metrics"
	"dinsos-bot/internal/store"
)

// OptIn requires a new sender to address the bot with a keyword before any
// reply is sent. The activating message is itself answered.
type OptIn struct {
	Store    store.Activations
	Keywords Keywords
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}

func (OptIn) Name() string { return FilterOptIn }

func (f OptIn) Check(ctx context.Context, msg domain.Message) (Verdict, error) {
	rec, err := f.Store.GetActivation(ctx, msg.Sender)
	if err != nil {
		return Verdict{}, fmt.Errorf("pipeline: opt-in get activation: %w", err)
	}
	if rec != nil && rec.Activated {
		return accept("activated"), nil
	}

	var via string
	switch {
	case f.Keywords.HasTrigger(msg.Text):
		via = "trigger"
	case f.Keywords.HasBot(msg.Text):
		via = "bot"
	default:
		return reject(fmt.Sprintf("new sender without trigger keyword: %q", displayText(msg.Text))), nil
	}

	if err := f.Store.SetActivated(ctx, msg.Sender, f.Clock.Now()); err != nil {
		return Verdict{}, fmt.Errorf("pipeline: opt-in activate: %w", err)
	}
	f.Metrics.IncActivations()
	return accept("activated via " + via + " keyword"), nil
}
