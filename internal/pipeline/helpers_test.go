package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/store"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newMsg(sender, text string) domain.Message {
	return domain.Message{
		Sender:           sender,
		Text:             text,
		TimestampSeconds: base.Unix(),
		Chat:             &domain.Chat{DisplayName: "Warga"},
	}
}

// failingStore fails every call; embedded Memory supplies the rest.
type failingStore struct {
	*store.Memory
	getErr  error
	setErr  error
	incrErr error
}

func (f *failingStore) GetActivation(ctx context.Context, sender string) (*domain.ActivationRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Memory.GetActivation(ctx, sender)
}

func (f *failingStore) SetActivated(ctx context.Context, sender string, at time.Time) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.SetActivated(ctx, sender, at)
}

func (f *failingStore) IncrementRateLimit(ctx context.Context, sender string, now time.Time, window time.Duration) (domain.RateLimitRecord, error) {
	if f.incrErr != nil {
		return domain.RateLimitRecord{}, f.incrErr
	}
	return f.Memory.IncrementRateLimit(ctx, sender, now, window)
}

var errUnavailable = errors.New("store unavailable")

// stubFilter records calls and returns a fixed verdict.
type stubFilter struct {
	name    string
	verdict Verdict
	err     error
	calls   int
}

func (s *stubFilter) Name() string { return s.name }

func (s *stubFilter) Check(context.Context, domain.Message) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}
