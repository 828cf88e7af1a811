package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/pipeline"
)

type Admitter interface {
	Admit(ctx context.Context, msg domain.Message) pipeline.Decision
}

type ActivityToucher interface {
	TouchActivation(ctx context.Context, sender string, at time.Time) error
}

type Sessions interface {
	Active(ctx context.Context, sender string) (bool, error)
	Handle(ctx context.Context, sender, text string) (string, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.Message) []string
}

// MessageOutput is the outcome of one inbound message. Rejected messages
// carry the rejecting filter and at most one reply.
type MessageOutput struct {
	Accepted bool
	Filter   string
	Reason   string
	Replies  []string
}

// MessageService runs the admission pipeline and routes admitted messages to
// the open registration session or the dispatcher. Messages from one sender
// are processed one at a time.
type MessageService struct {
	admitter   Admitter
	activity   ActivityToucher
	sessions   Sessions
	dispatcher Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	locks      *senderLocks

	storeErrorReply string
}

// Option customizes a MessageService.
type Option func(*MessageService)

// WithStoreErrorReply sets the reply sent when the registration session store
// fails. Empty text keeps the default.
func WithStoreErrorReply(text string) Option {
	return func(s *MessageService) {
		if strings.TrimSpace(text) != "" {
			s.storeErrorReply = text
		}
	}
}

func NewMessageService(a Admitter, t ActivityToucher, s Sessions, d Dispatcher, clk clock.Clock, logger *slog.Logger, opts ...Option) (*MessageService, error) {
	if a == nil {
		return nil, errors.New("usecase: admitter must not be nil")
	}
	if t == nil {
		return nil, errors.New("usecase: activity toucher must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: sessions must not be nil")
	}
	if d == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	if clk == nil {
		return nil, errors.New("usecase: clock must not be nil")
	}
	if logger == nil {
		return nil, errors.New("usecase: logger must not be nil")
	}
	svc := &MessageService{
		admitter:        a,
		activity:        t,
		sessions:        s,
		dispatcher:      d,
		clock:           clk,
		logger:          logger,
		locks:           newSenderLocks(),
		storeErrorReply: config.Default().Messages.StoreError,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *MessageService) Handle(ctx context.Context, msg domain.Message) (MessageOutput, error) {
	msg.Sender = strings.TrimSpace(msg.Sender)
	if msg.Sender == "" {
		return MessageOutput{}, newError(ErrorInvalidInput, "missing_sender", nil)
	}
	if msg.TimestampSeconds <= 0 {
		return MessageOutput{}, newError(ErrorInvalidInput, "missing_timestamp", nil)
	}

	unlock := s.locks.lock(msg.Sender)
	defer unlock()

	decision := s.admitter.Admit(ctx, msg)
	if !decision.Accepted {
		return MessageOutput{
			Filter:  decision.Filter,
			Reason:  decision.Reason,
			Replies: decision.Replies,
		}, nil
	}

	if err := s.activity.TouchActivation(ctx, msg.Sender, s.clock.Now()); err != nil {
		s.logger.WarnContext(ctx, "touch activation failed", "sender", msg.Sender, "err", err)
	}

	// Session store failures still answer the sender; the message was admitted.
	active, err := s.sessions.Active(ctx, msg.Sender)
	if err != nil {
		s.logger.ErrorContext(ctx, "session lookup failed", "sender", msg.Sender, "err", err)
		return MessageOutput{Accepted: true, Replies: []string{s.storeErrorReply}}, nil
	}
	if active {
		reply, err := s.sessions.Handle(ctx, msg.Sender, msg.Text)
		if err != nil {
			s.logger.ErrorContext(ctx, "session step failed", "sender", msg.Sender, "err", err)
			return MessageOutput{Accepted: true, Replies: []string{s.storeErrorReply}}, nil
		}
		return MessageOutput{Accepted: true, Replies: []string{reply}}, nil
	}

	return MessageOutput{Accepted: true, Replies: s.dispatcher.Dispatch(ctx, msg)}, nil
}
