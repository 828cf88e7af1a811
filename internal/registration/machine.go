// Package registration runs the multi-step registration conversation. While a
// sender has an open session every message they send is handled here.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/metrics"
	"dinsos-bot/internal/store"
)

// Outcome tells the caller what to do with a transition.
type Outcome int

const (
	// Continue stores the updated session.
	Continue Outcome = iota
	// Submit writes the registration record, then removes the session.
	Submit
	// Cancel removes the session.
	Cancel
)

// Transition is the result of feeding one message into a session.
type Transition struct {
	Session domain.RegistrationSession
	Outcome Outcome
	Reply   string
}

var (
	confirmWords = map[string]bool{"ya": true, "yes": true}
	cancelWords  = map[string]bool{"batal": true, "cancel": true}
)

// Advance computes the next state of s for input. It has no side effects.
func Advance(s domain.RegistrationSession, input string, v Validators) Transition {
	value := strings.TrimSpace(input)
	next := s

	if s.Step == domain.StepConfirm {
		word := strings.ToLower(value)
		switch {
		case confirmWords[word]:
			return Transition{Session: next, Outcome: Submit}
		case cancelWords[word]:
			return Transition{Session: next, Outcome: Cancel, Reply: replyCancelled}
		default:
			return Transition{Session: next, Outcome: Continue, Reply: replyConfirmAgain}
		}
	}

	if value == "" {
		return Transition{Session: next, Outcome: Continue, Reply: promptFor(s)}
	}
	if hint := v.check(s.Step, value); hint != "" {
		return Transition{Session: next, Outcome: Continue, Reply: hint + "\n\n" + promptFor(s)}
	}

	switch s.Step {
	case domain.StepName:
		next.Collected.Name = value
		next.Step = domain.StepNIK
	case domain.StepNIK:
		next.Collected.NIK = value
		next.Step = domain.StepAddress
	case domain.StepAddress:
		next.Collected.Address = value
		next.Step = domain.StepPhone
	case domain.StepPhone:
		next.Collected.Phone = value
		next.Step = domain.StepConfirm
	default:
		// Unknown step from a stale store entry; restart at the first field.
		next.Step = domain.StepName
		next.Collected = domain.RegistrationForm{}
		next.RecordID = ""
		return Transition{Session: next, Outcome: Continue, Reply: promptFor(next)}
	}
	return Transition{Session: next, Outcome: Continue, Reply: advanceText(next.Step, next.Collected)}
}

// Machine applies transitions against the session and registration stores.
type Machine struct {
	sessions   SessionStore
	records    store.Registrations
	clock      clock.Clock
	validators Validators
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Options configures a Machine. Validators and Metrics are optional.
type Options struct {
	Validators Validators
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

func NewMachine(sessions SessionStore, records store.Registrations, clk clock.Clock, opts Options) (*Machine, error) {
	if sessions == nil {
		return nil, errors.New("registration: session store must not be nil")
	}
	if records == nil {
		return nil, errors.New("registration: registration store must not be nil")
	}
	if clk == nil {
		return nil, errors.New("registration: clock must not be nil")
	}
	if opts.Logger == nil {
		return nil, errors.New("registration: logger must not be nil")
	}
	v := opts.Validators
	if v == nil {
		v = Validators{}
	}
	return &Machine{
		sessions:   sessions,
		records:    records,
		clock:      clk,
		validators: v,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// Active reports whether sender has an open session.
func (m *Machine) Active(ctx context.Context, sender string) (bool, error) {
	s, err := m.sessions.Get(ctx, sender)
	if err != nil {
		return false, fmt.Errorf("registration: Active: %w", err)
	}
	return s != nil, nil
}

// Start opens a session for program, replacing any existing one, and returns
// the first prompt.
func (m *Machine) Start(ctx context.Context, sender, program string) (string, error) {
	program = strings.TrimSpace(program)
	if sender == "" || program == "" {
		return "", errors.New("registration: Start: sender and program are required")
	}
	s := domain.RegistrationSession{
		Sender:    sender,
		Step:      domain.StepName,
		Program:   program,
		StartedAt: m.clock.Now(),
	}
	if err := m.sessions.Put(ctx, s); err != nil {
		return "", fmt.Errorf("registration: Start: %w", err)
	}
	m.metrics.IncRegistrationsStarted()
	m.logger.InfoContext(ctx, "registration started", "sender", sender, "program", program)
	return startText(program), nil
}

// Handle feeds text into the sender's open session. It returns an error when
// no session is open.
func (m *Machine) Handle(ctx context.Context, sender, text string) (string, error) {
	s, err := m.sessions.Get(ctx, sender)
	if err != nil {
		return "", fmt.Errorf("registration: Handle: %w", err)
	}
	if s == nil {
		return "", fmt.Errorf("registration: Handle: no open session for %q", sender)
	}

	t := Advance(*s, text, m.validators)
	switch t.Outcome {
	case Submit:
		return m.submit(ctx, t.Session)
	case Cancel:
		if err := m.sessions.Delete(ctx, sender); err != nil {
			return "", fmt.Errorf("registration: Handle: cancel: %w", err)
		}
		m.metrics.IncRegistrationsCancelled()
		m.logger.InfoContext(ctx, "registration cancelled", "sender", sender, "program", s.Program)
		return t.Reply, nil
	default:
		if t.Session.Step == domain.StepConfirm && t.Session.RecordID == "" {
			t.Session.RecordID = store.NewRegistrationID(m.clock.Now())
		}
		if t.Session != *s {
			if err := m.sessions.Put(ctx, t.Session); err != nil {
				return "", fmt.Errorf("registration: Handle: %w", err)
			}
		}
		return t.Reply, nil
	}
}

// submit writes the record before removing the session so a failed write
// leaves the sender at the confirm step. The record ID comes from the session,
// so a confirmation repeated after a failed delete finds the record already
// written instead of adding a second one.
func (m *Machine) submit(ctx context.Context, s domain.RegistrationSession) (string, error) {
	if s.RecordID == "" {
		s.RecordID = store.NewRegistrationID(m.clock.Now())
		if err := m.sessions.Put(ctx, s); err != nil {
			m.logger.ErrorContext(ctx, "registration session update failed", "sender", s.Sender, "err", err)
			return replySaveFailed, nil
		}
	}
	rec := domain.RegistrationRecord{
		ID:        s.RecordID,
		Sender:    s.Sender,
		Program:   s.Program,
		Name:      s.Collected.Name,
		NIK:       s.Collected.NIK,
		Address:   s.Collected.Address,
		Phone:     s.Collected.Phone,
		CreatedAt: m.clock.Now(),
		Status:    domain.RegistrationStatusPending,
	}
	id, err := m.records.SaveRegistration(ctx, rec)
	saved := err == nil
	switch {
	case errors.Is(err, store.ErrDuplicateRegistration):
		id = rec.ID
		m.logger.WarnContext(ctx, "registration already saved", "sender", s.Sender, "id", id)
	case err != nil:
		m.logger.ErrorContext(ctx, "registration save failed", "sender", s.Sender, "program", s.Program, "err", err)
		return replySaveFailed, nil
	}
	rec.ID = id

	if err := m.sessions.Delete(ctx, s.Sender); err != nil {
		m.logger.ErrorContext(ctx, "registration session delete failed", "sender", s.Sender, "id", id, "err", err)
	}
	if saved {
		m.metrics.IncRegistrationsSubmitted()
		m.logger.InfoContext(ctx, "registration submitted", "sender", s.Sender, "program", s.Program, "id", id)
	}
	return submittedText(rec), nil
}
