package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/domain"
)

// Memory is a process-local Store. It is used for tests and single-process
// development runs.
type Memory struct {
	clock         clock.Clock
	mu            sync.Mutex
	activations   map[string]domain.ActivationRecord
	rateLimits    map[string]domain.RateLimitRecord
	registrations []domain.RegistrationRecord
	ids           map[string]struct{}
}

type MemoryOption func(*Memory)

// WithClock sets the clock that stamps registrations saved without CreatedAt.
func WithClock(clk clock.Clock) MemoryOption {
	return func(m *Memory) {
		if clk != nil {
			m.clock = clk
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock:       clock.System{},
		activations: make(map[string]domain.ActivationRecord),
		rateLimits:  make(map[string]domain.RateLimitRecord),
		ids:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) GetActivation(_ context.Context, sender string) (*domain.ActivationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.activations[sender]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) SetActivated(_ context.Context, sender string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.activations[sender]
	if !ok {
		rec = domain.ActivationRecord{Sender: sender, ActivatedAt: at}
	}
	rec.Activated = true
	rec.LastMessageAt = at
	m.activations[sender] = rec
	return nil
}

func (m *Memory) TouchActivation(_ context.Context, sender string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.activations[sender]
	if !ok {
		return nil
	}
	rec.LastMessageAt = at
	m.activations[sender] = rec
	return nil
}

func (m *Memory) CountActivations(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.activations {
		if rec.Activated {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetRateLimit(_ context.Context, sender string) (*domain.RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rateLimits[sender]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) UpsertRateLimit(_ context.Context, sender string, count int, resetAt time.Time) error {
	if count < 0 {
		return fmt.Errorf("store: UpsertRateLimit: negative count %d", count)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimits[sender] = domain.RateLimitRecord{Sender: sender, Count: count, ResetAt: resetAt}
	return nil
}

func (m *Memory) IncrementRateLimit(_ context.Context, sender string, now time.Time, window time.Duration) (domain.RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rateLimits[sender]
	if !ok || rec.Expired(now) {
		rec = FreshWindow(sender, now, window)
	} else {
		rec.Count++
	}
	m.rateLimits[sender] = rec
	return rec, nil
}

func (m *Memory) SaveRegistration(_ context.Context, rec domain.RegistrationRecord) (string, error) {
	rec, err := PrepareRegistration(rec, m.clock.Now())
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.ids[rec.ID]; dup {
		return "", fmt.Errorf("store: SaveRegistration %s: %w", rec.ID, ErrDuplicateRegistration)
	}
	m.ids[rec.ID] = struct{}{}
	m.registrations = append(m.registrations, rec)
	return rec.ID, nil
}

func (m *Memory) CountRegistrations(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registrations), nil
}

func (m *Memory) ListRecentRegistrations(_ context.Context, limit int) ([]domain.RegistrationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RegistrationRecord, len(m.registrations))
	copy(out, m.registrations)
	// Reverse insertion order first so equal timestamps list newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
