// Package store defines the persistence operations the assistant relies on and
// an in-memory implementation. Every operation is atomic per sender key.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dinsos-bot/internal/domain"
)

// ErrDuplicateRegistration is returned by SaveRegistration when a record with
// the same ID already exists.
var ErrDuplicateRegistration = errors.New("store: registration id already exists")

// Activations persists opt-in state.
type Activations interface {
	// GetActivation returns nil, nil when the sender has no record.
	GetActivation(ctx context.Context, sender string) (*domain.ActivationRecord, error)
	// SetActivated creates or updates the record with Activated=true. The
	// first ActivatedAt is kept when the record already exists.
	SetActivated(ctx context.Context, sender string, at time.Time) error
	// TouchActivation updates LastMessageAt of an existing record.
	TouchActivation(ctx context.Context, sender string, at time.Time) error
	CountActivations(ctx context.Context) (int, error)
}

// RateLimits persists per-sender rate-limit windows.
type RateLimits interface {
	// GetRateLimit returns nil, nil when the sender has no record.
	GetRateLimit(ctx context.Context, sender string) (*domain.RateLimitRecord, error)
	UpsertRateLimit(ctx context.Context, sender string, count int, resetAt time.Time) error
	// IncrementRateLimit counts one message in a single read-modify-write and
	// returns the record after the increment. An expired window is replaced by
	// a fresh one with Count=1 and ResetAt=now+window.
	IncrementRateLimit(ctx context.Context, sender string, now time.Time, window time.Duration) (domain.RateLimitRecord, error)
}

// Registrations persists completed registration submissions.
type Registrations interface {
	// SaveRegistration writes rec once and returns its ID. An empty ID is
	// filled with NewRegistrationID; an existing ID fails with
	// ErrDuplicateRegistration.
	SaveRegistration(ctx context.Context, rec domain.RegistrationRecord) (string, error)
	CountRegistrations(ctx context.Context) (int, error)
	// ListRecentRegistrations returns up to limit records, newest first.
	ListRecentRegistrations(ctx context.Context, limit int) ([]domain.RegistrationRecord, error)
}

// Store is the full set of persistence operations.
type Store interface {
	Activations
	RateLimits
	Registrations
}

// NewRegistrationID returns a time-derived identifier with a random suffix so
// two submissions in the same millisecond do not collide.
func NewRegistrationID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("REG-%d-%s", at.UnixMilli(), suffix)
}

// FreshWindow returns the record that replaces an expired or missing window.
func FreshWindow(sender string, now time.Time, window time.Duration) domain.RateLimitRecord {
	return domain.RateLimitRecord{Sender: sender, Count: 1, ResetAt: now.Add(window)}
}

// PrepareRegistration fills the defaults every backend applies before writing.
func PrepareRegistration(rec domain.RegistrationRecord, now time.Time) (domain.RegistrationRecord, error) {
	if strings.TrimSpace(rec.Sender) == "" {
		return rec, fmt.Errorf("store: registration sender is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.ID == "" {
		rec.ID = NewRegistrationID(rec.CreatedAt)
	}
	if rec.Status == "" {
		rec.Status = domain.RegistrationStatusPending
	}
	return rec, nil
}
