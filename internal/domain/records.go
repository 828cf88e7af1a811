package domain

import "time"

// ActivationRecord tracks whether a sender has opted in to automated replies.
// Once Activated is true it is never cleared by normal traffic.
type ActivationRecord struct {
	Sender        string
	Activated     bool
	ActivatedAt   time.Time
	LastMessageAt time.Time
}

// RateLimitRecord is the per-sender counter for the current rate-limit window.
type RateLimitRecord struct {
	Sender  string
	Count   int
	ResetAt time.Time
}

// Expired reports whether the window has elapsed at now. An expired record is
// replaced by a fresh window, never reused.
func (r RateLimitRecord) Expired(now time.Time) bool {
	return now.After(r.ResetAt)
}

const (
	RegistrationStatusPending = "pending"
)

// RegistrationRecord is a completed registration submission. It is written
// exactly once and not modified afterwards.
type RegistrationRecord struct {
	ID        string
	Sender    string
	Program   string
	Name      string
	NIK       string
	Address   string
	Phone     string
	CreatedAt time.Time
	Status    string
}
