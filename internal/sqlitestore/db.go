// Package sqlitestore implements store.Store and a registration session store
// on a local SQLite file for single-host deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/store"
)

//go:embed schema.sql
var schema string

// ErrDuplicateRegistration is returned when a registration ID already exists.
var ErrDuplicateRegistration = store.ErrDuplicateRegistration

type DB struct {
	db    *sql.DB
	clock clock.Clock
}

func Open(path string, clk clock.Clock) (*DB, error) {
	if clk == nil {
		return nil, errors.New("sqlitestore: clock must not be nil")
	}
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	// One writer at a time; the increment upsert relies on it.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlitestore: init schema: %w", err)
	}

	slog.Info("database opened", "path", path)
	return &DB{db: sqlDB, clock: clk}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) GetActivation(ctx context.Context, sender string) (*domain.ActivationRecord, error) {
	var (
		activated                  bool
		activatedAt, lastMessageAt int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT activated, activated_at, last_message_at FROM activations WHERE sender = ?`, sender,
	).Scan(&activated, &activatedAt, &lastMessageAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: GetActivation: %w", err)
	}
	return &domain.ActivationRecord{
		Sender:        sender,
		Activated:     activated,
		ActivatedAt:   fromMillis(activatedAt),
		LastMessageAt: fromMillis(lastMessageAt),
	}, nil
}

func (d *DB) SetActivated(ctx context.Context, sender string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO activations (sender, activated, activated_at, last_message_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(sender) DO UPDATE SET
			activated = 1,
			last_message_at = excluded.last_message_at`,
		sender, at.UnixMilli(), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlitestore: SetActivated: %w", err)
	}
	return nil
}

func (d *DB) TouchActivation(ctx context.Context, sender string, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE activations SET last_message_at = ? WHERE sender = ?`, at.UnixMilli(), sender)
	if err != nil {
		return fmt.Errorf("sqlitestore: TouchActivation: %w", err)
	}
	return nil
}

func (d *DB) CountActivations(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activations WHERE activated = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: CountActivations: %w", err)
	}
	return n, nil
}

func (d *DB) GetRateLimit(ctx context.Context, sender string) (*domain.RateLimitRecord, error) {
	var count int
	var resetAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT count, reset_at FROM rate_limits WHERE sender = ?`, sender,
	).Scan(&count, &resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: GetRateLimit: %w", err)
	}
	return &domain.RateLimitRecord{Sender: sender, Count: count, ResetAt: fromMillis(resetAt)}, nil
}

func (d *DB) UpsertRateLimit(ctx context.Context, sender string, count int, resetAt time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rate_limits (sender, count, reset_at) VALUES (?, ?, ?)
		ON CONFLICT(sender) DO UPDATE SET count = excluded.count, reset_at = excluded.reset_at`,
		sender, count, resetAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlitestore: UpsertRateLimit: %w", err)
	}
	return nil
}

// IncrementRateLimit is a single upsert: both CASE arms read the row as it
// was before the statement.
func (d *DB) IncrementRateLimit(ctx context.Context, sender string, now time.Time, window time.Duration) (domain.RateLimitRecord, error) {
	fresh := store.FreshWindow(sender, now, window)
	var count int
	var resetAt int64
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (sender, count, reset_at) VALUES (?1, 1, ?2)
		ON CONFLICT(sender) DO UPDATE SET
			count    = CASE WHEN ?3 > rate_limits.reset_at THEN 1 ELSE rate_limits.count + 1 END,
			reset_at = CASE WHEN ?3 > rate_limits.reset_at THEN excluded.reset_at ELSE rate_limits.reset_at END
		RETURNING count, reset_at`,
		sender, fresh.ResetAt.UnixMilli(), now.UnixMilli(),
	).Scan(&count, &resetAt)
	if err != nil {
		return domain.RateLimitRecord{}, fmt.Errorf("sqlitestore: IncrementRateLimit: %w", err)
	}
	return domain.RateLimitRecord{Sender: sender, Count: count, ResetAt: fromMillis(resetAt)}, nil
}

func (d *DB) SaveRegistration(ctx context.Context, rec domain.RegistrationRecord) (string, error) {
	rec, err := store.PrepareRegistration(rec, d.clock.Now())
	if err != nil {
		return "", fmt.Errorf("sqlitestore: SaveRegistration: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO registrations (id, sender, program, name, nik, address, phone, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Sender, rec.Program, rec.Name, rec.NIK, rec.Address, rec.Phone, rec.Status, rec.CreatedAt.UnixNano())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return "", fmt.Errorf("sqlitestore: SaveRegistration %s: %w", rec.ID, ErrDuplicateRegistration)
		}
		return "", fmt.Errorf("sqlitestore: SaveRegistration: %w", err)
	}
	return rec.ID, nil
}

func (d *DB) CountRegistrations(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: CountRegistrations: %w", err)
	}
	return n, nil
}

func (d *DB) ListRecentRegistrations(ctx context.Context, limit int) ([]domain.RegistrationRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, sender, program, name, nik, address, phone, status, created_at
		FROM registrations
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: ListRecentRegistrations: %w", err)
	}
	defer rows.Close()

	var recs []domain.RegistrationRecord
	for rows.Next() {
		var rec domain.RegistrationRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Sender, &rec.Program, &rec.Name, &rec.NIK,
			&rec.Address, &rec.Phone, &rec.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: ListRecentRegistrations scan: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: ListRecentRegistrations: %w", err)
	}
	return recs, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
