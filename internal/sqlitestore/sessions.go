package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dinsos-bot/internal/domain"
)

// DefaultSessionTTL is how long an untouched registration session survives.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore keeps registration sessions in the sessions table. Expired
// rows read as absent until PurgeExpired removes them.
type SessionStore struct {
	db  *DB
	ttl time.Duration
}

func (d *DB) Sessions(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: d, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, sender string) (*domain.RegistrationSession, error) {
	var raw string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE sender = ? AND expires_at > ?`,
		sender, s.db.clock.Now().UnixMilli(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: GetSession: %w", err)
	}
	var sess domain.RegistrationSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("sqlitestore: GetSession unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Put(ctx context.Context, sess domain.RegistrationSession) error {
	if sess.Sender == "" {
		return errors.New("sqlitestore: session sender is required")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sqlitestore: PutSession marshal: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO sessions (sender, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(sender) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		sess.Sender, string(raw), s.db.clock.Now().Add(s.ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlitestore: PutSession: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sender string) error {
	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE sender = ?`, sender); err != nil {
		return fmt.Errorf("sqlitestore: DeleteSession: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions past their expiry and reports how many were
// removed.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, s.db.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: PurgeExpired: %w", err)
	}
	return res.RowsAffected()
}
