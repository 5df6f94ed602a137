// Package sqlite implements the session registry on a local SQLite file for
// single-node deployments that don't run Redis. SQLite has no native key
// expiry, so liveness checks filter on expires_at and a housekeeping worker
// reaps dead rows via DeleteExpired.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saansook/saansook/internal/auth/domain"
	"github.com/saansook/saansook/internal/auth/store"
)

var (
	_ store.Store   = (*Store)(nil)
	_ store.Expirer = (*Store)(nil)
)

type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database file. Use ":memory:" for
// tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// An in-memory database exists per connection; pin the pool to one so
	// migrations and queries see the same database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// Registry writes are single-row upserts; WAL keeps readers unblocked
	// during them.
	if _, err := db.ExecContext(context.Background(), `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Register upserts the entry. A nonzero ttl sets an absolute expiry
// timestamp; zero ttl leaves the row until explicit revocation.
func (s *Store) Register(ctx context.Context, key string, entry domain.SessionEntry, ttl time.Duration) error {
	now := time.Now().UTC()

	var expiresAt sql.NullInt64
	if ttl != 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(ttl).Unix(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (key, linked_refresh_jti, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			linked_refresh_jti = excluded.linked_refresh_jti,
			expires_at = excluded.expires_at
	`, key, entry.LinkedRefreshJTI, expiresAt, now.Unix())
	return err
}

// IsLive reports whether the row exists and has not passed its expiry.
// Expired rows count as not live even before housekeeping deletes them.
func (s *Store) IsLive(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM auth_sessions
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, time.Now().UTC().Unix()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Revoke deletes the row. Deleting an absent key is a no-op.
func (s *Store) Revoke(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE key = ?`, key)
	return err
}

// Entry reads an entry back, mainly for diagnostics and tests. Expired rows
// read as absent.
func (s *Store) Entry(ctx context.Context, key string) (domain.SessionEntry, bool, error) {
	var entry domain.SessionEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT linked_refresh_jti FROM auth_sessions
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, time.Now().UTC().Unix()).Scan(&entry.LinkedRefreshJTI)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionEntry{}, false, nil
	}
	if err != nil {
		return domain.SessionEntry{}, false, err
	}
	return entry, true, nil
}

// DeleteExpired reaps rows whose expiry has passed and returns how many
// were removed. Called periodically by the housekeeping worker.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_sessions
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping verifies the database handle is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }
