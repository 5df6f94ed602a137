// Package redis implements the session registry on a Redis server. Entry
// TTLs ride on Redis key expiry, so expired sessions vanish without any
// housekeeping on our side.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saansook/saansook/internal/auth/domain"
	"github.com/saansook/saansook/internal/auth/store"
)

var _ store.Store = (*Store)(nil)

// Options configure the Redis connection.
type Options struct {
	// host:port address.
	Addr string
	// Optional password, must match the requirepass server option.
	Password string
	// Database selected after connecting.
	DB int
	// TLS config to use. When set, TLS is negotiated.
	TLSConfig *tls.Config
}

// Store implements store.Store on a go-redis client. The client maintains
// its own connection pool and is safe for concurrent use.
type Store struct {
	db *redis.Client
}

// NewStore connects and pings the server so a misconfigured address fails
// at startup rather than on the first login.
func NewStore(ctx context.Context, o Options) (*Store, error) {
	if o.Addr == "" {
		return nil, errors.New("store/redis: connection address is required")
	}

	db := redis.NewClient(&redis.Options{
		Addr:      o.Addr,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store/redis: connecting: %w", err)
	}

	return &Store{db: db}, nil
}

// Register writes the entry as JSON. A positive ttl maps to SET with
// expiration (SETEX semantics); zero ttl stores the key without expiry.
func (s *Store) Register(ctx context.Context, key string, entry domain.SessionEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.db.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store/redis: set %q: %w", key, err)
	}
	return nil
}

// IsLive checks key existence. A key Redis has already expired counts as
// not live, which is exactly the defense-in-depth the access path wants.
func (s *Store) IsLive(ctx context.Context, key string) (bool, error) {
	n, err := s.db.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("store/redis: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Revoke deletes the entry. Deleting an absent key is a no-op.
func (s *Store) Revoke(ctx context.Context, key string) error {
	if err := s.db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("store/redis: del %q: %w", key, err)
	}
	return nil
}

// Entry reads an entry back, mainly for diagnostics and tests. The second
// return is false when the key does not exist.
func (s *Store) Entry(ctx context.Context, key string) (domain.SessionEntry, bool, error) {
	raw, err := s.db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SessionEntry{}, false, nil
	}
	if err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("store/redis: get %q: %w", key, err)
	}

	var entry domain.SessionEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("store/redis: decode %q: %w", key, err)
	}
	return entry, true, nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
