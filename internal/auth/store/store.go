package store

import (
	"context"
	"fmt"
	"time"

	"github.com/saansook/saansook/internal/auth/domain"
	"github.com/saansook/saansook/pkg/jwtx"
)

// Store is the session registry: a TTL-aware key-value record of which
// token ids are currently live. Concrete drivers (redis, sqlite) implement
// this. Absence of a key means expired or revoked; callers treat both the
// same. Any driver communication failure surfaces as a plain error, which
// the service layer converts to its store-error class. There is no local
// fallback, correctness wins over availability for auth state.
type Store interface {
	// Register writes the entry. ttl > 0 makes the entry auto-expire;
	// ttl == 0 keeps it until explicit revocation.
	Register(ctx context.Context, key string, entry domain.SessionEntry, ttl time.Duration) error

	// IsLive reports whether the entry still exists.
	IsLive(ctx context.Context, key string) (bool, error)

	// Revoke deletes the entry. Revoking an absent key is not an error.
	Revoke(ctx context.Context, key string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection resources.
	Close() error
}

// Expirer is implemented by drivers without native key expiry (sqlite).
// The housekeeping worker uses it to reap entries whose TTL has passed.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Key builds the deterministic registry key for one token instance:
//
//	{prefix}/auth/{subjectType}/{subjectId}/{kind}_token/{jti}
//
// This layout is the on-cache contract shared with operators' tooling, so
// it must not change shape. The prefix namespaces this service's keys away
// from unrelated cache usage.
func Key(prefix, subjectType, subjectID string, kind jwtx.Kind, jti string) string {
	return fmt.Sprintf("%s/auth/%s/%s/%s_token/%s", prefix, subjectType, subjectID, kind, jti)
}
