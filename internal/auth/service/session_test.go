package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/saansook/saansook/internal/auth/domain"
	"github.com/saansook/saansook/internal/auth/store"
	"github.com/saansook/saansook/internal/auth/store/drivers/sqlite"
	"github.com/saansook/saansook/pkg/cryptox"
	"github.com/saansook/saansook/pkg/jwtx"
)

const (
	testPassword = "Secret123"
	testPrefix   = "saansook"
)

var (
	hashOnce sync.Once
	testHash string
)

// passwordHash returns a bcrypt hash of testPassword at minimum cost so the
// suite doesn't pay the production work factor on every login.
func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := cryptox.HashPasswordCost(testPassword, bcrypt.MinCost)
		require.NoError(t, err)
		testHash = h
	})
	return testHash
}

func testRegistry(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T, st store.Store) *SessionService {
	t.Helper()
	codec, err := jwtx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "HS256", "saansook-auth")
	require.NoError(t, err)
	return &SessionService{
		Codec:     codec,
		Store:     st,
		KeyPrefix: testPrefix,
		AccessTTL: 900 * time.Second,
	}
}

func aliceLogin(t *testing.T, s *SessionService) domain.TokenPair {
	t.Helper()
	pair, err := s.Login(t.Context(), LoginInput{
		SubjectType:  domain.SubjectCustomer,
		SubjectID:    "42",
		Password:     testPassword,
		PasswordHash: passwordHash(t),
		ClaimFields: map[string]string{
			"email":      "alice@example.com",
			"first_name": "Alice",
		},
	})
	require.NoError(t, err)
	return pair
}

func TestLogin(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	pair := aliceLogin(t, s)

	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, 900*time.Second, pair.ExpiresIn)
	require.NotEmpty(t, pair.AccessJTI)
	require.NotEmpty(t, pair.RefreshJTI)
	require.NotEqual(t, pair.AccessJTI, pair.RefreshJTI)
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))

	_, err := s.Login(t.Context(), LoginInput{
		SubjectType:  domain.SubjectCustomer,
		SubjectID:    "42",
		Password:     "Secret124",
		PasswordHash: passwordHash(t),
	})
	require.ErrorIs(t, err, ErrWrongCredentials)
}

func TestLogin_MalformedHash(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))

	// Indistinguishable from a wrong password so callers can't probe which
	// part failed.
	_, err := s.Login(t.Context(), LoginInput{
		SubjectType:  domain.SubjectCustomer,
		SubjectID:    "42",
		Password:     testPassword,
		PasswordHash: "corrupted-hash-value",
	})
	require.ErrorIs(t, err, ErrWrongCredentials)
}

func TestLogin_RegistersBothEntries(t *testing.T) {
	t.Parallel()

	registry := testRegistry(t)
	s := newTestService(t, registry)
	pair := aliceLogin(t, s)
	ctx := t.Context()

	refreshKey := store.Key(testPrefix, "customer", "42", jwtx.KindRefresh, pair.RefreshJTI)
	live, err := registry.IsLive(ctx, refreshKey)
	require.NoError(t, err)
	require.True(t, live)

	accessKey := store.Key(testPrefix, "customer", "42", jwtx.KindAccess, pair.AccessJTI)
	entry, ok, err := registry.Entry(ctx, accessKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pair.RefreshJTI, entry.LinkedRefreshJTI, "access entry must link back to its refresh session")
}

func TestLogin_StoreFailureDiscardsTokens(t *testing.T) {
	t.Parallel()

	fake := newFakeStore()
	fake.failRegisterOn = "access_token"
	s := newTestService(t, fake)

	_, err := s.Login(t.Context(), LoginInput{
		SubjectType:  domain.SubjectCustomer,
		SubjectID:    "42",
		Password:     testPassword,
		PasswordHash: passwordHash(t),
	})
	require.ErrorIs(t, err, ErrStore)

	// The refresh entry written before the failure must be cleaned up, so
	// no half-registered session remains.
	require.Empty(t, fake.keys(), "no session entries may survive a failed login")
}

func TestVerify(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	pair := aliceLogin(t, s)

	claims, err := s.Verify(t.Context(), pair.AccessToken, domain.SubjectCustomer)
	require.NoError(t, err)
	require.Equal(t, domain.SubjectCustomer, claims.SubjectType)
	require.Equal(t, "42", claims.SubjectID)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "Alice", claims.FirstName)
}

func TestVerify_Failures(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	pair := aliceLogin(t, s)

	t.Run("wrong subject type", func(t *testing.T) {
		_, err := s.Verify(t.Context(), pair.AccessToken, "device")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("refresh token on the access path", func(t *testing.T) {
		_, err := s.Verify(t.Context(), pair.RefreshToken, domain.SubjectCustomer)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("tampered token", func(t *testing.T) {
		tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
		if tampered == pair.AccessToken {
			tampered = pair.AccessToken[:len(pair.AccessToken)-4] + "BBBB"
		}
		_, err := s.Verify(t.Context(), tampered, domain.SubjectCustomer)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := s.Verify(t.Context(), "garbage", domain.SubjectCustomer)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerify_StoreFailureFailsClosed(t *testing.T) {
	t.Parallel()

	fake := newFakeStore()
	s := newTestService(t, fake)
	pair := aliceLogin(t, s)

	fake.failIsLive = true
	_, err := s.Verify(t.Context(), pair.AccessToken, domain.SubjectCustomer)
	require.ErrorIs(t, err, ErrStore, "an unreachable registry must never authorize")
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	ctx := t.Context()

	pair := aliceLogin(t, s)

	claims, err := s.Verify(ctx, pair.AccessToken, domain.SubjectCustomer)
	require.NoError(t, err)
	require.Equal(t, "42", claims.SubjectID)

	require.NoError(t, s.Logout(ctx, domain.SubjectCustomer, "42", pair.AccessJTI, pair.RefreshJTI))

	// The embedded expiry hasn't passed, only the session entry is gone.
	_, err = s.Verify(ctx, pair.AccessToken, domain.SubjectCustomer)
	require.ErrorIs(t, err, ErrSessionRevoked)

	_, err = s.Refresh(ctx, pair.RefreshToken, nil)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	registry := testRegistry(t)
	s := newTestService(t, registry)
	ctx := t.Context()

	pair := aliceLogin(t, s)

	grant, err := s.Refresh(ctx, pair.RefreshToken, nil)
	require.NoError(t, err)
	require.NotEmpty(t, grant.AccessToken)
	require.NotEqual(t, pair.AccessToken, grant.AccessToken)
	require.NotEqual(t, pair.AccessJTI, grant.AccessJTI)

	// The new access token validates and carries the original claims.
	claims, err := s.Verify(ctx, grant.AccessToken, domain.SubjectCustomer)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", claims.Email)

	// The refresh token itself is unchanged and still live.
	grant2, err := s.Refresh(ctx, pair.RefreshToken, nil)
	require.NoError(t, err)
	require.NotEqual(t, grant.AccessJTI, grant2.AccessJTI)

	// Both access entries link back to the one refresh jti.
	for _, jti := range []string{grant.AccessJTI, grant2.AccessJTI} {
		entry, ok, err := registry.Entry(ctx, store.Key(testPrefix, "customer", "42", jwtx.KindAccess, jti))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, pair.RefreshJTI, entry.LinkedRefreshJTI)
	}
}

func TestRefresh_UpdatedClaims(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	ctx := t.Context()

	pair := aliceLogin(t, s)

	grant, err := s.Refresh(ctx, pair.RefreshToken, map[string]string{
		"email":      "alice@new.example.com",
		"first_name": "Alice",
		"not_a_real": "dropped",
	})
	require.NoError(t, err)

	claims, err := s.Verify(ctx, grant.AccessToken, domain.SubjectCustomer)
	require.NoError(t, err)
	require.Equal(t, "alice@new.example.com", claims.Email)
	require.Equal(t, "42", claims.SubjectID, "subject identity never changes across refresh")
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	pair := aliceLogin(t, s)

	_, err := s.Refresh(t.Context(), pair.AccessToken, nil)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_Concurrent(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	ctx := context.Background()

	pair := aliceLogin(t, s)

	const workers = 4
	grants := make([]AccessGrant, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grants[i], errs[i] = s.Refresh(ctx, pair.RefreshToken, nil)
		}()
	}
	wg.Wait()

	// Concurrent refreshes against one refresh session all succeed, each
	// producing an independently valid access session.
	seen := map[string]struct{}{}
	for i := range workers {
		require.NoError(t, errs[i])
		_, err := s.Verify(ctx, grants[i].AccessToken, domain.SubjectCustomer)
		require.NoError(t, err)
		seen[grants[i].AccessJTI] = struct{}{}
	}
	require.Len(t, seen, workers)
}

func TestExpiry(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	s.AccessTTL = 1100 * time.Millisecond
	ctx := t.Context()

	pair := aliceLogin(t, s)

	_, err := s.Verify(ctx, pair.AccessToken, domain.SubjectCustomer)
	require.NoError(t, err)

	time.Sleep(1300 * time.Millisecond)

	_, err = s.Verify(ctx, pair.AccessToken, domain.SubjectCustomer)
	require.Error(t, err)
	require.True(t,
		errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrSessionRevoked),
		"expired access token must fail as expired or revoked, got %v", err)

	// The refresh session has no TTL and survives.
	_, err = s.Refresh(ctx, pair.RefreshToken, nil)
	require.NoError(t, err)
}

func TestLogin_Throttled(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))
	s.Limiter = NewLoginLimiter(2, time.Minute)
	ctx := t.Context()

	in := LoginInput{
		SubjectType:  domain.SubjectCustomer,
		SubjectID:    "42",
		Password:     "Secret124", // wrong on purpose
		PasswordHash: passwordHash(t),
	}

	_, err := s.Login(ctx, in)
	require.ErrorIs(t, err, ErrWrongCredentials)
	_, err = s.Login(ctx, in)
	require.ErrorIs(t, err, ErrWrongCredentials)
	_, err = s.Login(ctx, in)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// Other subjects are unaffected.
	_, err = s.Login(ctx, LoginInput{
		SubjectType:  domain.SubjectCustomer,
		SubjectID:    "43",
		Password:     testPassword,
		PasswordHash: passwordHash(t),
	})
	require.NoError(t, err)
}

func TestPasswordPolicy(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testRegistry(t))

	require.ErrorIs(t, s.CheckPasswordStrength("short"), ErrWeakPassword)
	require.NoError(t, s.CheckPasswordStrength("LongEnough1"))

	_, err := s.HashPassword("tiny")
	require.ErrorIs(t, err, ErrWeakPassword)

	hash, err := s.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, cryptox.VerifyPassword(testPassword, hash))
}

/* fakeStore injects registry failures without a real backend. */

type fakeStore struct {
	mu      sync.Mutex
	entries map[string]domain.SessionEntry

	failRegisterOn string // substring of keys whose Register fails
	failIsLive     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]domain.SessionEntry{}}
}

func (f *fakeStore) Register(_ context.Context, key string, entry domain.SessionEntry, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRegisterOn != "" && strings.Contains(key, f.failRegisterOn) {
		return errFakeStore
	}
	f.entries[key] = entry
	return nil
}

func (f *fakeStore) IsLive(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIsLive {
		return false, errFakeStore
	}
	_, ok := f.entries[key]
	return ok, nil
}

func (f *fakeStore) Revoke(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	return keys
}

// errFakeStore stands in for a transport failure from a real driver.
var errFakeStore = errors.New("fake store: connection refused")
