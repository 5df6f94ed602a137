package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saansook/saansook/internal/auth/domain"
	"github.com/saansook/saansook/internal/auth/store"
	"github.com/saansook/saansook/pkg/cryptox"
	"github.com/saansook/saansook/pkg/jwtx"
	"github.com/saansook/saansook/pkg/slogx"
)

var (
	ErrWeakPassword     = errors.New("weak_password")
	ErrWrongCredentials = errors.New("wrong_credentials")
	ErrInvalidToken     = errors.New("invalid_token")
	ErrTokenExpired     = errors.New("token_expired")
	ErrSessionRevoked   = errors.New("session_revoked")
	ErrStore            = errors.New("session_store_error")
	ErrTooManyAttempts  = errors.New("too_many_attempts")
)

// DefaultStoreTimeout bounds each session-registry call so a hung cache
// can't stall a request indefinitely.
const DefaultStoreTimeout = 3 * time.Second

// SessionService is the public contract of the auth core. It composes the
// password verifier, claims builder, token codec and session registry into
// the login / verify / refresh / logout flows. Operations for different
// subjects never coordinate with each other; the service is safe for
// concurrent use.
type SessionService struct {
	Codec *jwtx.Codec
	Store store.Store

	// KeyPrefix namespaces every registry key.
	KeyPrefix string

	// AccessTTL must be positive: every access token and its registry
	// entry carry a bounded lifetime. RefreshTTL of zero means refresh
	// sessions persist until explicit logout.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// StoreTimeout bounds each registry call; zero uses DefaultStoreTimeout.
	StoreTimeout time.Duration

	// MinPasswordLength for the strength policy; zero uses the cryptox default.
	MinPasswordLength int

	// Limiter throttles login attempts per subject. Nil disables throttling.
	Limiter *LoginLimiter
}

// LoginInput carries everything Login needs. The subject lookup (identifier
// to subjectID + stored hash + profile fields) belongs to the resource
// service; this core never queries the relational store.
type LoginInput struct {
	SubjectType  string
	SubjectID    string
	Password     string
	PasswordHash string
	ClaimFields  map[string]string
}

// AccessGrant is what Refresh returns: a fresh access token tied to the
// unchanged refresh session.
type AccessGrant struct {
	AccessToken string
	AccessJTI   string
	ExpiresIn   time.Duration
}

// Login verifies credentials and issues an access/refresh token pair with
// identical claims. Registry entries are written before the tokens are
// returned; if any write fails both minted tokens are discarded, so a
// caller can never hold a token that has no live session entry.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	if s.Limiter != nil && !s.Limiter.Allow(in.SubjectType+"/"+in.SubjectID) {
		l.Warn("login throttled",
			slog.String("subject_type", in.SubjectType),
			slog.String("subject_id", in.SubjectID),
		)
		return domain.TokenPair{}, ErrTooManyAttempts
	}

	if err := cryptox.VerifyPassword(in.Password, in.PasswordHash); err != nil {
		l.Info("login credential verification failed",
			slog.String("subject_type", in.SubjectType),
			slog.String("subject_id", in.SubjectID),
		)
		return domain.TokenPair{}, ErrWrongCredentials
	}

	claims := domain.BuildClaims(in.SubjectType, in.SubjectID, in.ClaimFields)
	wire := wireClaims(claims)

	refresh, err := s.Codec.Issue(wire, jwtx.KindRefresh, s.RefreshTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	access, err := s.Codec.Issue(wire, jwtx.KindAccess, s.accessTTL())
	if err != nil {
		return domain.TokenPair{}, err
	}

	refreshKey := s.key(in.SubjectType, in.SubjectID, jwtx.KindRefresh, refresh.JTI())
	if err := s.register(ctx, refreshKey, domain.SessionEntry{}, s.RefreshTTL); err != nil {
		return domain.TokenPair{}, err
	}

	accessKey := s.key(in.SubjectType, in.SubjectID, jwtx.KindAccess, access.JTI())
	entry := domain.SessionEntry{LinkedRefreshJTI: refresh.JTI()}
	if err := s.register(ctx, accessKey, entry, s.accessTTL()); err != nil {
		// Discard the half-registered session rather than hand out a
		// refresh token whose access sibling was never live.
		s.revokeBestEffort(ctx, refreshKey)
		return domain.TokenPair{}, err
	}

	l.Info("login succeeded",
		slog.String("subject_type", in.SubjectType),
		slog.String("subject_id", in.SubjectID),
		slog.String("access_jti", access.JTI()),
		slog.String("refresh_jti", refresh.JTI()),
	)

	return domain.TokenPair{
		AccessToken:  access.Raw,
		RefreshToken: refresh.Raw,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL(),
		AccessJTI:    access.JTI(),
		RefreshJTI:   refresh.JTI(),
	}, nil
}

// Verify authenticates a bearer string as a live access token for the
// expected subject type and returns its claims. Registry errors fail
// closed: an unreachable store never authorizes anyone.
func (s *SessionService) Verify(ctx context.Context, tokenString, expectedSubjectType string) (domain.Claims, error) {
	tok, err := s.parseLive(ctx, tokenString, jwtx.KindAccess)
	if err != nil {
		return domain.Claims{}, err
	}
	if tok.Claims.SubjectType() != expectedSubjectType {
		return domain.Claims{}, ErrInvalidToken
	}
	return domainClaims(tok.Claims), nil
}

// Refresh validates a refresh token and mints a new access token under the
// same refresh session. The refresh jti is never rotated; the new access
// entry links back to it, and the superseded access entry simply runs out
// its TTL. Claims are carried over unless newFields supplies an update.
func (s *SessionService) Refresh(ctx context.Context, refreshTokenString string, newFields map[string]string) (AccessGrant, error) {
	l := slogx.FromContext(ctx)

	tok, err := s.parseLive(ctx, refreshTokenString, jwtx.KindRefresh)
	if err != nil {
		return AccessGrant{}, err
	}

	claims := domainClaims(tok.Claims)
	if newFields != nil {
		claims = domain.BuildClaims(claims.SubjectType, claims.SubjectID, newFields)
	}

	access, err := s.Codec.Issue(wireClaims(claims), jwtx.KindAccess, s.accessTTL())
	if err != nil {
		return AccessGrant{}, err
	}

	accessKey := s.key(claims.SubjectType, claims.SubjectID, jwtx.KindAccess, access.JTI())
	entry := domain.SessionEntry{LinkedRefreshJTI: tok.JTI()}
	if err := s.register(ctx, accessKey, entry, s.accessTTL()); err != nil {
		return AccessGrant{}, err
	}

	l.Info("access token refreshed",
		slog.String("subject_type", claims.SubjectType),
		slog.String("subject_id", claims.SubjectID),
		slog.String("access_jti", access.JTI()),
		slog.String("refresh_jti", tok.JTI()),
	)

	return AccessGrant{
		AccessToken: access.Raw,
		AccessJTI:   access.JTI(),
		ExpiresIn:   s.accessTTL(),
	}, nil
}

// Logout revokes both registry entries of a session, invalidating the
// access token immediately even though its embedded expiry has not passed.
func (s *SessionService) Logout(ctx context.Context, subjectType, subjectID, accessJTI, refreshJTI string) error {
	l := slogx.FromContext(ctx)

	var errs []error
	if accessJTI != "" {
		errs = append(errs, s.revoke(ctx, s.key(subjectType, subjectID, jwtx.KindAccess, accessJTI)))
	}
	if refreshJTI != "" {
		errs = append(errs, s.revoke(ctx, s.key(subjectType, subjectID, jwtx.KindRefresh, refreshJTI)))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	l.Info("logout",
		slog.String("subject_type", subjectType),
		slog.String("subject_id", subjectID),
	)
	return nil
}

// CheckPasswordStrength enforces the registration-time password policy.
func (s *SessionService) CheckPasswordStrength(password string) error {
	if err := cryptox.ValidatePassword(password, s.MinPasswordLength); err != nil {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword validates strength and returns the hash to persist. The
// resource service owns the credential row; we only produce the digest.
func (s *SessionService) HashPassword(password string) (string, error) {
	if err := s.CheckPasswordStrength(password); err != nil {
		return "", err
	}
	return cryptox.HashPassword(password)
}

// parseLive runs the shared validation pipeline: signature, expiry, kind,
// then registry liveness for the token's own key.
func (s *SessionService) parseLive(ctx context.Context, tokenString string, kind jwtx.Kind) (jwtx.Token, error) {
	tok, err := s.Codec.Parse(tokenString)
	if err != nil {
		return jwtx.Token{}, ErrInvalidToken
	}
	if err := tok.Claims.ValidateExpiry(); err != nil {
		return jwtx.Token{}, ErrTokenExpired
	}
	if tok.Claims.Kind != kind {
		return jwtx.Token{}, ErrInvalidToken
	}
	if tok.Claims.SubjectType() == "" || tok.Claims.SubjectID == "" || tok.JTI() == "" {
		return jwtx.Token{}, ErrInvalidToken
	}

	key := s.key(tok.Claims.SubjectType(), tok.Claims.SubjectID, kind, tok.JTI())

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	live, err := s.Store.IsLive(storeCtx, key)
	if err != nil {
		return jwtx.Token{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if !live {
		return jwtx.Token{}, ErrSessionRevoked
	}
	return tok, nil
}

func (s *SessionService) register(ctx context.Context, key string, entry domain.SessionEntry, ttl time.Duration) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Store.Register(storeCtx, key, entry, ttl); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

func (s *SessionService) revoke(ctx context.Context, key string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Store.Revoke(storeCtx, key); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

func (s *SessionService) revokeBestEffort(ctx context.Context, key string) {
	if err := s.revoke(ctx, key); err != nil {
		slogx.FromContext(ctx).Warn("failed to clean up session entry",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

func (s *SessionService) key(subjectType, subjectID string, kind jwtx.Kind, jti string) string {
	return store.Key(s.KeyPrefix, subjectType, subjectID, kind, jti)
}

func (s *SessionService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *SessionService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func wireClaims(c domain.Claims) jwtx.Claims {
	wc := jwtx.Claims{
		SubjectID: c.SubjectID,
		Email:     c.Email,
		Phone:     c.Phone,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
	wc.Subject = c.SubjectType
	return wc
}

func domainClaims(c jwtx.Claims) domain.Claims {
	return domain.Claims{
		SubjectType: c.SubjectType(),
		SubjectID:   c.SubjectID,
		Email:       c.Email,
		Phone:       c.Phone,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
	}
}
