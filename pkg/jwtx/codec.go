// Package jwtx signs and parses the bearer tokens issued by the session
// core. Tokens are HMAC-signed JWTs carrying the subject type, a unique
// token id (jti), the token kind, and the identity claims, so verification
// needs only a signature check plus a session-registry liveness lookup.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/saansook/saansook/pkg/idx"
)

var (
	ErrNoSecret   = errors.New("jwtx: signing secret is required")
	ErrUnknownAlg = errors.New("jwtx: unsupported signing algorithm")

	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Token couples the signed wire string with its parsed claims so callers
// can use the fields immediately without re-parsing.
type Token struct {
	Raw    string
	Claims Claims
}

// JTI returns the unique id of this token instance.
func (t Token) JTI() string { return t.Claims.ID }

// Codec signs and parses tokens with a process-wide shared secret. The
// secret is read-only after construction, so a single Codec is safe for
// concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
}

// NewCodec builds a codec for the named HMAC algorithm (HS256, HS384 or
// HS512). alg defaults to HS256 when empty. The issuer is stamped into
// every issued token and is informational only.
func NewCodec(secret []byte, alg, issuer string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}

	var method jwt.SigningMethod
	switch alg {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, ErrUnknownAlg
	}

	return &Codec{secret: secret, method: method, issuer: issuer}, nil
}

// Alg returns the configured signing algorithm name.
func (c *Codec) Alg() string { return c.method.Alg() }

// Issue signs a token of the given kind. A fresh ULID jti is generated,
// issuedAt is stamped with the current time, and expiry is set only when
// ttl > 0; a zero ttl produces a token with no embedded expiry.
func (c *Codec) Issue(claims Claims, kind Kind, ttl time.Duration) (Token, error) {
	now := time.Now().UTC()

	claims.Kind = kind
	claims.Issuer = c.issuer
	claims.ID = idx.New().String()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	} else {
		claims.ExpiresAt = nil
	}

	raw, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, err
	}

	return Token{Raw: raw, Claims: claims}, nil
}

// Parse verifies the signature and structural well-formedness of a token
// string. Expiry is deliberately not checked here; callers follow up with
// Claims.ValidateExpiry so expired-but-authentic tokens are distinguishable
// from tampered ones.
func (c *Codec) Parse(tokenString string) (Token, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != c.method.Alg() {
				return nil, ErrAlgMismatch
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Token{}, mapParseError(err)
	}
	if !parsed.Valid {
		return Token{}, ErrInvalidSig
	}

	return Token{Raw: tokenString, Claims: *claims}, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrMalformed
	}
}
