package jwtx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates access tokens from refresh tokens via the "type" claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is one of the known token kinds.
func (k Kind) Valid() bool { return k == KindAccess || k == KindRefresh }

// Default token TTL constants. Access tokens are short-lived; refresh
// sessions default to no embedded expiry and live until explicit logout.
const (
	DefaultAccessTokenTTL = 15 * time.Minute
)

// Claims are the token payload. The registered subject ("sub") carries the
// subject type (e.g. "customer"), and the subject's id is embedded under a
// derived "{sub}_id" key so a verified token is self-contained: no profile
// fetch is needed on the hot validation path.
type Claims struct {
	jwt.RegisteredClaims

	// Kind is the "type" claim, access or refresh.
	Kind Kind `json:"-"`

	// SubjectID is serialized under the "{sub}_id" payload key.
	SubjectID string `json:"-"`

	/* Display attributes copied from the subject profile at issuance. */

	Email     string `json:"-"`
	Phone     string `json:"-"`
	FirstName string `json:"-"`
	LastName  string `json:"-"`
}

// SubjectType returns the registered subject claim.
func (c Claims) SubjectType() string { return c.Subject }

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it is valid (nbf). Tokens without exp never expire by this check;
// they still depend on the session registry for effective expiry.
func (c Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}

// claimKeys that are owned by the codec rather than the profile.
const (
	claimKind      = "type"
	claimEmail     = "email"
	claimPhone     = "phone"
	claimFirstName = "first_name"
	claimLastName  = "last_name"
)

// MarshalJSON flattens the custom fields into the payload, writing the
// subject id under the dynamic "{sub}_id" key.
func (c Claims) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(c.RegisteredClaims)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	payload[claimKind] = string(c.Kind)
	if c.Subject != "" && c.SubjectID != "" {
		payload[c.Subject+"_id"] = c.SubjectID
	}
	setIfNotEmpty(payload, claimEmail, c.Email)
	setIfNotEmpty(payload, claimPhone, c.Phone)
	setIfNotEmpty(payload, claimFirstName, c.FirstName)
	setIfNotEmpty(payload, claimLastName, c.LastName)

	return json.Marshal(payload)
}

// UnmarshalJSON restores the custom fields, resolving the "{sub}_id" key
// from the registered subject.
func (c *Claims) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &c.RegisteredClaims); err != nil {
		return err
	}

	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	c.Kind = Kind(stringClaim(payload, claimKind))
	if c.Subject != "" {
		c.SubjectID = stringClaim(payload, c.Subject+"_id")
	}
	c.Email = stringClaim(payload, claimEmail)
	c.Phone = stringClaim(payload, claimPhone)
	c.FirstName = stringClaim(payload, claimFirstName)
	c.LastName = stringClaim(payload, claimLastName)

	return nil
}

func setIfNotEmpty(payload map[string]any, key, value string) {
	if value != "" {
		payload[key] = value
	}
}

func stringClaim(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
