package domain

import "time"

// TokenPair is what a successful login returns: both tokens as signed,
// opaque bearer strings plus the jtis the caller needs for later logout.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // access token lifetime

	AccessJTI  string `json:"-"`
	RefreshJTI string `json:"-"`
}

// SessionEntry is the value stored in the session registry for one live
// token id. Access entries link back to the refresh jti that spawned them;
// refresh entries carry no link.
type SessionEntry struct {
	LinkedRefreshJTI string `json:"jwt_refresh,omitempty"`
}
