package jwt

import "time"

// Claims are the fields of a messaging access token the client cares about.
type Claims struct {
	Subject             string
	ClientID            string
	OrgID               string
	CapabilitiesVersion string
	Platform            string
	IssuedAt            time.Time
	ExpiresAt           time.Time
}

// Expired reports whether the token is past its expiry at now. Tokens with no
// exp claim never expire.
func (c Claims) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}
