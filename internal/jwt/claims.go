package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// DecodeClaims reads the claims of a messaging access token without checking
// its signature. The platform signs with keys the client never sees; the
// result is only used to decide whether a persisted token is still worth
// presenting.
func DecodeClaims(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, fmt.Errorf("token string is empty")
	}

	mc := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, mc); err != nil {
		return Claims{}, fmt.Errorf("decode token: %w", err)
	}

	return Claims{
		Subject:             stringClaim(mc, "sub"),
		ClientID:            stringClaim(mc, "clientId"),
		OrgID:               stringClaim(mc, "orgId"),
		CapabilitiesVersion: stringClaim(mc, "capabilitiesVersion"),
		Platform:            stringClaim(mc, "platform"),
		IssuedAt:            timeClaim(mc, "iat"),
		ExpiresAt:           timeClaim(mc, "exp"),
	}, nil
}

func stringClaim(mc jwt.MapClaims, name string) string {
	s, _ := mc[name].(string)
	return s
}

func timeClaim(mc jwt.MapClaims, name string) time.Time {
	switch v := mc[name].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}
