package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateTTL bounds how long an OAuth authorization round-trip may take.
const stateTTL = 15 * time.Minute

// StateClaims is the payload of the opaque state token embedded in a
// provider authorization URL. It correlates the callback with the tenant
// (and optionally the inviting user) and doubles as CSRF protection
// because only this service can produce a valid signature.
type StateClaims struct {
	CompanyID string `json:"company_id"`
	UserID    string `json:"user_id,omitempty"`
	Source    string `json:"source"`
	jwt.RegisteredClaims
}

// IssueStateToken signs a short-lived state token for an OAuth flow.
func IssueStateToken(companyID, userID, source, secret string) (string, error) {
	now := time.Now()
	claims := StateClaims{
		CompanyID: companyID,
		UserID:    userID,
		Source:    source,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
			Issuer:    "saulto",
			Subject:   "oauth_state",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseStateToken validates a state token returned by a provider callback.
// The source claim must match the callback route it arrived on.
func ParseStateToken(tokenStr, source, secret string) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &StateClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid state claims")
	}
	if claims.Source != source {
		return nil, fmt.Errorf("state token issued for %q, callback is %q", claims.Source, source)
	}
	return claims, nil
}
