package utils // package utils provides token helpers shared by tools and tests

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewAccessToken builds and signs an HS256 JWT carrying the claims JWTAuth
// reads: sub is the numeric user id and role is CUSTOMER or ADMIN.  Tokens
// are normally issued by the identity service; this exists for local tools
// and tests.
func NewAccessToken(secret string, userID int64, role string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
