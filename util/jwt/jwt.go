package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issue mints an HS256 token carrying the user's id and role. Request-side
// verification is echo-jwt's job; this package only signs.
func Issue(secret string, userID int64, role string, ttlHours int) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Duration(ttlHours) * time.Hour).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
