// Package auth issues and verifies the bearer tokens of the shelfsync API.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the user and device a token was
// issued to.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Device string `json:"dev,omitempty"`
}

// GenerateToken signs an HS256 token for userID valid until now+validity.
func GenerateToken(userID, device string, secretKey []byte, now time.Time, validity time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(validity)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		Device: device,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// GetUserIDFromToken verifies tokenString and returns its user id.
// Expired tokens yield common.ErrTokenExpired, any other failure
// common.ErrInvalidToken.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", common.ErrTokenExpired
	case err != nil:
		return "", common.ErrInvalidToken
	case !token.Valid || claims.UserID == "":
		return "", common.ErrInvalidToken
	}
	return claims.UserID, nil
}
