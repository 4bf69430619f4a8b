// Package auth signs and verifies the bearer tokens handed out by the
// account server: access and refresh tokens carrying a ClaimSet, and
// single-purpose recovery tokens carrying RecoveryClaims.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClaimSet is the point-in-time identity snapshot embedded in access and
// refresh tokens. Subject holds the email; IssuedAt and ExpiresAt are set by
// GenerateToken.
type ClaimSet struct {
	jwt.RegisteredClaims
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// RecoveryClaims identify the account a password-recovery token was issued for.
type RecoveryClaims struct {
	jwt.RegisteredClaims
	ID int64 `json:"id"`
}

var validMethods = []string{jwt.SigningMethodHS256.Alg()}

// stamp fills the registered claims every token gets: a fresh jti so that
// two tokens minted within the same second never collide, iat and exp.
func stamp(rc *jwt.RegisteredClaims, subject string, validityDuration time.Duration) {
	now := time.Now()
	rc.Subject = subject
	rc.ID = uuid.NewString()
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(now.Add(validityDuration))
}

func sign(claims jwt.Claims, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GenerateToken signs claims with HS256. Subject is forced to claims.Email.
func GenerateToken(claims ClaimSet, secretKey []byte, validityDuration time.Duration) (string, error) {
	stamp(&claims.RegisteredClaims, claims.Email, validityDuration)
	return sign(claims, secretKey)
}

// ParseToken verifies signature, algorithm and expiry and returns the
// decoded claims. An expired token yields common.ErrTokenExpired; any other
// failure yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*ClaimSet, error) {
	claims := &ClaimSet{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return nil, err
	}
	if claims.ID == 0 || claims.Email == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// GenerateRecoveryToken signs a recovery token for the given account.
func GenerateRecoveryToken(id int64, email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	claims := RecoveryClaims{ID: id}
	stamp(&claims.RegisteredClaims, email, validityDuration)
	return sign(claims, secretKey)
}

func ParseRecoveryToken(tokenString string, secretKey []byte) (*RecoveryClaims, error) {
	claims := &RecoveryClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func parse(tokenString string, claims jwt.Claims, secretKey []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods(validMethods), jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}

	if !token.Valid {
		return common.ErrInvalidToken
	}

	return nil
}
