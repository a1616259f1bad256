package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/subtrackd/subtrackd/internal/pkg/env"
)

var ErrInvalidToken = errors.New("invalid token")

func secretKey() []byte {
	return []byte(env.GetEnv("JWT_SECRET", ""))
}

func expiresIn() time.Duration {
	if v, err := strconv.Atoi(env.GetEnv("JWT_EXPIRES_IN_HOURS", "24")); err == nil && v > 0 {
		return time.Duration(v) * time.Hour
	}
	return 24 * time.Hour
}

// Generate creates a signed JWT for a user id and returns it together with
// its expiry (kept for the sign-out blacklist).
func Generate(userID uint) (string, time.Time, error) {
	exp := time.Now().Add(expiresIn())

	claims := jwt.MapClaims{
		"sub": userID,            // subject is the user ID
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(secretKey())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate parses a JWT and returns the user id it was issued for.
func Validate(tokenString string) (uint, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey(), nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return 0, ErrInvalidToken
	}

	// JSON numbers decode as float64
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, ErrInvalidToken
	}
	return uint(sub), nil
}

// ExpiryOf returns the expiry of an already validated token so that sign-out
// can blacklist it for exactly its remaining lifetime.
func ExpiryOf(tokenString string) (time.Time, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey(), nil
	})
	if err != nil {
		return time.Time{}, err
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}, ErrInvalidToken
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, ErrInvalidToken
	}
	return time.Unix(int64(exp), 0), nil
}
