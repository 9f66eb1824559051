package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultRedirect is where a completed login lands when no usable redirect
// path was carried in the OAuth state.
const DefaultRedirect = "/activity"

// StateClaims is the payload of the signed OAuth state parameter.
type StateClaims struct {
	Redirect string `json:"redirect"`
	jwt.RegisteredClaims
}

// SignState creates the state value sent to the authorize endpoint.
func SignState(secret []byte, redirect string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &StateClaims{
		Redirect: SafeRedirect(redirect),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseState validates a state value and returns the redirect path it carries.
func ParseState(secret []byte, state string) (string, error) {
	if state == "" {
		return "", errors.New("empty state")
	}
	claims := &StateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid state")
	}
	return SafeRedirect(claims.Redirect), nil
}

// SafeRedirect only lets same-origin absolute paths through.
func SafeRedirect(path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "\\") {
		return DefaultRedirect
	}
	return path
}
