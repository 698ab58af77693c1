// Package auth identifies host members from signed bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Member is the host user on whose behalf a request runs.
type Member struct {
	ID   string
	Name string
}

type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs an HS256 token for member valid for ttl.
func IssueToken(secret []byte, member Member, ttl time.Duration) (string, error) {
	if member.ID == "" {
		return "", fmt.Errorf("issue token: empty member id")
	}
	now := time.Now()
	claims := Claims{
		Name: member.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   member.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (Member, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Member{}, ErrInvalidToken
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Member{}, ErrExpiredToken
		}
		return Member{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return Member{}, ErrInvalidToken
	}
	return Member{ID: claims.Subject, Name: claims.Name}, nil
}
