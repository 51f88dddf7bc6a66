// Package auth issues and verifies the application's own JWTs. Access
// tokens authenticate API calls; refresh tokens are long-lived, carry a
// unique jti, and can be blacklisted on logout.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the app JWT claims.
type Claims struct {
	UserID    int64  `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 JWTs.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssueAccess mints a standalone access token, used by the refresh flow.
func (i *TokenIssuer) IssueAccess(userID int64) (string, error) {
	return i.sign(userID, TypeAccess, i.accessTTL, "")
}

// IssuePair mints an access/refresh token pair for a user.
func (i *TokenIssuer) IssuePair(userID int64) (access, refresh string, err error) {
	access, err = i.IssueAccess(userID)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.sign(userID, TypeRefresh, i.refreshTTL, uuid.NewString())
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (i *TokenIssuer) sign(userID int64, tokenType string, ttl time.Duration, jti string) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Parse validates a token's signature, expiry and type. A token without an
// exp claim is rejected outright, so claims.ExpiresAt is always set on
// success.
func (i *TokenIssuer) Parse(tokenStr, wantType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("token type %q, want %q", claims.TokenType, wantType)
	}
	return claims, nil
}
