// Package auth issues and verifies the fabric's bearer tokens and hosts
// the Telegram initData verification primitive used by the auth service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
)

// Token lifetimes.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// Token types carried in the token_type claim. Refresh tokens are never
// accepted where an access token is required.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeAdmin   = "admin"
)

// Claims are the fabric's JWT claims.
type Claims struct {
	UserID    int64  `json:"user_id,omitempty"`
	AdminID   int64  `json:"admin_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with the process-global symmetric
// secret.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer. The secret is mandatory; config enforces
// that before this is reached.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// IssueAccess signs a one-hour access token for a user.
func (i *Issuer) IssueAccess(userID int64, username string) (string, error) {
	return i.sign(Claims{
		UserID:    userID,
		Username:  username,
		TokenType: TokenTypeAccess,
	}, AccessTokenTTL)
}

// IssueRefresh signs a long-lived refresh token for a user.
func (i *Issuer) IssueRefresh(userID int64, username string) (string, error) {
	return i.sign(Claims{
		UserID:    userID,
		Username:  username,
		TokenType: TokenTypeRefresh,
	}, RefreshTokenTTL)
}

// IssueAdmin signs an admin-scoped access token.
func (i *Issuer) IssueAdmin(adminID int64) (string, error) {
	return i.sign(Claims{
		AdminID:   adminID,
		TokenType: TokenTypeAdmin,
	}, AccessTokenTTL)
}

func (i *Issuer) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning catalog errors for the
// middleware to surface.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierr.ExpiredToken()
		}
		return nil, apierr.InvalidToken("invalid token")
	}
	if !token.Valid {
		return nil, apierr.InvalidToken("invalid token")
	}
	return claims, nil
}

// VerifyAccess verifies a token and requires a user access token.
func (i *Issuer) VerifyAccess(tokenString string) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, apierr.InvalidToken("access token required")
	}
	return claims, nil
}

// VerifyRefresh verifies a token and requires the refresh token_type.
func (i *Issuer) VerifyRefresh(tokenString string) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, apierr.InvalidToken("refresh token required")
	}
	return claims, nil
}

// VerifyAdmin verifies a token and requires the admin token_type.
func (i *Issuer) VerifyAdmin(tokenString string) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAdmin || claims.AdminID == 0 {
		return nil, apierr.Forbidden("admin token required")
	}
	return claims, nil
}
