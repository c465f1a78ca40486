package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of a session token.
type Claims struct {
	UserID string `json:"id"`
	NSTIN  string `json:"nstin"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the identity fields carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		ID:    c.UserID,
		NSTIN: c.NSTIN,
		Name:  c.Name,
		Email: c.Email,
		Role:  c.Role,
	}
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidAt reports whether the token is still valid at now. Validity requires
// exp*1000 > now in milliseconds.
func (c *Claims) ValidAt(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Time.UnixMilli() > now.UnixMilli()
}

// DecodeClaims reads the claims of token without verifying its signature.
// Signature checks stay with the issuer; callers only need identity and
// expiry.
func DecodeClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := checkIdentityClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkIdentityClaims(claims *Claims) error {
	if strings.TrimSpace(claims.UserID) == "" {
		return fmt.Errorf("%w: id claim missing", ErrInvalidToken)
	}
	role, ok := ParseRole(string(claims.Role))
	if !ok {
		return fmt.Errorf("%w: unsupported role %q", ErrInvalidToken, claims.Role)
	}
	claims.Role = role
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: exp claim missing", ErrInvalidToken)
	}
	return nil
}
