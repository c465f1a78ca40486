package auth

import "errors"

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrMissingKey   = errors.New("auth: signing secret is not configured")
)
