package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"efiling.org/internal/auth"
	"efiling.org/internal/ids"
	"efiling.org/internal/store"
)

// AdminSeed describes the administrator account created on first start.
type AdminSeed struct {
	NSTIN    string
	Password string
	Name     string
	Email    string
	Phone    string
}

// EnsureAdmin creates the seed administrator unless an account with its NSTIN
// already exists. It reports whether an account was created.
func EnsureAdmin(ctx context.Context, st store.Store, seed AdminSeed, now time.Time) (bool, error) {
	in := auth.UserInput{
		NSTIN:    seed.NSTIN,
		Name:     seed.Name,
		Email:    seed.Email,
		Phone:    seed.Phone,
		Password: seed.Password,
		Role:     auth.RoleAdmin,
	}
	if strings.TrimSpace(in.Name) == "" {
		in.Name = "Administrator"
	}
	if strings.TrimSpace(in.Email) == "" {
		in.Email = "admin@efiling.local"
	}
	if strings.TrimSpace(in.Phone) == "" {
		in.Phone = "0000000000"
	}
	in = in.Normalize()
	if err := in.Validate(true); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}

	if _, err := st.UserByNSTIN(ctx, in.NSTIN); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("bootstrap admin lookup: %w", err)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return false, err
	}
	_, err = st.CreateUser(ctx, store.UserRecord{
		User: auth.User{
			ID:        ids.At(now),
			NSTIN:     in.NSTIN,
			Name:      in.Name,
			Email:     in.Email,
			Phone:     in.Phone,
			Role:      auth.RoleAdmin,
			CreatedAt: now.UTC(),
		},
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	return true, nil
}
