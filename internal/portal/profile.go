package portal

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"efiling.org/internal/auth"
)

// Profile returns the account with id.
func (c *Client) Profile(ctx context.Context, id string) (auth.User, error) {
	var out auth.User
	err := c.getJSON(ctx, opProfile, "/users/profile/"+url.PathEscape(id), nil, &out)
	return out, err
}

// UpdateProfile changes the caller's contact details.
func (c *Client) UpdateProfile(ctx context.Context, in auth.ProfileUpdate) (auth.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.Validate(); err != nil {
		return auth.User{}, err
	}
	var out auth.User
	err := c.sendJSON(ctx, opUpdateProfile, http.MethodPut, "/users/profile", in, &out)
	return out, err
}

// ChangePassword replaces the caller's password.
func (c *Client) ChangePassword(ctx context.Context, in auth.PasswordChange) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return c.sendJSON(ctx, opChangePassword, http.MethodPut, "/users/password", in, nil)
}
