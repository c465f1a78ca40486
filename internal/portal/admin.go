package portal

import (
	"context"
	"net/http"
	"net/url"

	"efiling.org/internal/auth"
	"efiling.org/internal/filing"
)

type userListQuery struct {
	Page   int    `url:"page"`
	Search string `url:"search"`
}

// ListUsers returns one page of portal accounts.
func (c *Client) ListUsers(ctx context.Context, page int, search string) (auth.UserPage, error) {
	if page < 1 {
		page = 1
	}
	var out auth.UserPage
	if err := c.getJSON(ctx, opListUsers, "/admin/users", userListQuery{Page: page, Search: search}, &out); err != nil {
		return auth.UserPage{}, err
	}
	return out, nil
}

// CreateUser adds an account.
func (c *Client) CreateUser(ctx context.Context, in auth.UserInput) (auth.User, error) {
	in = in.Normalize()
	if err := in.Validate(true); err != nil {
		return auth.User{}, err
	}
	var out auth.User
	err := c.sendJSON(ctx, opCreateUser, http.MethodPost, "/admin/users", in, &out)
	return out, err
}

// UpdateUser replaces the fields of an account. An empty password keeps the
// current one.
func (c *Client) UpdateUser(ctx context.Context, id string, in auth.UserInput) (auth.User, error) {
	in = in.Normalize()
	if err := in.Validate(false); err != nil {
		return auth.User{}, err
	}
	var out auth.User
	err := c.sendJSON(ctx, opUpdateUser, http.MethodPut, "/admin/users/"+url.PathEscape(id), in, &out)
	return out, err
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, request{op: opDeleteUser, method: http.MethodDelete, path: "/admin/users/" + url.PathEscape(id)}, nil)
}

// Dashboard returns the administrator overview.
func (c *Client) Dashboard(ctx context.Context) (filing.Dashboard, error) {
	var out filing.Dashboard
	err := c.getJSON(ctx, opDashboard, "/admin/dashboard", nil, &out)
	return out, err
}
