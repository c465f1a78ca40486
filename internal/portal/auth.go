package portal

import (
	"context"
	"net/http"
	"strings"

	"efiling.org/internal/fault"
	"efiling.org/internal/session"
)

type tokenResponse struct {
	Token string `json:"token"`
}

type credentials struct {
	NSTIN    string `json:"nstin"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, nstin, password string) (string, error) {
	var out tokenResponse
	if err := c.sendJSON(ctx, opLogin, http.MethodPost, "/auth/login", credentials{NSTIN: nstin, Password: password}, &out); err != nil {
		return "", err
	}
	return tokenOf(out)
}

// Enroll registers a taxpayer and returns their first session token.
func (c *Client) Enroll(ctx context.Context, reg session.Registration) (string, error) {
	var out tokenResponse
	if err := c.sendJSON(ctx, opEnroll, http.MethodPost, "/auth/enroll", reg, &out); err != nil {
		return "", err
	}
	return tokenOf(out)
}

func tokenOf(out tokenResponse) (string, error) {
	if strings.TrimSpace(out.Token) == "" {
		return "", fault.New(fault.ErrTransport, "The server did not return a session token.")
	}
	return out.Token, nil
}
