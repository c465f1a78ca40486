package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"efiling.org/internal/audit"
	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
	"efiling.org/internal/ids"
	"efiling.org/internal/session"
	"efiling.org/internal/store"
	"efiling.org/internal/validate"
)

type loginRequest struct {
	NSTIN    string `json:"nstin"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      auth.User `json:"user"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	nstin := strings.ToUpper(strings.TrimSpace(req.NSTIN))
	if err := validate.Credentials(nstin, req.Password); err != nil {
		writeFault(w, r, err)
		return
	}
	rec, err := s.store.UserByNSTIN(r.Context(), nstin)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeFault(w, r, storeFault(err, "", ""))
		return
	}
	if err != nil || auth.VerifyPassword(rec.PasswordHash, req.Password) != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"nstin": nstin})
		writeFault(w, r, fault.New(fault.ErrAuthentication, "Invalid NSTIN or password"))
		return
	}
	s.issueToken(w, r, http.StatusOK, rec.User, "auth.login")
}

func (s *Server) enroll(w http.ResponseWriter, r *http.Request) {
	var reg session.Registration
	if err := decodeJSON(r, &reg); err != nil {
		writeFault(w, r, err)
		return
	}
	reg.NSTIN = strings.ToUpper(strings.TrimSpace(reg.NSTIN))
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if err := reg.Validate(); err != nil {
		writeFault(w, r, err)
		return
	}
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), store.UserRecord{
		User: auth.User{
			ID:        ids.At(s.now()),
			NSTIN:     reg.NSTIN,
			Name:      reg.Name,
			Email:     reg.Email,
			Phone:     reg.Phone,
			Role:      auth.RoleUser,
			CreatedAt: s.now().UTC(),
		},
		PasswordHash: hash,
	})
	if err != nil {
		writeFault(w, r, storeFault(err, "", "An account with this NSTIN already exists"))
		return
	}
	s.issueToken(w, r, http.StatusCreated, u, "auth.enrolled")
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, code int, u auth.User, event string) {
	token, exp, err := s.issuer.Issue(u.Identity())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), u.Identity())
	_ = audit.LogEvent(ctx, event, map[string]any{
		"nstin":      u.NSTIN,
		"expires_at": exp.Format(time.RFC3339),
	})
	s.logger.Debug("token issued", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	writeJSON(w, code, tokenResponse{Token: token, ExpiresAt: exp, User: u})
}
