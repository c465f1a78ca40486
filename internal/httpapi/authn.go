package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
	"efiling.org/internal/store"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth verifies the bearer token and attaches the identity it carries.
// Tokens of deleted accounts, and tokens whose role no longer matches the
// account, are rejected so the client has to log in again.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := s.issuer.Verify(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "Token expired"
			}
			unauthorized(w, r, msg)
			return
		}
		rec, err := s.store.UserByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				unauthorized(w, r, "Account no longer exists")
				return
			}
			writeFault(w, r, storeFault(err, "", ""))
			return
		}
		if rec.Role != claims.Role {
			unauthorized(w, r, "Your role has changed. Please log in again.")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), claims.Identity())
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits callers whose identity carries one of roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, r, "Authentication required")
				return
			}
			if !auth.Allowed(id.Role, roles...) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeFault(w, r, fault.New(fault.ErrAuthorization, "Access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="efile"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// caller returns the identity attached by withAuth.
func caller(r *http.Request) *auth.Identity {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	return &id
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
