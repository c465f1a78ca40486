// Package session owns the authentication token lifecycle of one running
// portal client: restore from storage, login, enroll, logout and lazy expiry
// checks before authorization-sensitive actions.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"efiling.org/internal/audit"
	"efiling.org/internal/auth"
	"efiling.org/internal/fault"
	"efiling.org/internal/validate"
)

// Registration is the enrollment record sent to the auth collaborator.
type Registration struct {
	NSTIN    string `json:"nstin"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Validate applies the enrollment field rules.
func (r Registration) Validate() error {
	errs := validate.Errors{}
	errs.Check(validate.Required(r.NSTIN), "nstin", "NSTIN is required")
	errs.Check(validate.NSTIN(r.NSTIN), "nstin", "Please enter a valid NSTIN")
	validate.Contact(errs, r.Name, r.Email, r.Phone)
	errs.Check(validate.Required(r.Password), "password", "Password is required")
	errs.Check(validate.Password(r.Password), "password", "Password must be at least 6 characters")
	return errs.Err()
}

// AuthAPI exchanges credentials for a signed token.
type AuthAPI interface {
	Login(ctx context.Context, nstin, password string) (string, error)
	Enroll(ctx context.Context, reg Registration) (string, error)
}

// HeaderSetter controls the default Authorization header of outbound calls.
type HeaderSetter interface {
	SetBearer(token string)
	ClearBearer()
}

// Session is the current authentication state. The zero value is the absent
// session.
type Session struct {
	Identity      auth.Identity
	Token         string
	Authenticated bool
	ExpiresAt     time.Time
}

// Manager holds exactly one Session and is the only writer of it.
type Manager struct {
	api     AuthAPI
	store   TokenStore
	headers HeaderSetter
	now     func() time.Time
	logger  *zap.Logger

	mu      sync.RWMutex
	current Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithHeaders registers the outbound header sink.
func WithHeaders(h HeaderSetter) Option {
	return func(m *Manager) {
		if h != nil {
			m.headers = h
		}
	}
}

type noHeaders struct{}

func (noHeaders) SetBearer(string) {}
func (noHeaders) ClearBearer()     {}

// NewManager constructs an unauthenticated Manager. Call Restore to pick up a
// persisted token.
func NewManager(api AuthAPI, store TokenStore, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		api:     api,
		store:   store,
		headers: noHeaders{},
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore re-derives the session from the persisted token. It never fails:
// a missing, undecodable or expired token leaves the manager unauthenticated
// with storage cleared.
func (m *Manager) Restore(ctx context.Context) Session {
	token, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("token store read failed", zap.Error(err))
		m.teardown(ctx, "restore_unreadable")
		return Session{}
	}
	if strings.TrimSpace(token) == "" {
		m.mu.Lock()
		m.current = Session{}
		m.mu.Unlock()
		return Session{}
	}
	next, err := m.derive(token)
	if err != nil {
		m.logger.Info("discarding persisted token", zap.Error(err))
		m.teardown(ctx, "restore_invalid")
		return Session{}
	}
	m.install(next)
	m.logger.Info("session restored",
		zap.String("user_id", next.Identity.ID),
		zap.String("role", next.Identity.Role.String()),
		zap.Time("expires_at", next.ExpiresAt))
	return next
}

// Login authenticates with NSTIN and password.
func (m *Manager) Login(ctx context.Context, nstin, password string) (Session, error) {
	nstin = strings.TrimSpace(nstin)
	if err := validate.Credentials(nstin, password); err != nil {
		return Session{}, err
	}
	token, err := m.api.Login(ctx, nstin, password)
	if err != nil {
		return Session{}, fault.Classify(err)
	}
	next, err := m.establish(ctx, token)
	if err != nil {
		return Session{}, err
	}
	_ = audit.LogEvent(auth.ContextWithIdentity(ctx, next.Identity), "session.login", map[string]any{
		"role": next.Identity.Role.String(),
	})
	return next, nil
}

// Enroll registers a new taxpayer and authenticates as them.
func (m *Manager) Enroll(ctx context.Context, reg Registration) (Session, error) {
	reg.NSTIN = strings.TrimSpace(reg.NSTIN)
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if err := reg.Validate(); err != nil {
		return Session{}, err
	}
	token, err := m.api.Enroll(ctx, reg)
	if err != nil {
		return Session{}, fault.Classify(err)
	}
	next, err := m.establish(ctx, token)
	if err != nil {
		return Session{}, err
	}
	_ = audit.LogEvent(auth.ContextWithIdentity(ctx, next.Identity), "session.enroll", map[string]any{
		"nstin": next.Identity.NSTIN,
	})
	return next, nil
}

// Logout discards the token everywhere. It always succeeds and is idempotent.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.RLock()
	was := m.current
	m.mu.RUnlock()
	m.teardown(ctx, "logout")
	if was.Authenticated {
		_ = audit.LogEvent(auth.ContextWithIdentity(ctx, was.Identity), "session.logout", nil)
	}
}

// CurrentRole returns the role of the current identity, or
// auth.RoleUnauthenticated.
func (m *Manager) CurrentRole() auth.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.current.Authenticated {
		return auth.RoleUnauthenticated
	}
	return m.current.Identity.Role
}

// Current returns a copy of the current session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Identity returns the current identity and whether one is authenticated.
func (m *Manager) Identity() (auth.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Identity, m.current.Authenticated
}

// Authorize re-checks token expiry and returns the identity to act as. An
// expired token tears the session down and yields fault.ErrUnauthenticated.
func (m *Manager) Authorize(ctx context.Context) (auth.Identity, error) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if !cur.Authenticated {
		return auth.Identity{}, fault.New(fault.ErrUnauthenticated, "Please log in to continue.")
	}
	if cur.ExpiresAt.UnixMilli() <= m.now().UnixMilli() {
		m.teardown(ctx, "expired")
		_ = audit.LogEvent(auth.ContextWithIdentity(ctx, cur.Identity), "session.expired", nil)
		return auth.Identity{}, fault.New(fault.ErrUnauthenticated, "")
	}
	return cur.Identity, nil
}

// RequireRole authorizes the session and applies the route guard for allowed.
func (m *Manager) RequireRole(ctx context.Context, allowed ...auth.Role) (auth.Identity, error) {
	id, err := m.Authorize(ctx)
	if err != nil {
		return auth.Identity{}, err
	}
	if !auth.Allowed(id.Role, allowed...) {
		return auth.Identity{}, fault.New(fault.ErrAuthorization, "")
	}
	return id, nil
}

func (m *Manager) derive(token string) (Session, error) {
	claims, err := auth.DecodeClaims(token)
	if err != nil {
		return Session{}, err
	}
	if !claims.ValidAt(m.now()) {
		return Session{}, auth.ErrTokenExpired
	}
	return Session{
		Identity:      claims.Identity(),
		Token:         token,
		Authenticated: true,
		ExpiresAt:     claims.Expiry(),
	}, nil
}

// establish validates and persists a freshly issued token. Nothing is mutated
// unless every step succeeds.
func (m *Manager) establish(ctx context.Context, token string) (Session, error) {
	next, err := m.derive(token)
	if err != nil {
		return Session{}, fault.Wrap(fault.ErrTransport, err, "The server returned an unusable session token.")
	}
	if err := m.store.Save(ctx, token); err != nil {
		return Session{}, fault.Wrap(fault.ErrTransport, err, "Could not save your session. Please try again.")
	}
	m.install(next)
	m.logger.Info("session established",
		zap.String("user_id", next.Identity.ID),
		zap.String("role", next.Identity.Role.String()),
		zap.Time("expires_at", next.ExpiresAt))
	return next, nil
}

func (m *Manager) install(next Session) {
	m.mu.Lock()
	m.current = next
	m.mu.Unlock()
	m.headers.SetBearer(next.Token)
}

func (m *Manager) teardown(ctx context.Context, reason string) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("token store clear failed", zap.Error(err), zap.String("reason", reason))
	}
	m.headers.ClearBearer()
	m.mu.Lock()
	m.current = Session{}
	m.mu.Unlock()
	m.logger.Debug("session cleared", zap.String("reason", reason))
}
