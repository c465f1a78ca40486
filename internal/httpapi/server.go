// Package httpapi is the reference e-filing REST API: accounts, templates,
// submissions and their review, served under /api.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"efiling.org/internal/auth"
	"efiling.org/internal/blob"
	"efiling.org/internal/filing"
	"efiling.org/internal/obs"
	"efiling.org/internal/store"
)

const (
	// AdminPageSize is the page size of the administrator listings.
	AdminPageSize = 10
	// DashboardRecent is the number of submissions shown on the dashboard.
	DashboardRecent = 5

	multipartMemory = 8 << 20
)

// Server wires the store, blob storage and token issuer to HTTP handlers.
type Server struct {
	store    store.Store
	blobs    blob.Store
	issuer   *auth.Issuer
	backend  *storeBackend
	workflow *filing.Workflow
	logger   *zap.Logger
	now      func() time.Time
	version  string

	ratePerSec   float64
	rateBurst    int
	maxBodyBytes int64
	corsOrigins  []string
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Server) {
		if fn != nil {
			s.now = fn
		}
	}
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRateLimit sets the per-IP token bucket. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.ratePerSec = perSecond
		s.rateBurst = burst
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// New returns a server over st, blobs and issuer.
func New(st store.Store, blobs blob.Store, issuer *auth.Issuer, opts ...Option) *Server {
	s := &Server{
		store:        st,
		blobs:        blobs,
		issuer:       issuer,
		logger:       zap.NewNop(),
		now:          time.Now,
		version:      "dev",
		ratePerSec:   20,
		rateBurst:    40,
		maxBodyBytes: 20 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.backend = &storeBackend{store: st, blobs: blobs, logger: s.logger}
	s.workflow = filing.NewWorkflow(s.backend, s.backend, filing.WithClock(s.now), filing.WithLogger(s.logger))
	return s
}

// Handler returns the routed API wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.routes()
	h = MaxBodyBytes(h, s.maxBodyBytes)
	h = RateLimit(h, s.rateBurst, s.ratePerSec)
	h = CORS(h, s.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/enroll", s.enroll).Methods(http.MethodPost)

	priv := api.NewRoute().Subrouter()
	priv.Use(s.withAuth)
	priv.HandleFunc("/templates", s.listTemplates).Methods(http.MethodGet)
	priv.HandleFunc("/templates/types", s.templateTypes).Methods(http.MethodGet)
	priv.HandleFunc("/templates/count", s.templateCount).Methods(http.MethodGet)
	priv.HandleFunc("/templates/download-log", s.logDownload).Methods(http.MethodPost)
	priv.HandleFunc("/users/profile/{id}", s.profile).Methods(http.MethodGet)
	priv.HandleFunc("/users/profile", s.updateProfile).Methods(http.MethodPut)
	priv.HandleFunc("/users/password", s.changePassword).Methods(http.MethodPut)
	priv.HandleFunc("/files/{key:.+}", s.serveFile).Methods(http.MethodGet)

	taxpayer := priv.NewRoute().Subrouter()
	taxpayer.Use(RequireRole(auth.RoleUser))
	taxpayer.HandleFunc("/submissions", s.createSubmission).Methods(http.MethodPost)
	taxpayer.HandleFunc("/submissions/recent", s.ownSubmissions).Methods(http.MethodGet)

	admin := priv.NewRoute().Subrouter()
	admin.Use(RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/templates", s.createTemplate).Methods(http.MethodPost)
	admin.HandleFunc("/templates/{id}", s.deleteTemplate).Methods(http.MethodDelete)
	admin.HandleFunc("/admin/submissions", s.listSubmissions).Methods(http.MethodGet)
	admin.HandleFunc("/admin/submissions/{id}/approve", s.reviewSubmission(filing.StatusApproved)).Methods(http.MethodPut)
	admin.HandleFunc("/admin/submissions/{id}/reject", s.reviewSubmission(filing.StatusRejected)).Methods(http.MethodPut)
	admin.HandleFunc("/admin/users", s.listUsers).Methods(http.MethodGet)
	admin.HandleFunc("/admin/users", s.createUser).Methods(http.MethodPost)
	admin.HandleFunc("/admin/users/{id}", s.updateUser).Methods(http.MethodPut)
	admin.HandleFunc("/admin/users/{id}", s.deleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/admin/dashboard", s.dashboard).Methods(http.MethodGet)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "efiled",
		"version": s.version,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}
