package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/auth"
	"github.com/loanflow-server/loanflow-server/internal/cases"
	"github.com/loanflow-server/loanflow-server/internal/config"
	"github.com/loanflow-server/loanflow-server/internal/events"
	"github.com/loanflow-server/loanflow-server/internal/metrics"
	"github.com/loanflow-server/loanflow-server/internal/models"
	"github.com/loanflow-server/loanflow-server/internal/storage"
	"github.com/loanflow-server/loanflow-server/internal/validation"
)

type contextKey string

const claimsKey contextKey = "claims"

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	auth      *auth.JWTManager
	validator *validation.Validator
	engine    *cases.Engine
	events    *events.Publisher
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server. The events publisher
// may be nil when NATS is not configured.
func NewRESTServer(cfg *config.Config, store storage.Store, publisher *events.Publisher) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		auth:      auth.NewJWTManager(&cfg.JWT),
		validator: validation.NewValidator(),
		engine:    cases.NewEngine(store),
		events:    publisher,
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the configured router, used by tests
func (s *RESTServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(metrics.Middleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFromContext extracts the authenticated claims
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// resolveTenantID picks the target tenant from the X-Tenant-ID header,
// falling back to the token's default tenant
func resolveTenantID(r *http.Request, claims *auth.Claims) (uuid.UUID, bool) {
	if header := r.Header.Get("X-Tenant-ID"); header != "" {
		id, err := uuid.Parse(header)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	}
	if claims.TenantID != nil {
		return *claims.TenantID, true
	}
	return uuid.Nil, false
}

// requireMember resolves the caller's active membership in the target
// tenant. Authorization is re-derived from current membership state on
// every request, so a revoked membership takes effect immediately.
func (s *RESTServer) requireMember(w http.ResponseWriter, r *http.Request) (*models.Membership, *auth.Claims, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "invalid token")
		return nil, nil, false
	}

	tenantID, ok := resolveTenantID(r, claims)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "missing tenant")
		return nil, nil, false
	}

	member, err := s.store.FindActiveMembership(r.Context(), tenantID, claims.UserID, claims.Email)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusForbidden, "not_member")
			return nil, nil, false
		}
		s.respondError(w, http.StatusInternalServerError, "internal_error")
		return nil, nil, false
	}

	return member, claims, true
}
