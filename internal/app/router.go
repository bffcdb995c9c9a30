package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hoaboard/hoaboard/internal/audit"
	"github.com/hoaboard/hoaboard/internal/auth"
	"github.com/hoaboard/hoaboard/internal/ledger"
	"github.com/hoaboard/hoaboard/internal/observability"
	"github.com/hoaboard/hoaboard/internal/platform/httpx"
	"github.com/hoaboard/hoaboard/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	AuthHandler    *auth.Handler
	LedgerHandler  *ledger.Handler
	AuditHandler   *audit.Handler
}

// NewRouter assembles the chi router with the full middleware chain.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(p.Metrics.Middleware)
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         p.Logger,
		Config:         p.Config,
		SessionManager: p.SessionManager,
		CSRFManager:    p.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())

	p.AuthHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin(p.Logger))
		p.LedgerHandler.MountRoutes(r)
		p.AuditHandler.MountRoutes(r)
	})

	return r
}

// requireAdmin rejects requests without a signed-in administrator.
func requireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.Admin() == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
