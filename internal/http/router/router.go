package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/collabtask/authcore/internal/http/handler"
	"github.com/collabtask/authcore/internal/http/middleware"
	"github.com/collabtask/authcore/internal/http/response"
	"github.com/collabtask/authcore/internal/service"
)

// ReadinessCheck pings one dependency with a short deadline.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Dependencies struct {
	TokenHandler *handler.TokenHandler
	AclHandler   *handler.AclHandler

	TokenValidator service.TokenValidator
	Locks          *service.RedisLockManager
	Idempotency    service.IdempotencyGuard

	LockWaitTime      time.Duration
	LockLeaseTime     time.Duration
	IdempotencyWindow time.Duration

	ReadinessChecks []ReadinessCheck
	EnableOTelHTTP  bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		results := make([]map[string]string, 0, len(dep.ReadinessChecks))
		ready := true
		for _, check := range dep.ReadinessChecks {
			status := "ok"
			if err := check.Check(ctx); err != nil {
				status = err.Error()
				ready = false
			}
			results = append(results, map[string]string{"name": check.Name, "status": status})
		}
		if !ready {
			response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
			return
		}
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
	})

	authn := middleware.AuthMiddleware(dep.TokenValidator)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth/tokens", func(r chi.Router) {
			r.Post("/", dep.TokenHandler.Issue)
			r.Post("/refresh", dep.TokenHandler.Refresh)
			r.With(authn).Post("/revoke", dep.TokenHandler.Revoke)
			revokeAllChain := []func(http.Handler) http.Handler{authn}
			if dep.Locks != nil {
				// One revoke-all sweep per user at a time across the fleet.
				revokeAllChain = append(revokeAllChain,
					middleware.WithLock(dep.Locks, middleware.PrincipalKey("token:revoke_all"), dep.LockWaitTime, dep.LockLeaseTime))
			}
			r.With(revokeAllChain...).Post("/revoke-all", dep.TokenHandler.RevokeAll)
			r.Get("/validate", dep.TokenHandler.Validate)
			r.Get("/check-revoked", dep.TokenHandler.CheckRevoked)
		})

		r.Route("/acl/grants", func(r chi.Router) {
			grantChain := []func(http.Handler) http.Handler{authn}
			if dep.Idempotency != nil {
				grantChain = append(grantChain,
					middleware.WithIdempotency(dep.Idempotency, middleware.PrincipalKey("acl:grants:create"), dep.IdempotencyWindow))
			}
			r.With(grantChain...).Post("/", dep.AclHandler.Grant)
			r.With(authn).Delete("/", dep.AclHandler.Revoke)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
