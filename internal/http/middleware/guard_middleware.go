package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/collabtask/authcore/internal/http/response"
	"github.com/collabtask/authcore/internal/service"
)

// LockKeyFunc derives the lock or idempotency key from the request. It runs
// after AuthMiddleware, so the principal is available via context.
type LockKeyFunc func(r *http.Request) string

// PrincipalKey keys a guard by scope plus authenticated user id, the shape
// the old user+operation idempotency keys had.
func PrincipalKey(scope string) LockKeyFunc {
	return func(r *http.Request) string {
		if p, ok := PrincipalFromContext(r.Context()); ok {
			return fmt.Sprintf("%s:%d", scope, p.UserID)
		}
		return scope + ":anonymous"
	}
}

// WithLock serializes a route under a distributed lock. A caller that
// cannot acquire within the wait window gets LOCK_TIMEOUT, never a silent
// pass-through.
func WithLock(locks *service.RedisLockManager, keyFunc LockKeyFunc, wait, lease time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guard, err := locks.TryAcquire(r.Context(), keyFunc(r), wait, lease)
			if err != nil {
				if errors.Is(err, service.ErrLockTimeout) {
					response.Error(w, r, http.StatusTooManyRequests, "LOCK_TIMEOUT", "operation busy, try again later", nil)
					return
				}
				response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "lock backend unavailable", nil)
				return
			}
			defer func() {
				if err := guard.Release(r.Context()); err != nil {
					slog.WarnContext(r.Context(), "lock release failed", "error", err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdempotency rejects a repeated call with the same key inside the
// window. When the guarded handler fails (5xx or 4xx), the marker is
// cleared so the client can retry immediately.
func WithIdempotency(guard service.IdempotencyGuard, keyFunc LockKeyFunc, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			admitted, err := guard.Begin(r.Context(), key, window)
			if err != nil {
				response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "idempotency backend unavailable", nil)
				return
			}
			if !admitted {
				response.Error(w, r, http.StatusConflict, "DUPLICATE_REQUEST", "duplicate request, already processed", nil)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				if err := guard.Clear(r.Context(), key); err != nil {
					slog.WarnContext(r.Context(), "idempotency marker clear failed", "key", key, "error", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}
