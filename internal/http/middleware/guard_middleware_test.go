package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/collabtask/authcore/internal/service"
)

func newRedisClientForTest(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return client
}

func TestWithLockTimeoutReturns429(t *testing.T) {
	client := newRedisClientForTest(t)
	locks := service.NewRedisLockManager(client, "")
	ctx := context.Background()

	held, err := locks.TryAcquire(ctx, "op:anonymous", 0, time.Minute)
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	defer held.Release(ctx)

	h := WithLock(locks, PrincipalKey("op"), 0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 when the lock is held, got %d", rr.Code)
	}
}

func TestWithLockReleasesAfterHandler(t *testing.T) {
	client := newRedisClientForTest(t)
	locks := service.NewRedisLockManager(client, "")
	ctx := context.Background()

	h := WithLock(locks, PrincipalKey("op"), 0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, rr.Code)
		}
	}

	// The lock must be free once the handler returns.
	guard, err := locks.TryAcquire(ctx, "op:anonymous", 0, time.Minute)
	if err != nil {
		t.Fatalf("lock must be released after the handler: %v", err)
	}
	_ = guard.Release(ctx)
}

func TestWithIdempotencyRejectsDuplicate(t *testing.T) {
	client := newRedisClientForTest(t)
	guard := service.NewRedisIdempotencyGuard(client, "")

	calls := 0
	h := WithIdempotency(guard, PrincipalKey("grant"), 10*time.Second)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first call, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", second.Code)
	}
	if calls != 1 {
		t.Fatalf("handler must run once, ran %d times", calls)
	}
}

func TestWithIdempotencyClearsMarkerOnFailure(t *testing.T) {
	client := newRedisClientForTest(t)
	guard := service.NewRedisIdempotencyGuard(client, "")

	fail := true
	h := WithIdempotency(guard, PrincipalKey("grant"), 10*time.Second)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on failing call, got %d", first.Code)
	}

	// The failed attempt's marker is cleared; the retry runs right away.
	fail = false
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected 201 on retry after failure, got %d", second.Code)
	}
}
