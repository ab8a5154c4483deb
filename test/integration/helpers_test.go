package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/http/handler"
	"github.com/collabtask/authcore/internal/http/router"
	"github.com/collabtask/authcore/internal/repository"
	"github.com/collabtask/authcore/internal/service"
)

type testStack struct {
	baseURL string
	client  *http.Client
	redis   *miniredis.Miniredis
	tokens  *service.TokenService
	acl     *service.AclService
	audits  repository.AuditRepository
}

// newAuthStack boots the whole service over sqlite and miniredis. Task 10
// belongs to user 1; the TASK resource type defines VIEW, EDIT and SHARE.
func newAuthStack(t *testing.T) *testStack {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Token{}, &domain.AclGrant{}, &domain.PermissionDefinition{}, &domain.AuditEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	defs := repository.NewPermissionDefinitionRepository(db)
	for _, code := range []string{"VIEW", "EDIT", "SHARE"} {
		if err := defs.Create(&domain.PermissionDefinition{
			ResourceType:   "TASK",
			PermissionCode: code,
			IsActive:       true,
		}); err != nil {
			t.Fatalf("seed %s: %v", code, err)
		}
	}

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	tokens := service.NewTokenService(
		repository.NewTokenRepository(db),
		service.NewRedisRevocationMarkerStore(client, ""),
		2*time.Hour, 7*24*time.Hour, 5*time.Minute, 7*24*time.Hour,
	)
	audits := repository.NewAuditRepository(db)
	acl := service.NewAclService(
		repository.NewAclGrantRepository(db),
		defs,
		audits,
		service.NewOwnerResolverRegistry(),
	)
	acl.Owners().Register("TASK", service.OwnerResolverFunc(func(_ context.Context, resourceID, subjectID uint) (bool, error) {
		return resourceID == 10 && subjectID == 1, nil
	}))

	h := router.NewRouter(router.Dependencies{
		TokenHandler:      handler.NewTokenHandler(tokens),
		AclHandler:        handler.NewAclHandler(acl),
		TokenValidator:    tokens,
		Locks:             service.NewRedisLockManager(client, ""),
		Idempotency:       service.NewRedisIdempotencyGuard(client, ""),
		LockWaitTime:      time.Second,
		LockLeaseTime:     30 * time.Second,
		IdempotencyWindow: 10 * time.Second,
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	return &testStack{
		baseURL: ts.URL,
		client:  ts.Client(),
		redis:   server,
		tokens:  tokens,
		acl:     acl,
		audits:  audits,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *testStack) doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.baseURL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp, env
}

func (s *testStack) login(t *testing.T, userID uint) (access, refresh string) {
	t.Helper()
	resp, env := s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens", map[string]uint{"user_id": userID}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("issue failed: status=%d body=%s", resp.StatusCode, string(env.Data))
	}
	var data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode token pair: %v", err)
	}
	return data.AccessToken, data.RefreshToken
}
