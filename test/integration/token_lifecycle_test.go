package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestTokenLifecycleEndToEnd(t *testing.T) {
	s := newAuthStack(t)

	access, refresh := s.login(t, 1)

	// The fresh credential validates and is not revoked.
	resp, env := s.doJSON(t, http.MethodGet, "/api/v1/auth/tokens/validate", nil, map[string]string{"token": access})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("validate: status=%d", resp.StatusCode)
	}
	var validated struct {
		Valid  bool `json:"valid"`
		UserID uint `json:"user_id"`
	}
	if err := json.Unmarshal(env.Data, &validated); err != nil {
		t.Fatalf("decode validate: %v", err)
	}
	if !validated.Valid || validated.UserID != 1 {
		t.Fatalf("unexpected validate payload: %+v", validated)
	}

	// Refresh keeps the session but rotates the access credential.
	resp, env = s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/refresh",
		map[string]string{"refresh_token": refresh}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status=%d", resp.StatusCode)
	}
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &refreshed); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if refreshed.AccessToken == access {
		t.Fatal("refresh must mint a new access token")
	}

	// Revoking the old access token leaves the new one working.
	resp, _ = s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/revoke",
		map[string]string{"access_token": access}, map[string]string{"token": refreshed.AccessToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke: status=%d", resp.StatusCode)
	}

	if !s.checkRevoked(t, access) {
		t.Fatal("old access token must read as revoked")
	}
	if s.checkRevoked(t, refreshed.AccessToken) {
		t.Fatal("new access token must not be revoked")
	}

	// Revoke-all sweeps the rest of the session.
	resp, env = s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/revoke-all",
		nil, map[string]string{"token": refreshed.AccessToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke-all: status=%d", resp.StatusCode)
	}
	var swept struct {
		RevokedCount int64 `json:"revoked_count"`
	}
	if err := json.Unmarshal(env.Data, &swept); err != nil {
		t.Fatalf("decode revoke-all: %v", err)
	}
	if swept.RevokedCount != 1 {
		t.Fatalf("expected 1 remaining row revoked, got %d", swept.RevokedCount)
	}
	if !s.checkRevoked(t, refreshed.AccessToken) {
		t.Fatal("swept token must read as revoked")
	}

	// The revoked credential no longer authenticates.
	resp, env = s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/revoke",
		nil, map[string]string{"token": refreshed.AccessToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with revoked token, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED envelope, got %+v", env.Error)
	}
}

func TestTokenRefreshAfterSessionRevocation(t *testing.T) {
	s := newAuthStack(t)

	access, refresh := s.login(t, 1)

	resp, _ := s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/revoke-all",
		nil, map[string]string{"token": access})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke-all: status=%d", resp.StatusCode)
	}

	// The session rows still exist, so refresh keeps working; only the
	// access credentials were invalidated.
	resp, _ = s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/refresh",
		map[string]string{"refresh_token": refresh}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh after sweep: status=%d", resp.StatusCode)
	}
}

func TestTokenRefreshUnknownSessionEndToEnd(t *testing.T) {
	s := newAuthStack(t)

	resp, env := s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/refresh",
		map[string]string{"refresh_token": "never-issued"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "SESSION_NOT_FOUND" {
		t.Fatalf("expected SESSION_NOT_FOUND, got %+v", env.Error)
	}
}

func TestRevocationMarkerExpiryFallsBackToStore(t *testing.T) {
	s := newAuthStack(t)

	access, _ := s.login(t, 1)
	resp, _ := s.doJSON(t, http.MethodPost, "/api/v1/auth/tokens/revoke",
		nil, map[string]string{"token": access})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke: status=%d", resp.StatusCode)
	}

	// Let the redis marker lapse; the store of record still answers.
	s.redis.FastForward(6 * time.Minute)

	if !s.checkRevoked(t, access) {
		t.Fatal("revocation must survive marker expiry")
	}
}

// checkRevoked hits the bare-boolean gateway probe.
func (s *testStack) checkRevoked(t *testing.T, access string) bool {
	t.Helper()
	resp, err := s.client.Get(s.baseURL + "/api/v1/auth/tokens/check-revoked?token=" + access)
	if err != nil {
		t.Fatalf("check-revoked: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check-revoked: status=%d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read check-revoked body: %v", err)
	}
	switch strings.TrimSpace(string(body)) {
	case "true":
		return true
	case "false":
		return false
	default:
		t.Fatalf("expected bare boolean body, got %q", string(body))
		return false
	}
}
