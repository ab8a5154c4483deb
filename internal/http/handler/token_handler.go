package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collabtask/authcore/internal/http/middleware"
	"github.com/collabtask/authcore/internal/http/response"
	"github.com/collabtask/authcore/internal/service"
)

// TokenHandler exposes the token lifecycle to the CRUD layer and the edge
// proxy. Issue is a trusted internal endpoint: the user service has already
// verified credentials by the time it asks for a token pair.
type TokenHandler struct {
	tokens *service.TokenService
}

func NewTokenHandler(tokens *service.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

type issueRequest struct {
	UserID uint `json:"user_id"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       uint   `json:"user_id"`
	ExpiresInMS  int64  `json:"expires_in_ms"`
}

func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "user_id is required", nil)
		return
	}
	token, err := h.tokens.Issue(r.Context(), req.UserID, deviceInfoFromRequest(r))
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "token issuance failed", nil)
		return
	}
	response.JSON(w, r, http.StatusCreated, tokenPairResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		UserID:       token.UserID,
		ExpiresInMS:  time.Until(token.AccessExpiresAt).Milliseconds(),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	UserID      uint   `json:"user_id"`
	ExpiresInMS int64  `json:"expires_in_ms"`
}

func (h *TokenHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "refresh_token is required", nil)
		return
	}
	token, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.Error(w, r, http.StatusUnauthorized, "SESSION_NOT_FOUND", "session ended, please log in again", nil)
		case errors.Is(err, service.ErrSessionExpired):
			response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session ended, please log in again", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "token refresh failed", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, refreshResponse{
		AccessToken: token.AccessToken,
		UserID:      token.UserID,
		ExpiresInMS: time.Until(token.AccessExpiresAt).Milliseconds(),
	})
}

type revokeRequest struct {
	AccessToken string `json:"access_token"`
}

func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		// Logging out the current device: default to the caller's own token.
		req.AccessToken = principal.AccessToken
	}
	revoked, err := h.tokens.Revoke(r.Context(), req.AccessToken, principal.UserID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "token revocation failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"revoked": revoked})
}

type revokeAllRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *TokenHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req revokeAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		req.RefreshToken = principal.RefreshToken
	}
	count, err := h.tokens.RevokeAllBySession(r.Context(), req.RefreshToken, principal.UserID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "session revocation failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]int64{"revoked_count": count})
}

type validateResponse struct {
	Valid  bool `json:"valid"`
	UserID uint `json:"user_id,omitempty"`
}

// Validate answers the gateway's per-request question. Invalid tokens are a
// 200 with valid=false, not an error: the gateway treats this endpoint as a
// pure predicate.
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.Header.Get("token"))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if raw == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "token is required", nil)
		return
	}
	token, err := h.tokens.Validate(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenNotFound),
			errors.Is(err, service.ErrTokenExpired),
			errors.Is(err, service.ErrTokenRevoked):
			response.JSON(w, r, http.StatusOK, validateResponse{Valid: false})
		default:
			response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "token validation failed", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, validateResponse{Valid: true, UserID: token.UserID})
}

// CheckRevoked is the cheaper gateway probe: revocation status only, bare
// boolean body. A blank or unknown token reads as not revoked; whether a
// credential exists at all is the validate endpoint's question.
func (h *TokenHandler) CheckRevoked(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("token"))
	if raw == "" {
		response.Raw(w, http.StatusOK, false)
		return
	}
	revoked, err := h.tokens.IsRevoked(r.Context(), raw)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "revocation check failed", nil)
		return
	}
	response.Raw(w, http.StatusOK, revoked)
}

// deviceInfoFromRequest mirrors the historical extraction rules: coarse
// device type from the user agent, device id from the X-Device-Id header or
// a fresh UUID, client IP as chi's RealIP left it.
func deviceInfoFromRequest(r *http.Request) service.DeviceInfo {
	return service.DeviceInfo{
		Type:      deviceTypeFromUserAgent(r.UserAgent()),
		ID:        deviceID(r),
		IPAddress: clientIP(r),
	}
}

func deviceTypeFromUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "UNKNOWN"
	}
	ua = strings.ToLower(ua)
	switch {
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "IOS"
	case strings.Contains(ua, "android"):
		return "ANDROID"
	default:
		return "WEB"
	}
}

func deviceID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Device-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}
