package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/collabtask/authcore/internal/http/middleware"
	"github.com/collabtask/authcore/internal/http/response"
	"github.com/collabtask/authcore/internal/service"
)

// AclHandler exposes grant/revoke for sharing flows ("let user B view my
// task"). The resource reference lives in the body, so authorization runs
// here rather than in the URL-param wrapper: only an owner (or a subject
// holding SHARE on the resource) may hand out or take back grants.
type AclHandler struct {
	acl *service.AclService
}

func NewAclHandler(acl *service.AclService) *AclHandler {
	return &AclHandler{acl: acl}
}

// SharePermission gates grant/revoke on a resource.
const SharePermission = "SHARE"

type grantRequest struct {
	SubjectID      uint   `json:"subject_id"`
	ResourceType   string `json:"resource_type"`
	ResourceID     uint   `json:"resource_id"`
	PermissionCode string `json:"permission_code"`
}

func (h *AclHandler) Grant(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "subject_id, resource_type, resource_id and permission_code are required", nil)
		return
	}
	if err := h.authorizeShare(w, r, principal, req.ResourceType, req.ResourceID); err != nil {
		return
	}
	err := h.acl.Grant(r.Context(), req.SubjectID, req.ResourceType, req.ResourceID, req.PermissionCode, principal.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownPermission) {
			response.Error(w, r, http.StatusBadRequest, "UNKNOWN_PERMISSION", "permission code is not defined for this resource type", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "grant failed", nil)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]bool{"granted": true})
}

func (h *AclHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "subject_id, resource_type, resource_id and permission_code are required", nil)
		return
	}
	if err := h.authorizeShare(w, r, principal, req.ResourceType, req.ResourceID); err != nil {
		return
	}
	revokedBy := principal.UserID
	if err := h.acl.Revoke(r.Context(), req.SubjectID, req.ResourceType, req.ResourceID, req.PermissionCode, &revokedBy); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "revoke failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"revoked": true})
}

func (r grantRequest) valid() bool {
	return r.SubjectID != 0 && r.ResourceType != "" && r.ResourceID != 0 && r.PermissionCode != ""
}

// authorizeShare writes the error response itself and returns non-nil when
// the caller may not manage grants on the resource.
func (h *AclHandler) authorizeShare(w http.ResponseWriter, r *http.Request, principal middleware.Principal, resourceType string, resourceID uint) error {
	err := h.acl.Check(r.Context(), service.CheckRequest{
		SubjectID:    principal.UserID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Permission:   SharePermission,
		CheckOwner:   true,
		IPAddress:    r.RemoteAddr,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrPermissionDenied) {
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "only the resource owner may manage grants", nil)
		return err
	}
	response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "permission check unavailable", nil)
	return err
}
