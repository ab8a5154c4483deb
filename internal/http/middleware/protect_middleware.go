package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/collabtask/authcore/internal/http/response"
	"github.com/collabtask/authcore/internal/service"
)

// Protection declares how a route is guarded. It replaces the old
// annotation-plus-parameter-name binding with an explicit struct: the
// resource id comes from a named URL parameter and the subject from the
// authenticated principal.
type Protection struct {
	ResourceType    string
	Permission      string
	CheckOwner      bool
	ResourceIDParam string
}

// RequireResourcePermission wires the authorization engine in front of a
// handler. It must run after AuthMiddleware.
func RequireResourcePermission(acl service.ResourceAuthorizer, p Protection) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			raw := chi.URLParam(r, p.ResourceIDParam)
			resourceID, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid resource id", map[string]string{"param": p.ResourceIDParam})
				return
			}
			err = acl.Check(r.Context(), service.CheckRequest{
				SubjectID:    principal.UserID,
				ResourceType: p.ResourceType,
				ResourceID:   uint(resourceID),
				Permission:   p.Permission,
				CheckOwner:   p.CheckOwner,
				IPAddress:    r.RemoteAddr,
			})
			if err != nil {
				if errors.Is(err, service.ErrPermissionDenied) {
					response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permission", map[string]string{"required": p.Permission})
					return
				}
				response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "permission check unavailable", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
