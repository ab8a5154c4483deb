package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/collabtask/authcore/internal/http/response"
	"github.com/collabtask/authcore/internal/service"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated caller resolved from an opaque access
// token. The token itself is carried so revoke-current-token call sites can
// reach it without re-reading headers.
type Principal struct {
	UserID       uint
	AccessToken  string
	RefreshToken string
}

// AuthMiddleware resolves the bearer credential against the token store.
// The token travels in the `token` header (gateway contract) with a
// standard Authorization bearer fallback.
func AuthMiddleware(tokens service.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			token, err := tokens.Validate(r.Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrTokenNotFound),
					errors.Is(err, service.ErrTokenExpired),
					errors.Is(err, service.ErrTokenRevoked):
					response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				default:
					response.Error(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "token validation unavailable", nil)
				}
				return
			}
			principal := Principal{
				UserID:       token.UserID,
				AccessToken:  token.AccessToken,
				RefreshToken: token.RefreshToken,
			}
			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// BearerToken extracts the opaque credential from the request.
func BearerToken(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get("token")); raw != "" {
		return raw
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
