package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/keys"
	"github.com/michal-majer/s4kit/internal/model"
	"github.com/michal-majer/s4kit/internal/service"
)

type contextKeyAuth string

const (
	// APIKeyContextKey is the context key for the authenticated API key.
	APIKeyContextKey contextKeyAuth = "api_key"
	// AdminContextKey is the context key for the authenticated admin.
	AdminContextKey contextKeyAuth = "admin"
)

// APIKeyAuth returns an HTTP middleware that authenticates proxy requests
// by API key. The key is read from the configured header (X-API-Key by
// default) or from an Authorization Bearer token carrying the key format.
//
// A structurally malformed key is a 400: the caller sent something that
// was never a key. A well-formed key that is unknown, revoked, or expired
// is a 401, with one message so the three cases are indistinguishable to
// the caller.
func APIKeyAuth(authSvc *service.AuthService, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			audit := GetAudit(r.Context())

			rawKey := r.Header.Get(header)
			if rawKey == "" {
				if bearer := bearerToken(r); strings.HasPrefix(bearer, keys.Prefix+"_") {
					rawKey = bearer
				}
			}
			if rawKey == "" {
				rejectAuth(w, audit, apperr.Authentication("MISSING_API_KEY",
					"Authentication required. Provide the API key via the "+header+" header."))
				return
			}

			key, err := authSvc.ValidateAPIKey(r.Context(), rawKey)
			if err != nil {
				if errors.Is(err, keys.ErrMalformed) {
					rejectAuth(w, audit, apperr.Validation("INVALID_KEY_FORMAT",
						"The provided API key is not in a recognized format."))
					return
				}
				rejectAuth(w, audit, apperr.Authentication("INVALID_API_KEY", "Invalid API key."))
				return
			}

			if audit != nil {
				audit.APIKey = key
			}
			ctx := context.WithValue(r.Context(), APIKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth returns an HTTP middleware that authenticates management
// requests by JWT bearer token.
func AdminAuth(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAppError(w, apperr.Authentication("MISSING_TOKEN",
					"Authentication required. Provide a Bearer token."))
				return
			}
			principal, err := authSvc.ValidateJWT(r.Context(), token)
			if err != nil {
				writeAppError(w, apperr.Authentication("INVALID_TOKEN", "Invalid or expired token."))
				return
			}
			ctx := context.WithValue(r.Context(), AdminContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey extracts the authenticated API key from the context. Returns
// nil on unauthenticated requests.
func GetAPIKey(ctx context.Context) *model.APIKey {
	if key, ok := ctx.Value(APIKeyContextKey).(*model.APIKey); ok {
		return key
	}
	return nil
}

// GetAdmin extracts the authenticated admin from the context.
func GetAdmin(ctx context.Context) *service.JWTPrincipal {
	if p, ok := ctx.Value(AdminContextKey).(*service.JWTPrincipal); ok {
		return p
	}
	return nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// rejectAuth records the failure on the audit carrier before rendering it,
// so the secure log still gets its one record for rejected requests.
func rejectAuth(w http.ResponseWriter, audit *Audit, e *apperr.Error) {
	if audit != nil {
		audit.Err = e
	}
	writeAppError(w, e)
}

// writeAppError renders the error envelope directly; the handler package
// imports this one, so its helpers cannot be used here.
func writeAppError(w http.ResponseWriter, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
			Context: e.Context,
		},
	})
}
