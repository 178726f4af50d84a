package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"

	// ActorKey is the context key for the resolved administrator.
	ActorKey contextKeyAuth = "actor"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateJWT(ctx context.Context, token string) (*service.Principal, error)
}

// ActorResolver maps an identity to the administrator acting for it.
type ActorResolver interface {
	ResolveActor(ctx context.Context, identityID string) (service.Actor, error)
}

// Authenticate returns an HTTP middleware that validates the JWT bearer
// token in the Authorization header. On success the Principal is attached to
// the request context. On failure a 401 JSON error response is returned.
func Authenticate(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			p, err := tokens.ValidateJWT(r.Context(), token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, service.ErrTokenExpired) {
					msg = "Token expired"
				}
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}

			annotate(r.Context(), "identity", p.IdentityID)
			ctx := context.WithValue(r.Context(), AuthPrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin resolves the authenticated principal to an administrator
// once per request and stores the Actor in the context. Identities without
// an administrator record get 403. It must be used after Authenticate.
func RequireAdmin(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			actor, err := resolver.ResolveActor(r.Context(), p.IdentityID)
			if err != nil {
				if errors.Is(err, service.ErrAuthorizationDenied) {
					writeAuthError(w, http.StatusForbidden, "Admin access required")
					return
				}
				writeAuthError(w, http.StatusInternalServerError, "Failed to resolve administrator")
				return
			}

			annotate(r.Context(), "role", string(actor.Role))
			ctx := context.WithValue(r.Context(), ActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

// GetActor returns the administrator resolved by RequireAdmin.
func GetActor(ctx context.Context) (service.Actor, bool) {
	a, ok := ctx.Value(ActorKey).(service.Actor)
	return a, ok
}

// WithActor returns a copy of ctx carrying actor. Handlers under test use it
// to skip the token round trip.
func WithActor(ctx context.Context, actor service.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
