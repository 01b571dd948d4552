// Package hostapi implements the untrusted host process's HTTP surface:
// bearer-JWT authentication, request/response middleware, rate limiting,
// and the route handlers that front the enclave RPC service and job
// engine.
package hostapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/store"
)

// IdentityClaims are the bearer JWT claims this service trusts.
type IdentityClaims struct {
	Issuer  string
	Subject string
}

// Authenticator verifies upstream IdP JWTs via JWKS discovery and maps the
// subject to a stable user UUID.
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
	issuer   string
}

// NewAuthenticator performs OIDC discovery against issuerURL. This makes
// a network call to fetch the provider's public keys; the underlying
// oidc.Provider caches JWKS per its own TTL.
func NewAuthenticator(ctx context.Context, issuerURL, audience string) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %s: %w", issuerURL, err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: audience, SupportedSigningAlgs: []string{oidc.RS256}})
	return &Authenticator{verifier: verifier, issuer: issuerURL}, nil
}

// Authenticate validates a Bearer token and returns its claims.
func (a *Authenticator) Authenticate(ctx context.Context, bearerHeader string) (*IdentityClaims, error) {
	token := strings.TrimPrefix(bearerHeader, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("empty bearer token")
	}

	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	var claims struct {
		Subject string `json:"sub"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extracting claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	return &IdentityClaims{Issuer: idToken.Issuer, Subject: claims.Subject}, nil
}

type identityContextKey struct{}

// WithIdentity stores a resolved user UUID on the request context.
func WithIdentity(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, identityContextKey{}, userID)
}

// IdentityFromContext returns the authenticated user's UUID, if any.
func IdentityFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(identityContextKey{}).(uuid.UUID)
	return id, ok
}

// Middleware verifies the bearer token on every request and maps the
// subject to a stable user UUID via store.UserUUID, creating the user row
// on first sight.
func Middleware(auth *Authenticator, q *store.Queries) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			user, err := q.GetOrCreateUser(r.Context(), claims.Issuer, claims.Subject)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "resolving user identity")
				return
			}

			ctx := WithIdentity(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
