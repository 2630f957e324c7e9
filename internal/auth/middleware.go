package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-raffle/internal/logger"
)

type contextKey string

const identityKey contextKey = "vendor_identity"

// Middleware rejects requests without a valid bearer token and stores the
// caller's identity in the request context
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.Warn("AUTH", fmt.Sprintf("%s %s rejected: %v", r.Method, r.URL.Path, err))
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// VendorEmail is the acting vendor, empty when the request is unauthenticated
func VendorEmail(ctx context.Context) string {
	if identity, ok := ctx.Value(identityKey).(Identity); ok {
		return identity.Email
	}
	return ""
}

func UserID(ctx context.Context) string {
	if identity, ok := ctx.Value(identityKey).(Identity); ok {
		return identity.Subject
	}
	return ""
}
