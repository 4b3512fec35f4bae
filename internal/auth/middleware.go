package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rejoinhq/rejoin/internal/api"
)

type ctxKeyClaims struct{}

// Middleware validates the bearer token and stashes the operator claims
// on the request context.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := svc.ValidateAccessToken(token)
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperatorClaims returns the authenticated operator's claims, or nil
// outside an authenticated request.
func GetOperatorClaims(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(ctxKeyClaims{}).(*AccessClaims)
	return claims
}
