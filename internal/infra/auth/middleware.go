package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator - интерфейс проверки входящего токена
type TokenValidator interface {
	VerifyToken(tokenStr string) (domain.IdentityClaims, error)
}

type ctxKey string

const (
	claimsKey      ctxKey = "identity_claims"
	bearerTokenKey ctxKey = "bearer_token"
)

// NewMiddleware проверяет Authorization и кладет claims и сырой токен в контекст.
// Сырой токен нужен egress-режиму forward_bearer.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				writeUnauthorized(w)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = context.WithValue(ctx, bearerTokenKey, BearerToken(authHeader))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="spaceai-gateway"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}

func WithClaims(ctx context.Context, c domain.IdentityClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func ClaimsFromContext(ctx context.Context) (domain.IdentityClaims, bool) {
	c, ok := ctx.Value(claimsKey).(domain.IdentityClaims)
	return c, ok
}

func BearerFromContext(ctx context.Context) string {
	s, _ := ctx.Value(bearerTokenKey).(string)
	return s
}
