package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/CaioWing/Tether/internal/api/response"
	"github.com/CaioWing/Tether/internal/auth"
)

type contextKey string

const operatorKey contextKey = "operator"

// ManagementAuth requires a bearer token issued by jwtMgr and stores its
// operator in the request context.
func ManagementAuth(jwtMgr *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := jwtMgr.Verify(token)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), claims.Operator())))
		})
	}
}

func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}

// Operator returns the authenticated operator, or "" outside ManagementAuth.
func Operator(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey).(string)
	return op
}
