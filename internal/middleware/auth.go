package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/stay-reconciler/internal/auth"
	"github.com/josh-kwaku/stay-reconciler/internal/handler"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
)

// Auth admits requests carrying a valid bearer token with the given scope.
func Auth(secret string, scope auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}
			if !claims.Has(scope) {
				handler.RespondAppError(w, handler.ErrInsufficientScope, nil)
				return
			}

			log := logging.FromContext(r.Context()).With("operator_id", claims.OperatorID)
			ctx := logging.WithLogger(auth.ContextWithClaims(r.Context(), claims), log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
