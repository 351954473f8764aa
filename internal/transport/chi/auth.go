package chi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/transport/identity"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// AuthMiddleware validates the Authorization header with v and stores the caller's
// principal in the request context. A nil validator disables authentication.
func AuthMiddleware(v identity.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if strings.TrimSpace(auth) == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "missing authorization header")
				return
			}

			p, err := v.Validate(r.Context(), auth)
			if err != nil {
				logger.FromContext(r.Context()).Info("authentication failed", zap.Error(err))
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.ContextWithPrincipal(r.Context(), p)))
		})
	}
}
