// Package middleware holds the chi middleware layered onto the
// administrative routes.
package middleware

import (
	"net/http"

	"github.com/marmos91/dapagg/pkg/api"
	"github.com/marmos91/dapagg/pkg/auth"
)

// RequireAdmin authenticates administrative routes against the
// configured shared-secret set (§4.7). A missing or non-matching
// Authorization header halts the pipeline with 401 before the handler
// runs.
func RequireAdmin(authr *auth.AdminAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authr.Authenticate(r.Header.Get("Authorization")) {
				api.JSON(w, http.StatusUnauthorized, api.ErrorResponse("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
