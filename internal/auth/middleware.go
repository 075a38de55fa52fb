package auth

import (
	"net/http"
	"strings"

	"github.com/clothesfashion/backend-checkout/internal/common"
)

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier *Verifier
}

// RequireAuth enforces that a valid bearer token is present before executing
// the next handler. The raw token is retained on the context so checkout can
// forward it to the shopper-facing collaborator services.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearer(r)
		if raw == "" {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		user, err := m.Verifier.Verify(raw)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		ctx := common.WithUser(r.Context(), user)
		ctx = common.WithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
