package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/audit"
	apperrors "github.com/emersonmadrid/feliz-horizonte-bot/internal/errors"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/httputil"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/util"
)

// AdminAuthMiddleware guards the operations API with a static bearer token
// checked against a bcrypt hash. With no hash configured every request is
// rejected; the admin surface is opt-in.
type AdminAuthMiddleware struct {
	tokenHash string
}

func NewAdminAuthMiddleware(tokenHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{tokenHash: tokenHash}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokenHash == "" {
			httputil.WriteError(w, apperrors.Forbidden("Admin API is not enabled"))
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing bearer token"))
			return
		}

		if !util.CheckPasswordHash(token, m.tokenHash) {
			log.Warn().Msg("admin auth: invalid token")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid admin token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
