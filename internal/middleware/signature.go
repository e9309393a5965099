package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/audit"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/util"
)

// MetaSignatureMiddleware verifies the X-Hub-Signature-256 header Meta
// attaches to webhook deliveries: "sha256=" plus the hex HMAC-SHA256 of the
// raw body under the app secret. The body is restored for downstream
// handlers.
type MetaSignatureMiddleware struct {
	appSecret string
}

func NewMetaSignatureMiddleware(appSecret string) *MetaSignatureMiddleware {
	return &MetaSignatureMiddleware{appSecret: appSecret}
}

func (m *MetaSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.appSecret == "" {
			log.Warn().Msg("webhook signature verification bypassed: WHATSAPP_APP_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		signature := r.Header.Get("X-Hub-Signature-256")
		if !strings.HasPrefix(signature, "sha256=") {
			log.Warn().Msg("webhook signature middleware: missing or malformed signature header")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventSignatureFailure})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing signature",
			})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("webhook signature middleware: failed to read body")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Failed to read request body",
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.HmacSHA256(m.appSecret, string(body))
		if !util.ConstantTimeEqual(computed, strings.TrimPrefix(signature, "sha256=")) {
			log.Warn().Msg("webhook signature middleware: invalid signature")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventSignatureFailure})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid signature",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
