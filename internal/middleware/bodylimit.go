package middleware

import (
	"net/http"
)

// Webhook payloads from Meta and Telegram are a few KB at most; anything
// near the cap is either an attack or a misrouted upload.
const defaultWebhookBodyLimit = 256 << 10 // 256KB

type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = defaultWebhookBodyLimit
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

// Handler rejects oversized payloads up front when the Content-Length is
// declared, and caps chunked bodies with a MaxBytesReader so a handler's
// io.ReadAll fails instead of buffering without bound.
func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.ContentLength > m.maxSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Request body too large",
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
