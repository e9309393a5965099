package middleware

import (
	"net/http"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
