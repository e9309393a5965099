package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/router"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/util"
)

// dispatchTimeout bounds the background processing of one inbound message,
// including the reply-generator call.
const dispatchTimeout = 60 * time.Second

// WhatsAppHandler receives Meta Cloud API webhook traffic. The POST handler
// always answers 200: any non-2xx makes Meta retry and eventually disable
// the webhook subscription.
type WhatsAppHandler struct {
	router      *router.Router
	verifyToken string
}

func NewWhatsAppHandler(rt *router.Router, verifyToken string) *WhatsAppHandler {
	return &WhatsAppHandler{router: rt, verifyToken: verifyToken}
}

// Verify answers the GET subscription challenge.
func (h *WhatsAppHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken && h.verifyToken != "" {
		log.Info().Msg("whatsapp webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	log.Warn().Str("mode", q.Get("hub.mode")).Msg("whatsapp webhook verification rejected")
	w.WriteHeader(http.StatusForbidden)
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []inboundMessage `json:"messages"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Webhook ingests customer messages and dispatches them to the router in
// the background so the HTTP response returns immediately.
func (h *WhatsAppHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("invalid whatsapp webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.dispatch(msg)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WhatsAppHandler) dispatch(msg inboundMessage) {
	if msg.Type != "text" || msg.Text == nil {
		log.Debug().Str("type", msg.Type).Msg("ignoring non-text whatsapp message")
		return
	}

	identity := util.NormalizePhone(msg.From)
	if !util.IsValidPhone(identity) {
		log.Warn().Str("from", util.MaskPhone(msg.From)).Msg("ignoring message from invalid phone")
		return
	}

	text := msg.Text.Body
	log.Info().Str("identity", util.MaskPhone(identity)).Int("length", len(text)).Msg("received whatsapp message")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		h.router.HandleMessage(ctx, identity, text)
	}()
}
