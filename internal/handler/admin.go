package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/audit"
	apperrors "github.com/emersonmadrid/feliz-horizonte-bot/internal/errors"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/httputil"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/router"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/store"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/util"
)

const (
	defaultHistoryLimit = 50
	defaultLearnedLimit = 100
)

// AdminHandler exposes the operator API: live conversations, history,
// learned answers, reply-mode control and metrics.
type AdminHandler struct {
	store   *store.Store
	router  *router.Router
	history repository.MessageLogRepository
	topics  repository.TopicMappingRepository
	learned repository.LearnedResponseRepository
}

func NewAdminHandler(
	st *store.Store,
	rt *router.Router,
	history repository.MessageLogRepository,
	topics repository.TopicMappingRepository,
	learned repository.LearnedResponseRepository,
) *AdminHandler {
	return &AdminHandler{store: st, router: rt, history: history, topics: topics, learned: learned}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/conversations", h.ListConversations)
	r.Delete("/conversations/{identity}", h.ResetConversation)
	r.Get("/conversations/{identity}/history", h.History)
	r.Get("/learned", h.ListLearned)
	r.Delete("/learned/{id}", h.DisableLearned)
	r.Get("/mode", h.GetMode)
	r.Put("/mode", h.SetMode)
	r.Get("/metrics", h.Metrics)

	return r
}

func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	items := h.store.ListActive()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// ResetConversation wipes the live state, the durable history and the
// operator topic mapping. The customer's next message starts from scratch.
func (h *AdminHandler) ResetConversation(w http.ResponseWriter, r *http.Request) {
	identity := util.NormalizePhone(chi.URLParam(r, "identity"))
	if !util.IsValidPhone(identity) {
		httputil.WriteError(w, apperrors.InvalidInput("identity", "must be a phone number of 8 to 15 digits"))
		return
	}

	ctx := r.Context()
	h.router.Reset(ctx, identity)

	if h.history != nil {
		if err := h.history.DeleteByIdentity(ctx, identity); err != nil {
			log.Error().Err(err).Msg("failed to delete conversation history")
		}
	}
	if h.topics != nil {
		if err := h.topics.Delete(ctx, identity); err != nil {
			log.Error().Err(err).Msg("failed to delete topic mapping")
		}
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventConversationReset,
		Identity: util.MaskPhone(identity),
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	identity := util.NormalizePhone(chi.URLParam(r, "identity"))
	if !util.IsValidPhone(identity) {
		httputil.WriteError(w, apperrors.InvalidInput("identity", "must be a phone number of 8 to 15 digits"))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	entries, err := h.history.FindByIdentity(r.Context(), identity, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to load conversation history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"total": len(entries),
	})
}

func (h *AdminHandler) ListLearned(w http.ResponseWriter, r *http.Request) {
	limit := defaultLearnedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	items, err := h.learned.ListActive(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list learned responses")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// DisableLearned retires a learned answer without deleting the row, so a
// bad pairing stops being served but stays auditable.
func (h *AdminHandler) DisableLearned(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("id", "must be a valid id"))
		return
	}

	if err := h.learned.Deactivate(r.Context(), id); err != nil {
		log.Error().Err(err).Msg("failed to deactivate learned response")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventLearnedDisabled,
		Details: map[string]any{"id": id},
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(h.router.Mode())})
}

func (h *AdminHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode is required"})
		return
	}

	mode := model.ReplyMode(req.Mode)
	if !h.router.SetMode(mode) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be auto, manual or smart"})
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventModeChange,
		Details: map[string]any{"mode": req.Mode},
	})

	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m := h.store.Metrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations":  m,
		"mode":           string(h.router.Mode()),
		"durableEnabled": h.store.DurableEnabled(),
	})
}
