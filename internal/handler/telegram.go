package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/router"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/util"
)

// Learner records an operator answer so the quick responder can reuse it.
type Learner interface {
	Learn(ctx context.Context, identity, question, answer string) error
}

// TopicSender posts acknowledgements back into the operator group.
type TopicSender interface {
	SendToTopic(ctx context.Context, threadID int64, html string) error
}

// TelegramHandler receives Bot API webhook updates from the operator
// group. Messages written inside a customer's forum topic are relayed to
// that customer; slash commands control the bot.
type TelegramHandler struct {
	router      *router.Router
	topics      repository.TopicMappingRepository
	history     repository.MessageLogRepository
	learner     Learner
	sender      TopicSender
	groupChatID int64
}

func NewTelegramHandler(
	rt *router.Router,
	topics repository.TopicMappingRepository,
	history repository.MessageLogRepository,
	learner Learner,
	sender TopicSender,
	groupChatID int64,
) *TelegramHandler {
	return &TelegramHandler{
		router:      rt,
		topics:      topics,
		history:     history,
		learner:     learner,
		sender:      sender,
		groupChatID: groupChatID,
	}
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID       int64  `json:"message_id"`
	MessageThreadID int64  `json:"message_thread_id"`
	Text            string `json:"text"`
	From            *struct {
		ID    int64 `json:"id"`
		IsBot bool  `json:"is_bot"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// Webhook always answers 200 so Telegram does not redeliver updates.
func (h *TelegramHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("invalid telegram update")
		w.WriteHeader(http.StatusOK)
		return
	}

	msg := update.Message
	if msg == nil || msg.Text == "" || (msg.From != nil && msg.From.IsBot) || msg.Chat.ID != h.groupChatID {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if strings.HasPrefix(msg.Text, "/") {
		h.handleCommand(ctx, msg)
	} else if msg.MessageThreadID != 0 {
		h.relayOperatorReply(ctx, msg)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *TelegramHandler) handleCommand(ctx context.Context, msg *telegramMessage) {
	fields := strings.Fields(msg.Text)
	switch fields[0] {
	case "/modo":
		if len(fields) < 2 {
			h.ack(ctx, msg.MessageThreadID, "Uso: /modo auto | manual | smart. Modo actual: "+string(h.router.Mode()))
			return
		}
		mode := model.ReplyMode(strings.ToLower(fields[1]))
		if !h.router.SetMode(mode) {
			h.ack(ctx, msg.MessageThreadID, "Modo desconocido. Opciones: auto, manual, smart.")
			return
		}
		h.ack(ctx, msg.MessageThreadID, "✅ Modo cambiado a "+string(mode))

	case "/reset":
		mapping, err := h.topics.FindByTopicID(ctx, msg.MessageThreadID)
		if err != nil || mapping == nil {
			h.ack(ctx, msg.MessageThreadID, "Este tema no está asociado a ninguna conversación.")
			return
		}
		h.router.Reset(ctx, mapping.Identity)
		h.ack(ctx, msg.MessageThreadID, "✅ Conversación reiniciada, el bot vuelve a responder.")

	default:
		log.Debug().Str("command", fields[0]).Msg("ignoring unknown telegram command")
	}
}

func (h *TelegramHandler) relayOperatorReply(ctx context.Context, msg *telegramMessage) {
	mapping, err := h.topics.FindByTopicID(ctx, msg.MessageThreadID)
	if err != nil {
		log.Error().Err(err).Int64("threadID", msg.MessageThreadID).Msg("failed to resolve topic mapping")
		return
	}
	if mapping == nil {
		log.Debug().Int64("threadID", msg.MessageThreadID).Msg("message in unmapped topic ignored")
		return
	}

	identity := mapping.Identity
	if err := h.router.HandleOperatorReply(ctx, identity, msg.Text); err != nil {
		log.Error().Err(err).Str("identity", util.MaskPhone(identity)).Msg("failed to deliver operator reply")
		h.ack(ctx, msg.MessageThreadID, "⚠️ No se pudo entregar el mensaje al cliente.")
		return
	}

	h.learnFromReply(ctx, identity, msg.Text)
}

// learnFromReply pairs the operator's answer with the customer's last
// question so the quick responder can answer it next time.
func (h *TelegramHandler) learnFromReply(ctx context.Context, identity, answer string) {
	if h.learner == nil {
		return
	}

	entries, err := h.history.FindByIdentity(ctx, identity, 10)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load history for learning")
		return
	}

	var question string
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == model.RoleCustomer {
			question = entries[i].Content
			break
		}
	}
	if question == "" {
		return
	}

	if err := h.learner.Learn(ctx, identity, question, answer); err != nil {
		log.Warn().Err(err).Msg("failed to store learned response")
	}
}

func (h *TelegramHandler) ack(ctx context.Context, threadID int64, text string) {
	if h.sender == nil {
		return
	}
	if err := h.sender.SendToTopic(ctx, threadID, text); err != nil {
		log.Warn().Err(err).Msg("failed to send telegram acknowledgement")
	}
}
