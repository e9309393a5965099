package telegram

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
)

// Notifier raises conversations to the operator group, one forum topic per
// customer phone. Topic ids are persisted so the same customer always lands
// in the same thread.
type Notifier struct {
	client *Client
	topics repository.TopicMappingRepository
}

func NewNotifier(client *Client, topics repository.TopicMappingRepository) *Notifier {
	return &Notifier{client: client, topics: topics}
}

// NotifyHuman posts the customer's message and the escalation reason into
// the customer's topic, creating the topic on first contact. A stale topic
// mapping is recreated once.
func (n *Notifier) NotifyHuman(ctx context.Context, identity, customerText, reason string, priority model.Priority) error {
	if !n.client.Configured() {
		log.Info().Str("identity", identity).Str("reason", reason).
			Msg("operator notification simulated (telegram not configured)")
		return nil
	}

	topicID, known, err := n.topicFor(ctx, identity)
	if err != nil {
		return err
	}

	html := renderNotification(identity, customerText, reason, priority)
	if err := n.client.SendToTopic(ctx, topicID, html); err == nil {
		return nil
	} else if !known {
		return err
	}

	// The stored topic may have been deleted in Telegram; open a fresh one.
	log.Warn().Str("identity", identity).Int64("topicId", topicID).
		Msg("stored topic rejected; recreating")
	topicID, err = n.createTopic(ctx, identity)
	if err != nil {
		return err
	}
	return n.client.SendToTopic(ctx, topicID, html)
}

func (n *Notifier) topicFor(ctx context.Context, identity string) (topicID int64, known bool, err error) {
	mapping, err := n.topics.FindByIdentity(ctx, identity)
	if err != nil {
		return 0, false, fmt.Errorf("topic lookup failed: %w", err)
	}
	if mapping != nil {
		return mapping.TopicID, true, nil
	}

	topicID, err = n.createTopic(ctx, identity)
	return topicID, false, err
}

func (n *Notifier) createTopic(ctx context.Context, identity string) (int64, error) {
	topicID, err := n.client.CreateForumTopic(ctx, "📱 +"+identity)
	if err != nil {
		return 0, fmt.Errorf("topic creation failed: %w", err)
	}
	if err := n.topics.Upsert(ctx, identity, topicID); err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("failed to persist topic mapping")
	}
	return topicID, nil
}

func renderNotification(identity, customerText, reason string, priority model.Priority) string {
	icon := "💬"
	if priority == model.PriorityHigh {
		icon = "🚨"
	}
	html := fmt.Sprintf("%s <b>%s</b>\n<b>Cliente:</b> +%s", icon, EscapeHTML(reason), EscapeHTML(identity))
	if customerText != "" {
		html += "\n\n" + EscapeHTML(customerText)
	}
	return html
}
