// Package ai generates free-form replies with Gemini. Replies carry a
// trailing one-line JSON metadata block that is parsed into structured
// routing hints; anything that goes wrong degrades to a safe greeting.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
)

const businessPrompt = `Eres el asistente oficial de Feliz Horizonte (felizhorizonte.pe), servicio 100% online de salud mental en Perú.
Tono: cálido y empático; profesional y claro. Usa "tú". Emojis con moderación (💙 🤗 ✨ 😊).
Nunca diagnostiques ni cambies/indiques medicación. No prometas horarios exactos ni descuentos.

SERVICIOS:
- Terapia Psicológica: S/ 140, 50 min, 100% online (Zoom/Google Meet). Profesional: Lic. Cintya Isabel. Enfoque: cognitivo-conductual.
- Consulta Psiquiátrica: S/ 200, 100% online (Zoom/Google Meet). Profesional: Dra. Yasmín Meneses. Incluye evaluación médica, diagnóstico y prescripción si corresponde.

PAGOS: Yape, Plin, transferencia bancaria.
POLÍTICAS:
- Reprogramación con 24 horas de anticipación sin penalización.
- Confidencialidad 100% según código de ética profesional.
- La primera sesión es de evaluación inicial.
- Solo con cita previa (no hay atención sin agendar).

DIFERENCIAS:
- Psicólogo: terapia conversacional y estrategias de afrontamiento.
- Psiquiatra: médica(o), puede prescribir si corresponde.

Objetivo:
1) Detectar intención (precios, servicios, horarios, pago, agendar, reprogramar, diferencia psicólogo/psiquiatra, despedida, caso_personal, medicacion, queja).
2) Prioridad: "high" si hay medicación en curso, queja, menores/pareja/familia o caso personal complejo; si no, "low".
3) Redactar respuesta breve (3-6 líneas) empática y clara.
4) Devuelve DOS partes:
   (A) Mensaje para WhatsApp.
   (B) En la línea siguiente, un JSON de una sola línea con:
       {"intent":"...", "priority":"low|high", "notify_human":true|false, "service":"therapy|psychiatry|null", "confidence":0-1}

No pidas ni guardes datos clínicos sensibles por chat.`

const fallbackText = "Gracias por escribirnos 😊 Puedo ayudarte con precios, horarios o a agendar tu cita. ¿Qué necesitas?"

// Generator implements the reply-generator contract over Gemini, with the
// recent message history as conversational context. A nil client (missing
// API key) always answers with the fixed greeting.
type Generator struct {
	client       *genai.Client
	modelID      string
	history      repository.MessageLogRepository
	historyLimit int
}

func NewGenerator(ctx context.Context, apiKey, modelID string, history repository.MessageLogRepository, historyLimit int) (*Generator, error) {
	g := &Generator{modelID: modelID, history: history, historyLimit: historyLimit}
	if strings.TrimSpace(apiKey) == "" {
		log.Warn().Msg("gemini api key not set; replies degrade to the fixed greeting")
		return g, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Generator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func fallbackReply() model.GeneratedReply {
	return model.GeneratedReply{
		Text: fallbackText,
		Meta: model.ReplyMeta{Intent: "info", Priority: model.PriorityLow, Confidence: 0.3},
	}
}

// Generate produces a reply for the customer text. Transport failures and
// empty completions degrade to the fixed greeting rather than erroring, so
// the conversation never stalls on the model.
func (g *Generator) Generate(ctx context.Context, identity, text string, state model.ConversationState) (model.GeneratedReply, error) {
	if g.client == nil {
		return fallbackReply(), nil
	}

	m := g.client.GenerativeModel(g.modelID)
	m.SystemInstruction = genai.NewUserContent(genai.Text(g.systemPrompt(state)))

	cs := m.StartChat()
	cs.History = g.historyContext(ctx, identity)

	resp, err := cs.SendMessage(ctx, genai.Text(text))
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("gemini completion failed")
		return fallbackReply(), nil
	}

	raw, err := completionText(resp)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("gemini returned unusable completion")
		return fallbackReply(), nil
	}

	message, meta := ParseReply(raw)
	return model.GeneratedReply{Text: message, Meta: meta}, nil
}

func (g *Generator) systemPrompt(state model.ConversationState) string {
	var extra strings.Builder
	extra.WriteString(businessPrompt)
	if state.ServicePreference != nil {
		extra.WriteString("\n\nEl cliente ya mostró interés en el servicio: " + *state.ServicePreference + ".")
	}
	if state.FreeformContext != nil {
		extra.WriteString("\nContexto previo: " + *state.FreeformContext)
	}
	return extra.String()
}

// historyContext maps recent logged messages to chat turns. Operator and
// customer messages both count as user turns.
func (g *Generator) historyContext(ctx context.Context, identity string) []*genai.Content {
	if g.history == nil || g.historyLimit <= 0 {
		return nil
	}
	entries, err := g.history.FindByIdentity(ctx, identity, g.historyLimit)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("failed to load history context")
		return nil
	}

	var out []*genai.Content
	for _, e := range entries {
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		role := "user"
		if e.Role == model.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(content)}})
	}
	return out
}

func completionText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("empty content")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("empty text")
	}
	return out, nil
}

func defaultMeta() model.ReplyMeta {
	return model.ReplyMeta{Intent: "info", Priority: model.PriorityLow, Confidence: 0.6}
}

// ParseReply splits a completion into the customer-facing message and the
// trailing one-line JSON metadata. A missing or malformed trailer yields
// the whole completion as message with default metadata.
func ParseReply(raw string) (string, model.ReplyMeta) {
	raw = strings.TrimSpace(raw)
	lines := strings.Split(raw, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	// Models sometimes fence the JSON line.
	last = strings.TrimPrefix(last, "```json")
	last = strings.TrimPrefix(last, "```")
	last = strings.TrimSuffix(last, "```")
	last = strings.TrimSpace(last)

	if !strings.HasPrefix(last, "{") || !strings.HasSuffix(last, "}") {
		return raw, defaultMeta()
	}

	var meta model.ReplyMeta
	if err := json.Unmarshal([]byte(last), &meta); err != nil {
		log.Debug().Err(err).Msg("reply metadata line did not parse")
		return raw, defaultMeta()
	}

	if meta.Priority != model.PriorityHigh {
		meta.Priority = model.PriorityLow
	}
	if meta.Intent == "" {
		meta.Intent = "info"
	}
	if meta.Service != nil {
		svc := strings.ToLower(strings.TrimSpace(*meta.Service))
		if svc != "therapy" && svc != "psychiatry" {
			meta.Service = nil
		} else {
			meta.Service = &svc
		}
	}

	message := strings.TrimSpace(strings.Join(lines[:len(lines)-1], "\n"))
	if message == "" {
		message = fallbackText
	}
	return message, meta
}
