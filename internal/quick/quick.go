// Package quick answers frequent questions deterministically: a fixed set
// of pattern-matched canned replies plus operator-taught answers looked up
// by keyword overlap.
package quick

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
)

type cannedAnswer struct {
	pattern *regexp.Regexp
	text    string
}

var canned = []cannedAnswer{
	{
		pattern: regexp.MustCompile(`(?i)(precio|costo|cu[aá]nto\s+(cuesta|cobran|sale)|tarifa)`),
		text: "💙 Nuestras tarifas:\n\n" +
			"• Terapia Psicológica: S/ 140 (50 min, 100% online)\n" +
			"• Consulta Psiquiátrica: S/ 200 (100% online)\n\n" +
			"Pagos por Yape, Plin o transferencia. ¿Te gustaría agendar una cita?",
	},
	{
		pattern: regexp.MustCompile(`(?i)(horario\s+de\s+atenci[oó]n|a\s+qu[eé]\s+hora\s+(abren|cierran|atienden)|qu[eé]\s+d[ií]as\s+atienden)`),
		text: "🗓️ Atendemos:\n\n" +
			"• Lunes a Sábado: 9:00 am a 9:00 pm\n" +
			"• Domingo: 10:00 am a 3:00 pm\n\n" +
			"¿Quieres agendar una cita?",
	},
	{
		pattern: regexp.MustCompile(`(?i)(c[oó]mo\s+(puedo\s+)?pagar|formas?\s+de\s+pago|m[eé]todos?\s+de\s+pago|aceptan\s+(yape|plin|tarjeta))`),
		text: "💳 Aceptamos Yape, Plin y transferencia bancaria. " +
			"El pago se realiza antes de la sesión.",
	},
	{
		pattern: regexp.MustCompile(`(?i)(d[oó]nde\s+(est[aá]n|queda)|direcci[oó]n|ubicaci[oó]n|atienden\s+(virtual|online|por\s+videollamada))`),
		text: "📍 Somos un servicio 100% online: atendemos por videollamada (Zoom o " +
			"Google Meet) a cualquier parte del Perú. No necesitas desplazarte. 😊",
	},
	{
		pattern: regexp.MustCompile(`(?i)(diferencia\s+entre\s+psic[oó]logo\s+y\s+psiquiatra|psic[oó]logo\s+o\s+psiquiatra)`),
		text: "El psicólogo trabaja con terapia y herramientas emocionales; el psiquiatra " +
			"es médico y puede recetar medicación. En Feliz Horizonte somos psicólogos; " +
			"si necesitas evaluación psiquiátrica te orientamos con gusto. 😊",
	},
}

// MinConfidence is the floor under which a learned answer is ignored.
const MinConfidence = 0.7

// Responder resolves quick answers. The learned repository is optional;
// without it only the canned set applies.
type Responder struct {
	learned repository.LearnedResponseRepository
}

func New(learned repository.LearnedResponseRepository) *Responder {
	return &Responder{learned: learned}
}

// Match returns a deterministic answer for the text, canned patterns first,
// then the best keyword-matched learned answer.
func (r *Responder) Match(ctx context.Context, text string) (string, bool) {
	for _, c := range canned {
		if c.pattern.MatchString(text) {
			return c.text, true
		}
	}

	if r.learned == nil {
		return "", false
	}
	keywords := ExtractKeywords(text)
	if len(keywords) == 0 {
		return "", false
	}

	resp, err := r.learned.FindByKeywords(ctx, keywords)
	if err != nil {
		log.Warn().Err(err).Msg("learned response lookup failed")
		return "", false
	}
	if resp == nil || resp.ConfidenceScore < MinConfidence {
		return "", false
	}

	if err := r.learned.MarkUsed(ctx, resp.ID); err != nil {
		log.Warn().Err(err).Str("id", resp.ID).Msg("failed to bump learned response usage")
	}
	return resp.HumanResponse, true
}

// Learn stores an operator's answer keyed by the customer question it
// addressed, so the same question can be answered automatically next time.
func (r *Responder) Learn(ctx context.Context, identity, question, answer string) error {
	if r.learned == nil {
		return nil
	}
	keywords := ExtractKeywords(question)
	if len(keywords) == 0 {
		return nil
	}
	_, err := r.learned.Create(ctx, model.CreateLearnedResponseParams{
		QuestionPattern: question,
		HumanResponse:   answer,
		Keywords:        keywords,
		Category:        "aprendida",
		Identity:        identity,
	})
	return err
}

var stopwords = map[string]struct{}{
	"como": {}, "cual": {}, "cuales": {}, "cuando": {}, "donde": {},
	"desde": {}, "entre": {}, "este": {}, "esta": {}, "estos": {},
	"hola": {}, "para": {}, "pero": {}, "porque": {}, "puede": {},
	"pueden": {}, "puedo": {}, "quiero": {}, "saber": {}, "sobre": {},
	"tengo": {}, "tiene": {}, "tienen": {}, "una": {}, "unos": {},
	"ustedes": {}, "gracias": {}, "buenas": {}, "buenos": {}, "dias": {},
	"tardes": {}, "noches": {},
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

const maxKeywords = 5

var wordRe = regexp.MustCompile(`[a-z]+`)

// ExtractKeywords normalizes the text (lowercase, accents stripped) and
// returns up to 5 significant words of 4+ characters.
func ExtractKeywords(text string) []string {
	normalized := accentReplacer.Replace(strings.ToLower(text))
	words := wordRe.FindAllString(normalized, -1)

	var keywords []string
	seen := make(map[string]struct{})
	for _, w := range words {
		if len(w) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
