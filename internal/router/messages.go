package router

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/availability"
)

// Customer-facing texts. All Spanish, matching the clinic's voice.
const (
	crisisMessage = "Lamento mucho que estés pasando por un momento tan difícil. 💙 " +
		"Tu vida es valiosa y hay personas que pueden ayudarte ahora mismo.\n\n" +
		"📞 *Línea 113, opción 5* (salud mental, gratuita, 24 horas, Perú)\n" +
		"📞 Emergencias: 106\n\n" +
		"Una persona de nuestro equipo te va a escribir en breve. No estás solo/a."

	apologyMessage = "Disculpa, estamos teniendo un inconveniente técnico. 🙏 " +
		"Una persona de nuestro equipo te responderá en breve."

	serviceSelectionPrompt = "¡Hola! Bienvenido/a a Feliz Horizonte. 😊 Somos un servicio " +
		"100% online de salud mental en Perú.\n\n" +
		"¿Qué servicio te interesa?\n\n" +
		"1️⃣ Terapia Psicológica (Lic. Cintya Isabel)\n" +
		"2️⃣ Consulta Psiquiátrica (Dra. Yasmín Meneses)\n\n" +
		"Escríbeme el número o el nombre del servicio."

	paymentMessage = "¡Perfecto! 🎉 Puedes pagar por:\n\n" +
		"💳 Yape o Plin\n" +
		"🏦 Transferencia bancaria\n\n" +
		"El pago se realiza antes de la sesión y te enviamos la confirmación. " +
		"¿Deseas que te comparta los horarios disponibles?"

	handoffResumeMessage = "Gracias por tu paciencia. 😊 Sigo aquí para ayudarte, " +
		"¿en qué más te puedo apoyar?"

	boundaryMessage = "Entendemos que puedas estar molesto/a. 💙 Te pedimos mantener una " +
		"comunicación respetuosa para poder ayudarte de la mejor manera."
)

func priceMessage(svc Service) string {
	return fmt.Sprintf("La *%s* con %s tiene un costo de S/ %.0f (%d minutos, 100%% online "+
		"por Zoom o Google Meet). 💙\n\n¿Deseas agendar una cita?",
		svc.Name, svc.Professional, svc.Price, svc.Minutes)
}

// Service is one entry of the clinic's catalogue.
type Service struct {
	Key          string
	Name         string
	Professional string
	Price        float64
	Minutes      int
}

var services = []Service{
	{Key: "therapy", Name: "Terapia Psicológica", Professional: "la Lic. Cintya Isabel", Price: 140, Minutes: 50},
	{Key: "psychiatry", Name: "Consulta Psiquiátrica", Professional: "la Dra. Yasmín Meneses", Price: 200, Minutes: 45},
}

var serviceMatchers = map[string]*regexp.Regexp{
	"therapy":    regexp.MustCompile(`(?i)\b(1|terapia|psicoterapia|psic[oó]log[oa]?)\b`),
	"psychiatry": regexp.MustCompile(`(?i)\b(2|psiquiatr[aíi]a?|psiqui[aá]tric[oa])\b`),
}

// ServiceByKey resolves a catalogue entry; ok is false for unknown keys.
func ServiceByKey(key string) (Service, bool) {
	for _, s := range services {
		if s.Key == key {
			return s, true
		}
	}
	return Service{}, false
}

// DetectService finds the first catalogue service mentioned in the text.
func DetectService(text string) (Service, bool) {
	for _, s := range services {
		if serviceMatchers[s.Key].MatchString(text) {
			return s, true
		}
	}
	return Service{}, false
}

var crisisKeywords = []string{
	"no quiero vivir",
	"quiero terminar con todo",
	"me quiero morir",
	"no vale la pena",
	"quiero hacerme daño",
	"pensamientos suicidas",
	"suicid",
	"matarme",
	"quitarme la vida",
}

// IsCrisis reports whether the text contains a self-harm signal. Substring
// match over the lowercased text, same policy as the intake validators.
func IsCrisis(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range crisisKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var (
	schedulingIntentRe = regexp.MustCompile(`(?i)(cita|agendar|reservar|separar|sesi[oó]n|consulta|turno|horario\s+disponible|disponibilidad)`)
	affirmativeRe      = regexp.MustCompile(`(?i)^\s*(s[ií]|ok(ay)?|dale|claro|de acuerdo|listo|ya|perfecto|por supuesto|bueno|está bien|esta bien)\b`)
	negativeRe         = regexp.MustCompile(`(?i)^\s*(no|nel|todav[ií]a no|a[uú]n no|luego|despu[eé]s)\b`)

	// Topics an automated reply must never close out on its own.
	needsHumanRe = regexp.MustCompile(`(?i)(medicaci|pastilla|recetar|diagnost|menor|pareja|familia|queja|reclamo|factura)`)
)

func isSchedulingIntent(text string) bool { return schedulingIntentRe.MatchString(text) }
func isAffirmative(text string) bool      { return affirmativeRe.MatchString(text) }
func isNegative(text string) bool         { return negativeRe.MatchString(text) }

// NeedsHuman is the smart-mode heuristic for topics requiring a person.
func NeedsHuman(text string) bool { return needsHumanRe.MatchString(text) }

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func parseWeekdayWord(word string) (time.Weekday, bool) {
	return availability.ParseWeekday(word)
}
