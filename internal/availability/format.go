package availability

import (
	"fmt"
	"strings"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

// FormatMessage renders an availability result as the customer-facing
// Spanish text. Generic results get the fixed weekly hours plus a note
// that a person will confirm.
func FormatMessage(av model.Availability, schedule WeeklySchedule) string {
	if av.Generic || len(av.Days) == 0 {
		return genericScheduleMessage(schedule)
	}

	var b strings.Builder
	b.WriteString("🗓️ Horarios disponibles:\n")
	for _, day := range av.Days {
		label := day.Day.Weekday().String()
		if sched, ok := schedule[day.Day.Weekday()]; ok {
			label = sched.Label
		}
		b.WriteString(fmt.Sprintf("\n*%s %d/%d*\n", label, day.Day.Day(), int(day.Day.Month())))
		for _, r := range day.Ranges {
			b.WriteString(fmt.Sprintf("• %s a %s\n", r.Start.Format("15:04"), r.End.Format("15:04")))
		}
	}
	b.WriteString("\n¿Qué horario te acomoda? 😊")
	return b.String()
}

func genericScheduleMessage(schedule WeeklySchedule) string {
	var b strings.Builder
	b.WriteString("🗓️ Nuestros horarios de atención:\n\n")
	b.WriteString("• Lunes a Sábado: 9:00 am a 9:00 pm\n")
	b.WriteString("• Domingo: 10:00 am a 3:00 pm\n\n")
	b.WriteString("Cuéntame qué día y hora prefieres y una persona de nuestro equipo confirmará tu cita. 😊")
	return b.String()
}
