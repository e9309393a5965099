package availability

import (
	"strings"
	"time"
)

// DaySchedule is the working window of one weekday, in whole hours of the
// business timezone.
type DaySchedule struct {
	StartHour int
	EndHour   int
	Label     string
}

// WeeklySchedule maps each weekday to its working window. A missing entry
// means closed that day.
type WeeklySchedule map[time.Weekday]DaySchedule

// DefaultSchedule mirrors the clinic's published hours.
func DefaultSchedule() WeeklySchedule {
	return WeeklySchedule{
		time.Sunday:    {StartHour: 10, EndHour: 15, Label: "Domingo"},
		time.Monday:    {StartHour: 9, EndHour: 21, Label: "Lunes"},
		time.Tuesday:   {StartHour: 9, EndHour: 21, Label: "Martes"},
		time.Wednesday: {StartHour: 9, EndHour: 21, Label: "Miércoles"},
		time.Thursday:  {StartHour: 9, EndHour: 21, Label: "Jueves"},
		time.Friday:    {StartHour: 9, EndHour: 21, Label: "Viernes"},
		time.Saturday:  {StartHour: 9, EndHour: 21, Label: "Sábado"},
	}
}

var weekdayNames = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miércoles": time.Wednesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sábado":    time.Saturday,
	"sabado":    time.Saturday,
}

// ParseWeekday resolves a Spanish weekday name. The second return is false
// when the name is unknown.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}
