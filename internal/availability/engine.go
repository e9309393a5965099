// Package availability turns busy-time intervals from a read-only calendar
// into bookable free ranges under the clinic's weekly schedule.
package availability

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

// CalendarSource reports externally booked intervals for a window. It may
// fail or time out; the engine degrades to the generic weekly hours.
type CalendarSource interface {
	BusyIntervals(ctx context.Context, start, end time.Time) ([]model.BusyInterval, error)
}

// Engine computes bookable availability. All timestamp arithmetic happens
// in the business timezone; conversion to and from other representations
// belongs to the calendar source and the formatter.
type Engine struct {
	source   CalendarSource
	schedule WeeklySchedule
	loc      *time.Location
	slot     time.Duration
	timeout  time.Duration

	now func() time.Time
}

func NewEngine(source CalendarSource, schedule WeeklySchedule, loc *time.Location, slot, timeout time.Duration) *Engine {
	return &Engine{
		source:   source,
		schedule: schedule,
		loc:      loc,
		slot:     slot,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Next scans up to days calendar days starting today, optionally filtered
// to a single weekday, and returns the free ranges per day. Calendar errors
// and a fully empty window both yield the generic-hours fallback flagged
// for human confirmation.
func (e *Engine) Next(ctx context.Context, days int, weekday *time.Weekday) model.Availability {
	if e.source == nil {
		return genericAvailability()
	}

	now := e.now().In(e.loc)
	var out []model.DayAvailability

	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, i)
		if weekday != nil && day.Weekday() != *weekday {
			continue
		}

		window, ok := e.dayWindow(day, i == 0)
		if !ok {
			continue
		}

		queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
		busy, err := e.source.BusyIntervals(queryCtx, window.Start, window.End)
		cancel()
		if err != nil {
			log.Warn().Err(err).Time("day", day).Msg("busy interval query failed; falling back to generic hours")
			return genericAvailability()
		}

		ranges := MergeConsecutive(FreeSlots(busy, window.Start, window.End, e.slot), e.slot)
		if len(ranges) > 0 {
			out = append(out, model.DayAvailability{Day: day, Ranges: ranges})
		}
	}

	if len(out) == 0 {
		return genericAvailability()
	}
	return model.Availability{Days: out}
}

func genericAvailability() model.Availability {
	return model.Availability{Generic: true, RequiresHuman: true}
}

// dayWindow builds the bookable window of one day from the schedule table.
// For today the start is clamped forward to now so past slots are never
// offered.
func (e *Engine) dayWindow(day time.Time, clampToNow bool) (model.BusyInterval, bool) {
	sched, open := e.schedule[day.Weekday()]
	if !open {
		return model.BusyInterval{}, false
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), sched.StartHour, 0, 0, 0, e.loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), sched.EndHour, 0, 0, 0, e.loc)

	if clampToNow {
		if now := e.now().In(e.loc); now.After(start) {
			start = now
		}
	}
	if !start.Before(end) {
		return model.BusyInterval{}, false
	}
	return model.BusyInterval{Start: start, End: end}, true
}

// FreeSlots enumerates slot starts across [windowStart, windowEnd) and
// keeps those whose slot does not overlap any busy interval. A slot
// [s, s+slot) overlaps [b.Start, b.End) iff s < b.End && s+slot > b.Start.
func FreeSlots(busy []model.BusyInterval, windowStart, windowEnd time.Time, slot time.Duration) []time.Time {
	sorted := make([]model.BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.End.After(b.Start) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var slots []time.Time
	for s := windowStart; s.Before(windowEnd); s = s.Add(slot) {
		slotEnd := s.Add(slot)
		if slotEnd.After(windowEnd) {
			break
		}

		free := true
		for _, b := range sorted {
			if s.Before(b.End) && slotEnd.After(b.Start) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, s)
		}
	}
	return slots
}

// MergeConsecutive folds ascending slot starts into maximal contiguous
// ranges: a slot starting exactly where the previous range ends extends
// it, any gap starts a new range.
func MergeConsecutive(slots []time.Time, slot time.Duration) []model.AvailabilityRange {
	if len(slots) == 0 {
		return nil
	}

	ranges := []model.AvailabilityRange{{Start: slots[0], End: slots[0].Add(slot)}}
	for _, s := range slots[1:] {
		last := &ranges[len(ranges)-1]
		if s.Equal(last.End) {
			last.End = s.Add(slot)
			continue
		}
		ranges = append(ranges, model.AvailabilityRange{Start: s, End: s.Add(slot)})
	}
	return ranges
}
