package model

import "time"

// BusyInterval is an externally reported range during which no booking is
// possible. Read-only; sourced per day query.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// AvailabilityRange is a maximal run of contiguous free slots. Ephemeral,
// computed on demand, never persisted.
type AvailabilityRange struct {
	Start time.Time
	End   time.Time
}

// DayAvailability groups the free ranges of one calendar day.
type DayAvailability struct {
	Day    time.Time
	Ranges []AvailabilityRange
}

// Availability is the result of an availability query. When Generic is set
// the calendar could not be consulted (or turned up nothing) and the caller
// should present the fixed weekly hours instead; RequiresHuman tells the
// caller a person must confirm the actual slot.
type Availability struct {
	Days          []DayAvailability
	Generic       bool
	RequiresHuman bool
}
