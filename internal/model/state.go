package model

import (
	"encoding/json"
	"time"
)

// SchedulingState tracks the booking funnel for one scheduling attempt.
// Flags only move forward; changing the service preference resets the
// whole record.
type SchedulingState struct {
	PriceConfirmed         bool     `json:"priceConfirmed"`
	PaymentExplained       bool     `json:"paymentExplained"`
	AwaitingPriceConfirm   bool     `json:"awaitingPriceConfirm"`
	AwaitingPaymentConfirm bool     `json:"awaitingPaymentConfirm"`
	PendingService         *string  `json:"pendingService,omitempty"`
	PendingPrice           *float64 `json:"pendingPrice,omitempty"`
}

// Started reports whether any step of the funnel has been taken.
func (s SchedulingState) Started() bool {
	return s.PriceConfirmed || s.PaymentExplained || s.AwaitingPriceConfirm || s.AwaitingPaymentConfirm
}

// ConversationState is the per-customer conversation record. Exactly one
// exists per identity; a fresh record is created implicitly on first access.
type ConversationState struct {
	Identity           string          `json:"identity"`
	LastActivityAt     time.Time       `json:"lastActivityAt"`
	HandoffActive      bool            `json:"handoffActive"`
	AwaitingScheduling bool            `json:"awaitingScheduling"`
	LastIntent         *string         `json:"lastIntent,omitempty"`
	FreeformContext    *string         `json:"freeformContext,omitempty"`
	WelcomeSent        bool            `json:"welcomeSent"`
	ServicePreference  *string         `json:"servicePreference,omitempty"`
	Scheduling         SchedulingState `json:"scheduling"`
}

// NewConversationState returns the default record for an identity.
func NewConversationState(identity string) ConversationState {
	return ConversationState{Identity: identity}
}

// RouterState derives the explicit dialogue state from the record's flags.
func (s ConversationState) RouterState() RouterState {
	switch {
	case s.HandoffActive && s.LastIntent != nil && *s.LastIntent == IntentCrisis:
		return StateCrisis
	case s.HandoffActive:
		return StateHumanHandling
	case s.Scheduling.AwaitingPaymentConfirm:
		return StateAwaitingPaymentConfirm
	case s.Scheduling.AwaitingPriceConfirm:
		return StateAwaitingPriceConfirm
	case s.WelcomeSent && s.ServicePreference == nil:
		return StateAwaitingServiceSelection
	case s.LastIntent != nil:
		return StateAIHandling
	default:
		return StateIdle
	}
}

// StateUpdate is a partial update shallow-merged over the current record by
// Store.Merge. Nil fields leave the current value untouched.
type StateUpdate struct {
	HandoffActive      *bool
	AwaitingScheduling *bool
	LastIntent         *string
	FreeformContext    *string
	WelcomeSent        *bool
	ServicePreference  *string
	Scheduling         *SchedulingState
}

// Apply merges the update into state. LastActivityAt is stamped by the
// store, not here.
func (u StateUpdate) Apply(state *ConversationState) {
	if u.HandoffActive != nil {
		state.HandoffActive = *u.HandoffActive
	}
	if u.AwaitingScheduling != nil {
		state.AwaitingScheduling = *u.AwaitingScheduling
	}
	if u.LastIntent != nil {
		state.LastIntent = u.LastIntent
	}
	if u.FreeformContext != nil {
		state.FreeformContext = u.FreeformContext
	}
	if u.WelcomeSent != nil {
		state.WelcomeSent = *u.WelcomeSent
	}
	if u.ServicePreference != nil {
		// Switching service restarts the funnel from scratch.
		if state.ServicePreference == nil || *state.ServicePreference != *u.ServicePreference {
			state.Scheduling = SchedulingState{}
		}
		state.ServicePreference = u.ServicePreference
	}
	if u.Scheduling != nil {
		state.Scheduling = *u.Scheduling
	}
}

// Bool, Str and Float are pointer helpers for building StateUpdate values.
func Bool(v bool) *bool        { return &v }
func Str(v string) *string     { return &v }
func Float(v float64) *float64 { return &v }

// StateRecord is the durable-store row shape.
type StateRecord struct {
	Identity  string          `db:"identity" json:"identity"`
	State     json.RawMessage `db:"state" json:"state"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}
