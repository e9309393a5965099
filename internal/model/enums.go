package model

// RouterState is the explicit dialogue state of one conversation.
type RouterState string

const (
	StateIdle                     RouterState = "IDLE"
	StateAIHandling               RouterState = "AI_HANDLING"
	StateAwaitingServiceSelection RouterState = "AWAITING_SERVICE_SELECTION"
	StateAwaitingPriceConfirm     RouterState = "AWAITING_PRICE_CONFIRM"
	StateAwaitingPaymentConfirm   RouterState = "AWAITING_PAYMENT_CONFIRM"
	StateHumanHandling            RouterState = "HUMAN_HANDLING"
	StateCrisis                   RouterState = "CRISIS"
)

// IntentCrisis marks a record whose handoff was opened by the crisis
// protocol; it is what distinguishes CRISIS from plain HUMAN_HANDLING.
const IntentCrisis = "crisis"

// ReplyMode controls how unclassified messages are routed.
type ReplyMode string

const (
	ReplyModeAuto   ReplyMode = "auto"   // always auto-reply
	ReplyModeManual ReplyMode = "manual" // always hold for a human
	ReplyModeSmart  ReplyMode = "smart"  // auto unless heuristics or AI flag a human
)

func (m ReplyMode) Valid() bool {
	switch m {
	case ReplyModeAuto, ReplyModeManual, ReplyModeSmart:
		return true
	}
	return false
}

// Priority of a generated reply, as reported by the reply generator.
type Priority string

const (
	PriorityLow  Priority = "low"
	PriorityHigh Priority = "high"
)

// Message roles in the conversation history.
type MessageRole string

const (
	RoleCustomer  MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleOperator  MessageRole = "operator"
)
