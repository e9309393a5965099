package model

// ReplyMeta is the structured metadata the reply generator returns alongside
// the reply text. Defaults apply when the generator cannot produce it.
type ReplyMeta struct {
	Intent      string   `json:"intent"`
	Priority    Priority `json:"priority"`
	NotifyHuman bool     `json:"notify_human"`
	Service     *string  `json:"service,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// GeneratedReply is the reply generator's output.
type GeneratedReply struct {
	Text string
	Meta ReplyMeta
}
