// Package router decides how each inbound customer message is answered:
// crisis protocol first, then an active human handoff, deterministic quick
// answers, the scheduling funnel, and finally the configured general mode.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/store"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/util"
)

// ReplyGenerator produces a free-form reply with structured metadata.
type ReplyGenerator interface {
	Generate(ctx context.Context, identity, text string, state model.ConversationState) (model.GeneratedReply, error)
}

// QuickMatcher resolves deterministic canned answers.
type QuickMatcher interface {
	Match(ctx context.Context, text string) (string, bool)
}

// AvailabilityProvider renders the bookable-slots message. requiresHuman is
// true when only the generic weekly hours could be offered.
type AvailabilityProvider interface {
	Message(ctx context.Context, weekday *time.Weekday) (text string, requiresHuman bool)
}

// Sender delivers an outbound text to the customer's channel.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Notifier raises the conversation to a human operator.
type Notifier interface {
	NotifyHuman(ctx context.Context, identity, customerText, reason string, priority model.Priority) error
}

// HistoryLog records messages for context building and the admin surface.
type HistoryLog interface {
	Create(ctx context.Context, params model.CreateMessageLogParams) (*model.MessageLogEntry, error)
}

// Router is the dialogue state machine. One instance serves all identities;
// per-identity serialization comes from the store's identity locks.
type Router struct {
	store    *store.Store
	quick    QuickMatcher
	ai       ReplyGenerator
	avail    AvailabilityProvider
	sender   Sender
	notifier Notifier
	history  HistoryLog
	timers   *Timers

	modeMu sync.RWMutex
	mode   model.ReplyMode
}

type Deps struct {
	Store    *store.Store
	Quick    QuickMatcher
	AI       ReplyGenerator
	Avail    AvailabilityProvider
	Sender   Sender
	Notifier Notifier
	History  HistoryLog

	HandoffWindow      time.Duration
	HandoffWarningLead time.Duration
}

func New(deps Deps) *Router {
	r := &Router{
		store:    deps.Store,
		quick:    deps.Quick,
		ai:       deps.AI,
		avail:    deps.Avail,
		sender:   deps.Sender,
		notifier: deps.Notifier,
		history:  deps.History,
		mode:     model.ReplyModeSmart,
	}
	r.timers = NewTimers(deps.HandoffWindow, deps.HandoffWarningLead, r.handoffWarning, r.handoffExpired)
	return r
}

// Close stops all armed handoff timers.
func (r *Router) Close() {
	r.timers.Stop()
}

// Mode returns the current reply mode.
func (r *Router) Mode() model.ReplyMode {
	r.modeMu.RLock()
	defer r.modeMu.RUnlock()
	return r.mode
}

// SetMode switches the reply mode at runtime.
func (r *Router) SetMode(m model.ReplyMode) bool {
	if !m.Valid() {
		return false
	}
	r.modeMu.Lock()
	r.mode = m
	r.modeMu.Unlock()
	log.Info().Str("mode", string(m)).Msg("reply mode changed")
	return true
}

// HandleMessage runs one inbound customer message through the decision
// ladder. It never returns an error to the webhook; every failure collapses
// into an apology plus human escalation.
func (r *Router) HandleMessage(ctx context.Context, identity, text string) {
	r.logHistory(ctx, identity, model.RoleCustomer, text, nil, nil)

	unlock := r.store.Lock(identity)
	defer unlock()

	state := r.store.Get(ctx, identity)
	if state == nil {
		fresh := model.NewConversationState(identity)
		state = &fresh
	}

	switch {
	case IsCrisis(text):
		r.handleCrisis(ctx, identity, text)
	case state.HandoffActive:
		r.relayDuringHandoff(ctx, identity, text)
	case util.ContainsOffensiveLanguage(text):
		r.reply(ctx, identity, boundaryMessage, model.StateUpdate{LastIntent: model.Str("boundary")})
	default:
		r.decide(ctx, identity, text, state)
	}
}

func (r *Router) decide(ctx context.Context, identity, text string, state *model.ConversationState) {
	// Quick answers never interrupt a funnel in progress.
	if !state.Scheduling.Started() {
		if answer, ok := r.quick.Match(ctx, text); ok {
			r.reply(ctx, identity, answer, model.StateUpdate{LastIntent: model.Str("quick")})
			return
		}
	}

	// Naming a different service mid-funnel restarts the funnel for it.
	if svc, ok := DetectService(text); ok && state.Scheduling.Started() &&
		state.ServicePreference != nil && svc.Key != *state.ServicePreference {
		r.startFunnel(ctx, identity, text, state)
		return
	}

	switch {
	case state.Scheduling.AwaitingPaymentConfirm:
		r.stepPaymentConfirm(ctx, identity, text, state)
	case state.Scheduling.AwaitingPriceConfirm:
		r.stepPriceConfirm(ctx, identity, text, state)
	case state.RouterState() == model.StateAwaitingServiceSelection:
		r.stepServiceSelection(ctx, identity, text, state)
	case isSchedulingIntent(text):
		r.startFunnel(ctx, identity, text, state)
	case !state.WelcomeSent && state.ServicePreference == nil:
		r.reply(ctx, identity, serviceSelectionPrompt, model.StateUpdate{
			WelcomeSent: model.Bool(true),
			LastIntent:  model.Str("welcome"),
		})
	default:
		r.generalReply(ctx, identity, text, state)
	}
}

func (r *Router) handleCrisis(ctx context.Context, identity, text string) {
	log.Warn().Str("identity", identity).Msg("crisis signal detected")

	if err := r.sender.SendText(ctx, identity, crisisMessage); err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("failed to deliver crisis resources")
	}
	r.logHistory(ctx, identity, model.RoleAssistant, crisisMessage, model.Str(model.IntentCrisis), nil)

	if err := r.notifier.NotifyHuman(ctx, identity, text, "🚨 CRISIS: posible riesgo, atender de inmediato", model.PriorityHigh); err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("failed to notify operator of crisis")
	}

	// Handoff without a timer: only an operator reply (or TTL expiry)
	// returns a crisis conversation to automated handling.
	r.timers.Cancel(identity)
	r.store.Merge(ctx, identity, model.StateUpdate{
		HandoffActive: model.Bool(true),
		LastIntent:    model.Str(model.IntentCrisis),
	})
}

func (r *Router) relayDuringHandoff(ctx context.Context, identity, text string) {
	r.store.Touch(ctx, identity)
	if err := r.notifier.NotifyHuman(ctx, identity, text, "mensaje durante atención humana", model.PriorityLow); err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("failed to relay message to operator")
	}
}

func (r *Router) startFunnel(ctx context.Context, identity, text string, state *model.ConversationState) {
	svc, found := DetectService(text)
	if !found && state.ServicePreference != nil {
		svc, found = ServiceByKey(*state.ServicePreference)
	}
	if !found {
		r.reply(ctx, identity, serviceSelectionPrompt, model.StateUpdate{
			WelcomeSent: model.Bool(true),
			LastIntent:  model.Str("scheduling"),
		})
		return
	}

	r.reply(ctx, identity, priceMessage(svc), model.StateUpdate{
		ServicePreference: model.Str(svc.Key),
		LastIntent:        model.Str("scheduling"),
		Scheduling: &model.SchedulingState{
			AwaitingPriceConfirm: true,
			PendingService:       model.Str(svc.Key),
			PendingPrice:         model.Float(svc.Price),
		},
	})
}

func (r *Router) stepServiceSelection(ctx context.Context, identity, text string, state *model.ConversationState) {
	svc, found := DetectService(text)
	if !found {
		r.generalReply(ctx, identity, text, state)
		return
	}

	r.reply(ctx, identity, priceMessage(svc), model.StateUpdate{
		ServicePreference: model.Str(svc.Key),
		LastIntent:        model.Str("scheduling"),
		Scheduling: &model.SchedulingState{
			AwaitingPriceConfirm: true,
			PendingService:       model.Str(svc.Key),
			PendingPrice:         model.Float(svc.Price),
		},
	})
}

func (r *Router) stepPriceConfirm(ctx context.Context, identity, text string, state *model.ConversationState) {
	next := state.Scheduling
	switch {
	case isAffirmative(text):
		next.PriceConfirmed = true
		next.AwaitingPriceConfirm = false
		next.AwaitingPaymentConfirm = true
		r.reply(ctx, identity, paymentMessage, model.StateUpdate{Scheduling: &next})
	case isNegative(text):
		next.AwaitingPriceConfirm = false
		r.reply(ctx, identity, "Entiendo, no hay problema. 😊 Si cambias de opinión o tienes alguna duda, aquí estoy.",
			model.StateUpdate{Scheduling: &next})
	default:
		// Not an answer to the question; confirmed steps stay confirmed.
		r.generalReply(ctx, identity, text, state)
	}
}

func (r *Router) stepPaymentConfirm(ctx context.Context, identity, text string, state *model.ConversationState) {
	next := state.Scheduling
	switch {
	case isAffirmative(text):
		next.PaymentExplained = true
		next.AwaitingPaymentConfirm = false

		msg, requiresHuman := r.avail.Message(ctx, requestedWeekday(text))
		r.reply(ctx, identity, msg, model.StateUpdate{
			Scheduling:         &next,
			AwaitingScheduling: model.Bool(true),
			HandoffActive:      model.Bool(true),
		})

		reason := "cliente listo para agendar, confirmar cita"
		if requiresHuman {
			reason = "cliente listo para agendar (horario genérico, confirmar disponibilidad)"
		}
		if err := r.notifier.NotifyHuman(ctx, identity, text, reason, model.PriorityHigh); err != nil {
			log.Error().Err(err).Str("identity", identity).Msg("failed to notify operator for booking")
		}
		r.timers.Arm(identity)
	case isNegative(text):
		next.AwaitingPaymentConfirm = false
		r.reply(ctx, identity, "Perfecto, cuando gustes retomamos. 😊", model.StateUpdate{Scheduling: &next})
	default:
		r.generalReply(ctx, identity, text, state)
	}
}

func (r *Router) generalReply(ctx context.Context, identity, text string, state *model.ConversationState) {
	mode := r.Mode()

	if mode == model.ReplyModeManual {
		if err := r.notifier.NotifyHuman(ctx, identity, text, "modo manual activo", model.PriorityLow); err != nil {
			log.Error().Err(err).Str("identity", identity).Msg("failed to notify operator in manual mode")
		}
		r.store.Merge(ctx, identity, model.StateUpdate{HandoffActive: model.Bool(true)})
		r.timers.Arm(identity)
		return
	}

	reply, err := r.ai.Generate(ctx, identity, text, *state)
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("reply generation failed; escalating")
		r.reply(ctx, identity, apologyMessage, model.StateUpdate{HandoffActive: model.Bool(true)})
		if nerr := r.notifier.NotifyHuman(ctx, identity, text, "fallo del asistente, atender manualmente", model.PriorityHigh); nerr != nil {
			log.Error().Err(nerr).Str("identity", identity).Msg("failed to notify operator of assistant failure")
		}
		r.timers.Arm(identity)
		return
	}

	update := model.StateUpdate{LastIntent: model.Str(reply.Meta.Intent)}
	if reply.Meta.Service != nil {
		update.ServicePreference = reply.Meta.Service
	}
	if !state.WelcomeSent {
		update.WelcomeSent = model.Bool(true)
	}

	escalate := mode == model.ReplyModeSmart && (reply.Meta.NotifyHuman || NeedsHuman(text))
	if escalate && reply.Meta.Priority == model.PriorityHigh {
		update.HandoffActive = model.Bool(true)
	}

	r.reply(ctx, identity, reply.Text, update)

	if escalate {
		if err := r.notifier.NotifyHuman(ctx, identity, text, "el asistente sugiere revisión humana", reply.Meta.Priority); err != nil {
			log.Error().Err(err).Str("identity", identity).Msg("failed to notify operator")
		}
		if reply.Meta.Priority == model.PriorityHigh {
			r.timers.Arm(identity)
		}
	}
}

// HandleOperatorReply relays an operator message to the customer and
// (re)opens the handoff window.
func (r *Router) HandleOperatorReply(ctx context.Context, identity, text string) error {
	if err := r.sender.SendText(ctx, identity, text); err != nil {
		return err
	}
	r.logHistory(ctx, identity, model.RoleOperator, text, nil, nil)

	unlock := r.store.Lock(identity)
	defer unlock()

	// An operator taking over also closes the crisis protocol; from here
	// the conversation is ordinary human handling with a window.
	r.store.Merge(ctx, identity, model.StateUpdate{
		HandoffActive: model.Bool(true),
		LastIntent:    model.Str("operator"),
	})
	r.timers.Arm(identity)
	return nil
}

// ResumeHandoffs re-arms the warning/expiry pair for records that came out
// of hydration with an active handoff, so a restart cannot leave a
// conversation suppressed forever. Crisis conversations are left alone:
// only an operator reply or TTL expiry closes those.
func (r *Router) ResumeHandoffs() {
	for _, conv := range r.store.ListActive() {
		if !conv.State.HandoffActive || conv.State.RouterState() == model.StateCrisis {
			continue
		}
		r.timers.Arm(conv.Identity)
		log.Info().Str("identity", conv.Identity).Msg("handoff window re-armed after restart")
	}
}

// Reset clears all routing state for an identity: timers plus the stored
// conversation record. History cleanup belongs to the caller.
func (r *Router) Reset(ctx context.Context, identity string) {
	r.timers.Cancel(identity)

	unlock := r.store.Lock(identity)
	defer unlock()
	r.store.Delete(ctx, identity)
}

func (r *Router) handoffWarning(identity string, remaining time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reason := "la ventana de atención humana está por expirar (" + remaining.String() + ")"
	if err := r.notifier.NotifyHuman(ctx, identity, "", reason, model.PriorityLow); err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("failed to send handoff warning")
	}
}

func (r *Router) handoffExpired(identity string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	unlock := r.store.Lock(identity)
	defer unlock()

	state := r.store.Get(ctx, identity)
	if state == nil || !state.HandoffActive {
		return
	}
	if state.RouterState() == model.StateCrisis {
		return
	}

	log.Info().Str("identity", identity).Msg("handoff window expired; resuming automated replies")
	r.store.Merge(ctx, identity, model.StateUpdate{HandoffActive: model.Bool(false)})
	if err := r.sender.SendText(ctx, identity, handoffResumeMessage); err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("failed to send resume message")
	}
	r.logHistory(ctx, identity, model.RoleAssistant, handoffResumeMessage, nil, nil)
}

// reply sends the text, records it, and merges the state update.
func (r *Router) reply(ctx context.Context, identity, text string, update model.StateUpdate) {
	if err := r.sender.SendText(ctx, identity, text); err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("failed to send reply")
	}
	r.logHistory(ctx, identity, model.RoleAssistant, text, update.LastIntent, update.ServicePreference)
	r.store.Merge(ctx, identity, update)
}

func (r *Router) logHistory(ctx context.Context, identity string, role model.MessageRole, content string, intent, service *string) {
	if r.history == nil {
		return
	}
	if _, err := r.history.Create(ctx, model.CreateMessageLogParams{
		Identity: identity,
		Role:     role,
		Content:  content,
		Intent:   intent,
		Service:  service,
	}); err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("failed to record message history")
	}
}

// requestedWeekday extracts an explicitly named weekday from the text.
func requestedWeekday(text string) *time.Weekday {
	for _, word := range splitWords(text) {
		if d, ok := parseWeekdayWord(word); ok {
			return &d
		}
	}
	return nil
}
