package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/store"
)

type sentMessage struct {
	to   string
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type notification struct {
	identity string
	text     string
	reason   string
	priority model.Priority
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (f *fakeNotifier) NotifyHuman(_ context.Context, identity, text, reason string, priority model.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notification{identity, text, reason, priority})
	return nil
}

func (f *fakeNotifier) notifications() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.calls...)
}

type fakeQuick struct {
	answer string
	ok     bool
}

func (f *fakeQuick) Match(_ context.Context, _ string) (string, bool) { return f.answer, f.ok }

type fakeAI struct {
	reply model.GeneratedReply
	err   error
	calls int
}

func (f *fakeAI) Generate(_ context.Context, _, _ string, _ model.ConversationState) (model.GeneratedReply, error) {
	f.calls++
	if f.err != nil {
		return model.GeneratedReply{}, f.err
	}
	return f.reply, nil
}

type fakeAvail struct {
	text          string
	requiresHuman bool
}

func (f *fakeAvail) Message(_ context.Context, _ *time.Weekday) (string, bool) {
	return f.text, f.requiresHuman
}

type fixture struct {
	router   *Router
	store    *store.Store
	sender   *fakeSender
	notifier *fakeNotifier
	quick    *fakeQuick
	ai       *fakeAI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWindow(t, time.Hour, 5*time.Minute)
}

func newFixtureWindow(t *testing.T, window, lead time.Duration) *fixture {
	t.Helper()

	st := store.New(nil, 12*time.Hour, time.Hour)
	sender := &fakeSender{}
	notifier := &fakeNotifier{}
	quick := &fakeQuick{}
	ai := &fakeAI{reply: model.GeneratedReply{
		Text: "¡Hola! ¿Cómo puedo ayudarte?",
		Meta: model.ReplyMeta{Intent: "general", Priority: model.PriorityLow, Confidence: 0.8},
	}}

	r := New(Deps{
		Store:              st,
		Quick:              quick,
		AI:                 ai,
		Avail:              &fakeAvail{text: "horarios disponibles"},
		Sender:             sender,
		Notifier:           notifier,
		HandoffWindow:      window,
		HandoffWarningLead: lead,
	})
	t.Cleanup(r.Close)

	return &fixture{router: r, store: st, sender: sender, notifier: notifier, quick: quick, ai: ai}
}

const phone = "51999888777"

func (f *fixture) state(t *testing.T) *model.ConversationState {
	t.Helper()
	s := f.store.Get(context.Background(), phone)
	require.NotNil(t, s)
	return s
}

func TestCrisisOverridesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Put the conversation mid-funnel first.
	f.store.Merge(ctx, phone, model.StateUpdate{
		ServicePreference: model.Str("therapy"),
		Scheduling:        &model.SchedulingState{PriceConfirmed: true, AwaitingPaymentConfirm: true},
	})

	f.router.HandleMessage(ctx, phone, "ya no puedo más, no quiero vivir")

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, crisisMessage, msgs[0].text)

	notes := f.notifier.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, model.PriorityHigh, notes[0].priority)

	st := f.state(t)
	assert.True(t, st.HandoffActive)
	// Crisis must not disturb the funnel record.
	assert.True(t, st.Scheduling.PriceConfirmed)
	assert.True(t, st.Scheduling.AwaitingPaymentConfirm)
}

func TestActiveHandoffSuppressesAutoReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Merge(ctx, phone, model.StateUpdate{HandoffActive: model.Bool(true)})
	before := f.state(t).LastActivityAt

	f.quick.answer, f.quick.ok = "respuesta rápida", true
	f.router.HandleMessage(ctx, phone, "¿cuánto cuesta?")

	assert.Empty(t, f.sender.messages())
	assert.Zero(t, f.ai.calls)
	require.Len(t, f.notifier.notifications(), 1)
	assert.False(t, f.state(t).LastActivityAt.Before(before))
}

func TestQuickAnswerShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.quick.answer, f.quick.ok = "Atendemos de lunes a sábado.", true

	f.router.HandleMessage(context.Background(), phone, "¿qué horario tienen?")

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Atendemos de lunes a sábado.", msgs[0].text)
	assert.Zero(t, f.ai.calls)
}

func TestQuickAnswerSkippedMidFunnel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Merge(ctx, phone, model.StateUpdate{
		ServicePreference: model.Str("therapy"),
		Scheduling:        &model.SchedulingState{AwaitingPriceConfirm: true},
	})
	f.quick.answer, f.quick.ok = "respuesta rápida", true

	f.router.HandleMessage(ctx, phone, "sí, de acuerdo")

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, paymentMessage, msgs[0].text)
}

func TestFunnelProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, phone, "quiero agendar una cita de terapia")
	st := f.state(t)
	assert.True(t, st.Scheduling.AwaitingPriceConfirm)
	require.NotNil(t, st.ServicePreference)
	assert.Equal(t, "therapy", *st.ServicePreference)

	f.router.HandleMessage(ctx, phone, "sí, quiero agendar")
	st = f.state(t)
	assert.True(t, st.Scheduling.PriceConfirmed)
	assert.False(t, st.Scheduling.AwaitingPriceConfirm)
	assert.True(t, st.Scheduling.AwaitingPaymentConfirm)

	f.router.HandleMessage(ctx, phone, "sí, pásame los horarios")
	st = f.state(t)
	assert.True(t, st.Scheduling.PaymentExplained)
	assert.False(t, st.Scheduling.AwaitingPaymentConfirm)
	assert.True(t, st.HandoffActive)
	assert.True(t, st.AwaitingScheduling)

	msgs := f.sender.messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0].text, "S/ 140")
	assert.Equal(t, paymentMessage, msgs[1].text)
	assert.Equal(t, "horarios disponibles", msgs[2].text)

	notes := f.notifier.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, model.PriorityHigh, notes[0].priority)
}

func TestServiceChangeResetsFunnel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, phone, "quiero una cita de terapia")
	f.router.HandleMessage(ctx, phone, "sí")
	require.True(t, f.state(t).Scheduling.PriceConfirmed)

	f.router.HandleMessage(ctx, phone, "mejor quiero una consulta con la psiquiatra")

	st := f.state(t)
	require.NotNil(t, st.ServicePreference)
	assert.Equal(t, "psychiatry", *st.ServicePreference)
	assert.False(t, st.Scheduling.PriceConfirmed)
	assert.True(t, st.Scheduling.AwaitingPriceConfirm)
}

func TestNegativeAnswerLeavesFunnelGracefully(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, phone, "quiero agendar terapia")
	f.router.HandleMessage(ctx, phone, "no, todavía no")

	st := f.state(t)
	assert.False(t, st.Scheduling.AwaitingPriceConfirm)
	assert.False(t, st.Scheduling.PriceConfirmed)
	assert.False(t, st.HandoffActive)
}

func TestFirstContactGetsServiceSelection(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), phone, "hola buenas tardes")

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serviceSelectionPrompt, msgs[0].text)
	st := f.state(t)
	assert.True(t, st.WelcomeSent)
	assert.Zero(t, f.ai.calls)
}

func TestServiceSelectionAfterWelcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, phone, "hola")
	f.router.HandleMessage(ctx, phone, "consulta psiquiátrica")

	st := f.state(t)
	require.NotNil(t, st.ServicePreference)
	assert.Equal(t, "psychiatry", *st.ServicePreference)
	assert.True(t, st.Scheduling.AwaitingPriceConfirm)
}

func TestManualModeHoldsForHuman(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.True(t, f.router.SetMode(model.ReplyModeManual))
	f.store.Merge(ctx, phone, model.StateUpdate{WelcomeSent: model.Bool(true), ServicePreference: model.Str("therapy")})

	f.router.HandleMessage(ctx, phone, "me gustaría saber más sobre ustedes")

	assert.Empty(t, f.sender.messages())
	assert.Zero(t, f.ai.calls)
	require.Len(t, f.notifier.notifications(), 1)
	assert.True(t, f.state(t).HandoffActive)
}

func TestSmartModeEscalatesSensitiveTopics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Merge(ctx, phone, model.StateUpdate{WelcomeSent: model.Bool(true), ServicePreference: model.Str("therapy")})
	f.ai.reply.Meta.Priority = model.PriorityHigh

	f.router.HandleMessage(ctx, phone, "¿el psicólogo me puede recetar medicación?")

	require.Len(t, f.sender.messages(), 1)
	notes := f.notifier.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, model.PriorityHigh, notes[0].priority)
	assert.True(t, f.state(t).HandoffActive)
}

func TestAutoModeIgnoresHeuristic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.True(t, f.router.SetMode(model.ReplyModeAuto))
	f.store.Merge(ctx, phone, model.StateUpdate{WelcomeSent: model.Bool(true), ServicePreference: model.Str("therapy")})

	f.router.HandleMessage(ctx, phone, "¿me pueden recetar pastillas?")

	require.Len(t, f.sender.messages(), 1)
	assert.Empty(t, f.notifier.notifications())
	assert.False(t, f.state(t).HandoffActive)
}

func TestGeneratorFailureFallsBackToApology(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Merge(ctx, phone, model.StateUpdate{WelcomeSent: model.Bool(true), ServicePreference: model.Str("therapy")})
	f.ai.err = errors.New("model unavailable")

	f.router.HandleMessage(ctx, phone, "cuéntame sobre la terapia")

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, apologyMessage, msgs[0].text)
	require.Len(t, f.notifier.notifications(), 1)
	assert.True(t, f.state(t).HandoffActive)
}

func TestOperatorReplyRearmsHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.HandleOperatorReply(ctx, phone, "Hola, soy Carla del equipo."))

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hola, soy Carla del equipo.", msgs[0].text)
	assert.True(t, f.state(t).HandoffActive)
	assert.True(t, f.router.timers.Active(phone))
}

func TestHandoffExpiryResumesBot(t *testing.T) {
	f := newFixtureWindow(t, 60*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, f.router.HandleOperatorReply(ctx, phone, "un momento por favor"))

	require.Eventually(t, func() bool {
		s := f.store.Get(ctx, phone)
		return s != nil && !s.HandoffActive
	}, time.Second, 10*time.Millisecond)

	msgs := f.sender.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, handoffResumeMessage, msgs[len(msgs)-1].text)
	assert.False(t, f.router.timers.Active(phone))
}

func TestResetClearsStateAndTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.HandleOperatorReply(ctx, phone, "hola"))
	require.True(t, f.router.timers.Active(phone))

	f.router.Reset(ctx, phone)

	assert.Nil(t, f.store.Get(ctx, phone))
	assert.False(t, f.router.timers.Active(phone))
}

func TestSetModeRejectsUnknown(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.router.SetMode(model.ReplyMode("turbo")))
	assert.Equal(t, model.ReplyModeSmart, f.router.Mode())
}

func TestOffensiveLanguageGetsBoundaryReply(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), phone, "qué mierda de servicio tienen")

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, boundaryMessage, msgs[0].text)
	assert.Zero(t, f.ai.calls)
	assert.Empty(t, f.notifier.notifications())
}

func TestCrisisDerivesCrisisState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, phone, "tengo pensamientos suicidas")

	st := f.state(t)
	assert.True(t, st.HandoffActive)
	assert.Equal(t, model.StateCrisis, st.RouterState())
}

func TestOperatorReplyClosesCrisisState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, phone, "me quiero morir")
	require.NoError(t, f.router.HandleOperatorReply(ctx, phone, "Hola, soy parte del equipo"))

	st := f.state(t)
	assert.True(t, st.HandoffActive)
	assert.Equal(t, model.StateHumanHandling, st.RouterState())
}

func TestResumeHandoffsRearmsHydratedWindow(t *testing.T) {
	f := newFixtureWindow(t, 60*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	// A record that came back from hydration mid-handoff has the flag set
	// but no in-process timer.
	f.store.Merge(ctx, phone, model.StateUpdate{HandoffActive: model.Bool(true)})
	f.router.ResumeHandoffs()

	assert.Eventually(t, func() bool {
		st := f.store.Get(ctx, phone)
		return st != nil && !st.HandoffActive
	}, time.Second, 5*time.Millisecond)

	msgs := f.sender.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, handoffResumeMessage, msgs[len(msgs)-1].text)
}

func TestResumeHandoffsSkipsCrisisRecords(t *testing.T) {
	f := newFixtureWindow(t, 40*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	f.store.Merge(ctx, phone, model.StateUpdate{
		HandoffActive: model.Bool(true),
		LastIntent:    model.Str(model.IntentCrisis),
	})
	f.router.ResumeHandoffs()

	time.Sleep(120 * time.Millisecond)
	st := f.store.Get(ctx, phone)
	require.NotNil(t, st)
	assert.True(t, st.HandoffActive)
	assert.Empty(t, f.sender.messages())
}
