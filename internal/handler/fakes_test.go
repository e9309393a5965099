package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/router"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/store"
)

type sentMessage struct {
	to, text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeNotifier struct{}

func (f *fakeNotifier) NotifyHuman(ctx context.Context, identity, customerText, reason string, priority model.Priority) error {
	return nil
}

type fakeQuick struct{}

func (f *fakeQuick) Match(ctx context.Context, text string) (string, bool) { return "", false }

type fakeAI struct{}

func (f *fakeAI) Generate(ctx context.Context, identity, text string, state model.ConversationState) (model.GeneratedReply, error) {
	return model.GeneratedReply{
		Text: "respuesta automática",
		Meta: model.ReplyMeta{Intent: "info", Priority: model.PriorityLow, Confidence: 0.6},
	}, nil
}

type fakeAvail struct{}

func (f *fakeAvail) Message(ctx context.Context, weekday *time.Weekday) (string, bool) {
	return "horarios disponibles", false
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []model.MessageLogEntry
	deleted []string
}

func (f *fakeHistoryRepo) Create(ctx context.Context, params model.CreateMessageLogParams) (*model.MessageLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := model.MessageLogEntry{
		Identity:  params.Identity,
		Role:      params.Role,
		Content:   params.Content,
		Intent:    params.Intent,
		Service:   params.Service,
		CreatedAt: time.Now(),
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeHistoryRepo) FindByIdentity(ctx context.Context, identity string, limit int) ([]model.MessageLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.MessageLogEntry
	for _, e := range f.entries {
		if e.Identity == identity {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeHistoryRepo) DeleteByIdentity(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, identity)
	return nil
}

func (f *fakeHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeTopicRepo struct {
	mu      sync.Mutex
	byID    map[int64]string
	deleted []string
}

func newFakeTopicRepo() *fakeTopicRepo {
	return &fakeTopicRepo{byID: make(map[int64]string)}
}

func (f *fakeTopicRepo) FindByIdentity(ctx context.Context, identity string) (*model.TopicMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ident := range f.byID {
		if ident == identity {
			return &model.TopicMapping{Identity: identity, TopicID: id}, nil
		}
	}
	return nil, nil
}

func (f *fakeTopicRepo) FindByTopicID(ctx context.Context, topicID int64) (*model.TopicMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.byID[topicID]
	if !ok {
		return nil, nil
	}
	return &model.TopicMapping{Identity: identity, TopicID: topicID}, nil
}

func (f *fakeTopicRepo) Upsert(ctx context.Context, identity string, topicID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[topicID] = identity
	return nil
}

func (f *fakeTopicRepo) Delete(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ident := range f.byID {
		if ident == identity {
			delete(f.byID, id)
		}
	}
	f.deleted = append(f.deleted, identity)
	return nil
}

type fakeLearnedRepo struct {
	mu          sync.Mutex
	responses   []model.LearnedResponse
	deactivated []string
}

func (f *fakeLearnedRepo) Create(ctx context.Context, params model.CreateLearnedResponseParams) (*model.LearnedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := model.LearnedResponse{
		ID:              params.Identity,
		QuestionPattern: params.QuestionPattern,
		HumanResponse:   params.HumanResponse,
		IsActive:        true,
	}
	f.responses = append(f.responses, resp)
	return &resp, nil
}

func (f *fakeLearnedRepo) FindByKeywords(ctx context.Context, keywords []string) (*model.LearnedResponse, error) {
	return nil, nil
}

func (f *fakeLearnedRepo) MarkUsed(ctx context.Context, id string) error { return nil }

func (f *fakeLearnedRepo) ListActive(ctx context.Context, limit int) ([]model.LearnedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LearnedResponse
	for _, resp := range f.responses {
		if resp.IsActive {
			out = append(out, resp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLearnedRepo) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.responses {
		if f.responses[i].ID == id {
			f.responses[i].IsActive = false
		}
	}
	f.deactivated = append(f.deactivated, id)
	return nil
}

type testEnv struct {
	router  *router.Router
	store   *store.Store
	sender  *fakeSender
	history *fakeHistoryRepo
	topics  *fakeTopicRepo
	learned *fakeLearnedRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sender := &fakeSender{}
	history := &fakeHistoryRepo{}
	st := store.New(nil, time.Hour, time.Hour)
	rt := router.New(router.Deps{
		Store:              st,
		Quick:              &fakeQuick{},
		AI:                 &fakeAI{},
		Avail:              &fakeAvail{},
		Sender:             sender,
		Notifier:           &fakeNotifier{},
		History:            history,
		HandoffWindow:      time.Hour,
		HandoffWarningLead: time.Minute,
	})
	t.Cleanup(rt.Close)
	return &testEnv{
		router:  rt,
		store:   st,
		sender:  sender,
		history: history,
		topics:  newFakeTopicRepo(),
		learned: &fakeLearnedRepo{},
	}
}
