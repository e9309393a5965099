package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

type mockHistoryRepo struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	calls   int
}

func (m *mockHistoryRepo) Create(ctx context.Context, params model.CreateMessageLogParams) (*model.MessageLogEntry, error) {
	return nil, nil
}

func (m *mockHistoryRepo) FindByIdentity(ctx context.Context, identity string, limit int) ([]model.MessageLogEntry, error) {
	return nil, nil
}

func (m *mockHistoryRepo) DeleteByIdentity(ctx context.Context, identity string) error {
	return nil
}

func (m *mockHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	m.calls++
	return m.deleted, nil
}

func (m *mockHistoryRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCleanupJobUsesRetentionCutoff(t *testing.T) {
	repo := &mockHistoryRepo{deleted: 3}
	job := NewCleanupJob(repo, 30*24*time.Hour, time.Hour)
	fixed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	job.cleanup()

	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, fixed.Add(-30*24*time.Hour), repo.cutoffs[0])
}

func TestCleanupJobRunsOnStart(t *testing.T) {
	repo := &mockHistoryRepo{}
	job := NewCleanupJob(repo, time.Hour, time.Hour)

	job.Start()
	assert.Eventually(t, func() bool { return repo.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	job.Stop()
}

func TestCleanupJobTicks(t *testing.T) {
	repo := &mockHistoryRepo{}
	job := NewCleanupJob(repo, time.Hour, 20*time.Millisecond)

	job.Start()
	assert.Eventually(t, func() bool { return repo.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	job.Stop()
}
