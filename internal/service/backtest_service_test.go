package service

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/config"
	"github.com/yourorg/backtest-service/internal/events"
	"github.com/yourorg/backtest-service/internal/model"
)

func newTestBacktestService() *BacktestService {
	return NewBacktestService(nil, nil, events.NopPublisher{}, "", config.BacktestConfig{}, zap.NewNop())
}

func seedJob(s *BacktestService, id string) *BacktestJob {
	job := &BacktestJob{
		ID:        id,
		Name:      "seeded",
		Status:    model.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	return job
}

// Jobs handed out by GetJob are copies; progress recorded after the
// lookup must not show through them.
func TestGetJobReturnsDetachedCopy(t *testing.T) {
	s := newTestBacktestService()
	job := seedJob(s, "job-1")
	listener := &jobListener{service: s, job: job}
	listener.OnProgress(10, 100)

	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Processed)
	assert.Equal(t, 100, got.Total)

	listener.OnProgress(50, 100)
	assert.Equal(t, 10, got.Processed)

	fresh, err := s.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, 50, fresh.Processed)
}

func TestListJobsReturnsDetachedCopies(t *testing.T) {
	s := newTestBacktestService()
	job := seedJob(s, "job-1")
	listener := &jobListener{service: s, job: job}

	jobs, total := s.ListJobs("", "created_at", "desc", 1, 10)
	require.Equal(t, 1, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, 0, jobs[0].Processed)

	listener.OnProgress(7, 10)
	assert.Equal(t, 0, jobs[0].Processed)
}

// Marshalling a job for an HTTP response must be safe while the run's
// listener keeps updating progress on the registry entry.
func TestJobReadsSafeDuringProgressUpdates(t *testing.T) {
	s := newTestBacktestService()
	job := seedJob(s, "job-1")
	listener := &jobListener{service: s, job: job}

	const updates = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= updates; i++ {
			listener.OnProgress(i, updates)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < updates; i++ {
			got, err := s.GetJob("job-1")
			if err != nil {
				continue
			}
			if _, err := json.Marshal(got); err != nil {
				t.Errorf("marshal job: %v", err)
				return
			}
			s.ListJobs("", "created_at", "desc", 1, 10)
		}
	}()
	wg.Wait()

	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, updates, got.Processed)
}

func TestOptimizationGetJobReturnsDetachedCopy(t *testing.T) {
	s := NewOptimizationService(nil, events.NopPublisher{}, "", config.BacktestConfig{}, zap.NewNop())
	job := &OptimizationJob{
		ID:        "opt-1",
		Status:    model.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	listener := &optimizationJobListener{service: s, job: job}
	listener.OnOptimizationProgress(3, 9)

	got, err := s.GetJob("opt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Completed)

	listener.OnOptimizationProgress(7, 9)
	assert.Equal(t, 3, got.Completed)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 7, jobs[0].Completed)
}
