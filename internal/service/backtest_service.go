package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/config"
	"github.com/yourorg/backtest-service/internal/engine"
	"github.com/yourorg/backtest-service/internal/events"
	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/repository"
	"github.com/yourorg/backtest-service/internal/strategy"
)

// ErrJobNotFound is returned when a job id is not in the registry.
var ErrJobNotFound = errors.New("job not found")

// StreamEvent is fanned out to websocket subscribers of a job.
type StreamEvent struct {
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// BacktestJob tracks one submitted run. The config is copied at
// submission; later requests never mutate a running job.
type BacktestJob struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Status      model.RunStatus       `json:"status"`
	Config      model.BacktestConfig  `json:"config"`
	Processed   int                   `json:"processed"`
	Total       int                   `json:"total"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Result      *model.BacktestResult `json:"-"`

	cancel context.CancelFunc
}

// snapshot copies the job for callers outside the registry lock. The
// cancel handle stays with the registry's entry.
func (j *BacktestJob) snapshot() BacktestJob {
	out := *j
	out.cancel = nil
	return out
}

// BacktestService owns the in-memory job registry and runs backtests in
// the background.
type BacktestService struct {
	marketDataRepo *repository.MarketDataRepository
	backtestRepo   *repository.BacktestRepository
	publisher      events.Publisher
	topic          string
	defaults       config.BacktestConfig
	logger         *zap.Logger

	mu          sync.RWMutex
	jobs        map[string]*BacktestJob
	subscribers map[string][]chan StreamEvent
}

// NewBacktestService creates a new backtest service
func NewBacktestService(
	marketDataRepo *repository.MarketDataRepository,
	backtestRepo *repository.BacktestRepository,
	publisher events.Publisher,
	topic string,
	defaults config.BacktestConfig,
	logger *zap.Logger,
) *BacktestService {
	if topic == "" {
		topic = "backtest-events"
	}
	return &BacktestService{
		marketDataRepo: marketDataRepo,
		backtestRepo:   backtestRepo,
		publisher:      publisher,
		topic:          topic,
		defaults:       defaults,
		logger:         logger,
		jobs:           make(map[string]*BacktestJob),
		subscribers:    make(map[string][]chan StreamEvent),
	}
}

// strategyFromConfig builds the crossover signal source for a run.
func strategyFromConfig(sc model.StrategyConfig) *strategy.SMACrossover {
	return strategy.NewSMACrossover(strategy.CrossoverParams{
		FastPeriod:    sc.FastPeriod,
		SlowPeriod:    sc.SlowPeriod,
		StopLossPct:   sc.StopLossPct,
		TakeProfitPct: sc.TakeProfitPct,
		Confidence:    sc.Confidence,
	})
}

// CreateBacktest validates the request, loads market data, registers a
// job and starts the run in the background.
func (s *BacktestService) CreateBacktest(ctx context.Context, req *model.BacktestRequest) (BacktestJob, error) {
	cfg := baseConfigFromRequest(req, s.defaults)
	if err := cfg.Validate(); err != nil {
		return BacktestJob{}, err
	}

	if err := verifyDataWindow(ctx, s.marketDataRepo, cfg); err != nil {
		return BacktestJob{}, err
	}

	candles, err := s.marketDataRepo.GetCandlesForUniverse(ctx, cfg.Universe, cfg.StartDate, cfg.EndDate)
	if err != nil {
		return BacktestJob{}, err
	}
	source := engine.NewSeriesSource(candles)

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Backtest %s", time.Now().UTC().Format("2006-01-02 15:04:05"))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	job := &BacktestJob{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    model.StatusInitialized,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	accepted := job.snapshot()

	// Start backtest in the background
	go s.runBacktest(runCtx, job, source, strategyFromConfig(req.Strategy))

	return accepted, nil
}

// verifyDataWindow checks that every instrument in the universe has data
// overlapping the requested window before a run is committed.
func verifyDataWindow(ctx context.Context, repo *repository.MarketDataRepository, cfg model.BacktestConfig) error {
	for _, inst := range cfg.Universe {
		hasData, err := repo.HasData(ctx, inst.Symbol, inst.Market)
		if err != nil {
			return err
		}
		if !hasData {
			return fmt.Errorf("no market data available for %s", inst.Key())
		}
		available, err := repo.GetDataRange(ctx, inst.Symbol, inst.Market)
		if err != nil {
			return err
		}
		if cfg.StartDate.After(available.End) || cfg.EndDate.Before(available.Start) {
			return fmt.Errorf("requested window %s to %s has no data for %s (available %s to %s)",
				cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"), inst.Key(),
				available.Start.Format("2006-01-02"), available.End.Format("2006-01-02"))
		}
	}
	return nil
}

// runBacktest executes one job to completion and records the outcome.
func (s *BacktestService) runBacktest(ctx context.Context, job *BacktestJob, source engine.MarketDataSource, signals engine.SignalSource) {
	s.setStatus(job, model.StatusRunning)
	s.publishEvent(events.EventBacktestStarted, job.ID, job.Config)

	bt, err := engine.NewBacktester(job.Config, source, signals,
		engine.WithListener(&jobListener{service: s, job: job}),
		engine.WithLogger(s.logger))
	if err != nil {
		s.failJob(job, err)
		return
	}

	result, err := bt.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.mu.Lock()
			job.Status = model.StatusCancelled
			now := time.Now().UTC()
			job.CompletedAt = &now
			s.mu.Unlock()
			s.fanout(job.ID, StreamEvent{Type: "cancelled", Time: time.Now().UTC()})
			s.logger.Info("Backtest cancelled", zap.String("job_id", job.ID))
			return
		}
		s.failJob(job, err)
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	job.Result = result
	job.Status = model.StatusCompleted
	job.CompletedAt = &now
	s.mu.Unlock()

	s.persistResult(job.ID, result)
	s.publishEvent(events.EventBacktestCompleted, job.ID, result.Metrics)
	s.fanout(job.ID, StreamEvent{Type: "completed", Time: now, Payload: result.Metrics})

	s.logger.Info("Backtest completed",
		zap.String("job_id", job.ID),
		zap.Int("trades", result.Metrics.TotalTrades),
		zap.Float64("final_equity", result.FinalEquity))
}

// persistResult is best effort: a failed save is logged and the
// in-memory result remains queryable.
func (s *BacktestService) persistResult(id string, result *model.BacktestResult) {
	if s.backtestRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.backtestRepo.SaveResult(ctx, id, result); err != nil {
		s.logger.Error("Failed to persist backtest result",
			zap.Error(err),
			zap.String("job_id", id))
		return
	}
	if err := s.backtestRepo.SaveTrades(ctx, id, result.Trades); err != nil {
		s.logger.Error("Failed to persist backtest trades",
			zap.Error(err),
			zap.String("job_id", id))
	}
}

func (s *BacktestService) setStatus(job *BacktestJob, status model.RunStatus) {
	s.mu.Lock()
	job.Status = status
	s.mu.Unlock()
}

func (s *BacktestService) failJob(job *BacktestJob, err error) {
	now := time.Now().UTC()
	s.mu.Lock()
	job.Status = model.StatusFailed
	job.Error = err.Error()
	job.CompletedAt = &now
	s.mu.Unlock()

	s.publishEvent(events.EventBacktestFailed, job.ID, err.Error())
	s.fanout(job.ID, StreamEvent{Type: "failed", Time: now, Payload: err.Error()})
	s.logger.Error("Backtest failed",
		zap.Error(err),
		zap.String("job_id", job.ID))
}

func (s *BacktestService) publishEvent(eventType, jobID string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := events.Event{
		Type:      eventType,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.publisher.Publish(ctx, s.topic, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("type", eventType),
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}

// GetJob returns a copy of a job by id. Copies are detached from the
// registry; later progress updates never show through them.
func (s *BacktestService) GetJob(id string) (BacktestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return BacktestJob{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// ListJobs lists job copies with status filtering, sorting and
// pagination.
func (s *BacktestService) ListJobs(status string, sortBy string, sortDirection string, page int, limit int) ([]BacktestJob, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	// Validate sort field
	validSortFields := map[string]bool{
		"name":       true,
		"created_at": true,
		"status":     true,
	}
	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}
	descending := normalizeSortDirection(sortDirection) == "DESC"

	s.mu.RLock()
	jobs := make([]BacktestJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && string(job.Status) != status {
			continue
		}
		jobs = append(jobs, job.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "name":
			less = jobs[i].Name < jobs[j].Name
		case "status":
			less = jobs[i].Status < jobs[j].Status
		default:
			less = jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		if descending {
			return !less
		}
		return less
	})

	total := len(jobs)
	offset := (page - 1) * limit
	if offset >= total {
		return []BacktestJob{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return jobs[offset:end], total
}

// GetResult returns a job's result, falling back to the persisted copy
// when the job is no longer in memory.
func (s *BacktestService) GetResult(ctx context.Context, id string) (*model.BacktestResult, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	var (
		result *model.BacktestResult
		status model.RunStatus
	)
	if ok {
		result = job.Result
		status = job.Status
	}
	s.mu.RUnlock()

	if ok && result != nil {
		return result, nil
	}
	if ok && status != model.StatusCompleted {
		return nil, fmt.Errorf("job %s has no result yet (status %s)", id, status)
	}

	if s.backtestRepo == nil {
		return nil, ErrJobNotFound
	}
	result, err := s.backtestRepo.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrJobNotFound
	}
	return result, nil
}

// GetTrades returns the closed-trade ledger of a completed job with
// pagination. Jobs evicted from memory are paged out of the database.
func (s *BacktestService) GetTrades(ctx context.Context, id string, page int, limit int) ([]model.ClosedTrade, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := (page - 1) * limit

	s.mu.RLock()
	job, ok := s.jobs[id]
	var (
		result *model.BacktestResult
		status model.RunStatus
	)
	if ok {
		result = job.Result
		status = job.Status
	}
	s.mu.RUnlock()

	if ok {
		if result == nil {
			return nil, 0, fmt.Errorf("job %s has no result yet (status %s)", id, status)
		}
		total := len(result.Trades)
		if offset >= total {
			return []model.ClosedTrade{}, total, nil
		}
		end := offset + limit
		if end > total {
			end = total
		}
		return result.Trades[offset:end], total, nil
	}

	if s.backtestRepo == nil {
		return nil, 0, ErrJobNotFound
	}
	total, err := s.backtestRepo.CountTrades(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		// Distinguish an unknown id from a completed run with no trades.
		persisted, err := s.backtestRepo.GetResult(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if persisted == nil {
			return nil, 0, ErrJobNotFound
		}
		return []model.ClosedTrade{}, 0, nil
	}
	trades, err := s.backtestRepo.GetTrades(ctx, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// CancelJob cancels a running job
func (s *BacktestService) CancelJob(id string) error {
	s.mu.RLock()
	job, ok := s.jobs[id]
	var (
		status model.RunStatus
		cancel context.CancelFunc
	)
	if ok {
		status = job.Status
		cancel = job.cancel
	}
	s.mu.RUnlock()

	if !ok {
		return ErrJobNotFound
	}
	if status != model.StatusRunning && status != model.StatusInitialized {
		return fmt.Errorf("job %s is not running (status %s)", id, status)
	}
	cancel()
	return nil
}

// DeleteJob removes a job from the registry and deletes its persisted
// result.
func (s *BacktestService) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		if job.Status == model.StatusRunning {
			job.cancel()
		}
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	if s.backtestRepo != nil {
		if err := s.backtestRepo.DeleteResult(ctx, id); err != nil {
			s.logger.Warn("Failed to delete persisted result",
				zap.Error(err),
				zap.String("job_id", id))
		}
	}
	return nil
}

// Subscribe registers a stream consumer for a job's events. The second
// return value unsubscribes and closes the channel.
func (s *BacktestService) Subscribe(id string) (<-chan StreamEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return nil, nil, ErrJobNotFound
	}

	ch := make(chan StreamEvent, 64)
	s.subscribers[id] = append(s.subscribers[id], ch)

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[id]
		for i, sub := range subs {
			if sub == ch {
				s.subscribers[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe, nil
}

// fanout delivers an event to every subscriber of a job without
// blocking; slow consumers drop events.
func (s *BacktestService) fanout(id string, event StreamEvent) {
	s.mu.RLock()
	subs := s.subscribers[id]
	s.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// normalizeSortDirection maps arbitrary input to ASC or DESC.
func normalizeSortDirection(direction string) string {
	if strings.EqualFold(direction, "asc") {
		return "ASC"
	}
	return "DESC"
}

// jobListener bridges engine run events into the job registry, the
// websocket fanout and Kafka.
type jobListener struct {
	service *BacktestService
	job     *BacktestJob
}

func (l *jobListener) OnProgress(processed, total int) {
	l.service.mu.Lock()
	l.job.Processed = processed
	l.job.Total = total
	l.service.mu.Unlock()

	l.service.fanout(l.job.ID, StreamEvent{
		Type: "progress",
		Time: time.Now().UTC(),
		Payload: map[string]int{
			"processed": processed,
			"total":     total,
		},
	})
	l.service.publishEvent(events.EventBacktestProgress, l.job.ID, map[string]int{
		"processed": processed,
		"total":     total,
	})
}

func (l *jobListener) OnPositionOpened(pos model.Position) {
	l.service.fanout(l.job.ID, StreamEvent{Type: "position_opened", Time: time.Now().UTC(), Payload: pos})
}

func (l *jobListener) OnPositionClosed(trade model.ClosedTrade) {
	l.service.fanout(l.job.ID, StreamEvent{Type: "position_closed", Time: time.Now().UTC(), Payload: trade})
}

func (l *jobListener) OnCompleted(*model.BacktestResult) {}
