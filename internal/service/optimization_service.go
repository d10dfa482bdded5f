package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// OptimizationJob tracks one submitted grid search.
type OptimizationJob struct {
	ID          string                        `json:"id"`
	Status      model.RunStatus               `json:"status"`
	Objective   string                        `json:"objective"`
	Parameters  []model.OptimizationParameter `json:"parameters"`
	Completed   int                           `json:"completed"`
	Total       int                           `json:"total"`
	Error       string                        `json:"error,omitempty"`
	CreatedAt   time.Time                     `json:"created_at"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	Results     []model.OptimizationResult    `json:"-"`

	cancel context.CancelFunc
}

// snapshot copies the job for callers outside the registry lock.
func (j *OptimizationJob) snapshot() OptimizationJob {
	out := *j
	out.cancel = nil
	return out
}

// OptimizationService owns the optimization job registry. Each job runs
// the grid search in the background with a cancellable context.
type OptimizationService struct {
	marketDataRepo *repository.MarketDataRepository
	publisher      events.Publisher
	topic          string
	defaults       config.BacktestConfig
	logger         *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*OptimizationJob
}

// NewOptimizationService creates a new optimization service
func NewOptimizationService(
	marketDataRepo *repository.MarketDataRepository,
	publisher events.Publisher,
	topic string,
	defaults config.BacktestConfig,
	logger *zap.Logger,
) *OptimizationService {
	if topic == "" {
		topic = "optimization-events"
	}
	return &OptimizationService{
		marketDataRepo: marketDataRepo,
		publisher:      publisher,
		topic:          topic,
		defaults:       defaults,
		logger:         logger,
		jobs:           make(map[string]*OptimizationJob),
	}
}

// CreateOptimization validates the request, builds the strategy factory
// and starts the grid search in the background.
func (s *OptimizationService) CreateOptimization(ctx context.Context, req *model.OptimizationRequest) (OptimizationJob, error) {
	base := baseConfigFromRequest(&req.Backtest, s.defaults)
	if err := base.Validate(); err != nil {
		return OptimizationJob{}, err
	}

	objective := req.Objective
	if objective == "" {
		objective = model.MetricComposite
	}

	if err := verifyDataWindow(ctx, s.marketDataRepo, base); err != nil {
		return OptimizationJob{}, err
	}

	candles, err := s.marketDataRepo.GetCandlesForUniverse(ctx, base.Universe, base.StartDate, base.EndDate)
	if err != nil {
		return OptimizationJob{}, err
	}
	source := engine.NewSeriesSource(candles)

	baseParams := strategy.CrossoverParams{
		FastPeriod:    req.Backtest.Strategy.FastPeriod,
		SlowPeriod:    req.Backtest.Strategy.SlowPeriod,
		StopLossPct:   req.Backtest.Strategy.StopLossPct,
		TakeProfitPct: req.Backtest.Strategy.TakeProfitPct,
		Confidence:    req.Backtest.Strategy.Confidence,
	}
	factory := func(grid map[string]float64) (model.BacktestConfig, engine.SignalSource, error) {
		return base, strategy.NewSMACrossover(baseParams.FromGrid(grid)), nil
	}

	workers := req.Workers
	if workers <= 0 {
		workers = s.defaults.OptimizerWorkers
	}
	opts := []engine.OptimizerOption{
		engine.WithWorkers(workers),
		engine.WithOptimizerLogger(s.logger),
	}
	if req.Constraints != nil {
		opts = append(opts, engine.WithConstraints(req.Constraints))
	}
	if req.TimeBudgetSeconds > 0 {
		opts = append(opts, engine.WithTimeBudget(time.Duration(req.TimeBudgetSeconds)*time.Second))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	job := &OptimizationJob{
		ID:         uuid.New().String(),
		Status:     model.StatusInitialized,
		Objective:  objective,
		Parameters: req.Parameters,
		CreatedAt:  time.Now().UTC(),
		cancel:     cancel,
	}
	opts = append(opts, engine.WithOptimizationListener(&optimizationJobListener{service: s, job: job}))

	optimizer, err := engine.NewOptimizer(req.Parameters, objective, factory, source, opts...)
	if err != nil {
		cancel()
		return OptimizationJob{}, err
	}

	s.mu.Lock()
	job.Total = optimizer.TotalCombinations()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	accepted := job.snapshot()

	go s.runOptimization(runCtx, job, optimizer)

	return accepted, nil
}

// runOptimization executes one grid search to completion.
func (s *OptimizationService) runOptimization(ctx context.Context, job *OptimizationJob, optimizer *engine.Optimizer) {
	s.mu.Lock()
	job.Status = model.StatusRunning
	s.mu.Unlock()
	s.publishEvent(events.EventOptimizationStarted, job.ID, map[string]interface{}{
		"objective":    job.Objective,
		"combinations": job.Total,
	})

	results, err := optimizer.Run(ctx)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	job.CompletedAt = &now
	if err != nil {
		job.Status = model.StatusFailed
		job.Error = err.Error()
		s.logger.Error("Optimization failed",
			zap.Error(err),
			zap.String("job_id", job.ID))
		return
	}

	job.Results = results
	if ctx.Err() != nil {
		// Partial results from a cancelled search are still ranked and
		// queryable.
		job.Status = model.StatusCancelled
	} else {
		job.Status = model.StatusCompleted
	}

	s.logger.Info("Optimization finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("ranked", len(results)))
}

// GetJob returns a copy of an optimization job by id. Copies are
// detached from the registry; later progress updates never show through
// them.
func (s *OptimizationService) GetJob(id string) (OptimizationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return OptimizationJob{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// ListJobs returns copies of all optimization jobs, newest first
func (s *OptimizationService) ListJobs() []OptimizationJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]OptimizationJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// GetResults returns the ranked results of a job. The best conforming
// combination carries the Best flag; applying it is the caller's call.
func (s *OptimizationService) GetResults(id string) ([]model.OptimizationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Results == nil {
		return nil, fmt.Errorf("job %s has no results yet (status %s)", id, job.Status)
	}
	return job.Results, nil
}

// CancelJob cancels a running optimization; collected results remain.
func (s *OptimizationService) CancelJob(id string) error {
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
		return errors.New("job is not running")
	}
	cancel()
	return nil
}

func (s *OptimizationService) publishEvent(eventType, jobID string, payload interface{}) {
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

// baseConfigFromRequest mirrors the backtest service's default filling
// for optimization base runs.
func baseConfigFromRequest(req *model.BacktestRequest, defaults config.BacktestConfig) model.BacktestConfig {
	cfg := model.BacktestConfig{
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		InitialCapital:   req.InitialCapital,
		CommissionRate:   req.CommissionRate,
		SlippageRate:     req.SlippageRate,
		MaxPositionSize:  req.MaxPositionSize,
		RiskPerTrade:     req.RiskPerTrade,
		Universe:         req.Universe,
		MinConfidence:    req.MinConfidence,
		ProgressInterval: defaults.ProgressInterval,
	}
	if cfg.CommissionRate == 0 {
		cfg.CommissionRate = defaults.CommissionRate
	}
	if cfg.SlippageRate == 0 {
		cfg.SlippageRate = defaults.SlippageRate
	}
	if cfg.MaxPositionSize == 0 {
		cfg.MaxPositionSize = defaults.MaxPositionSize
	}
	if cfg.RiskPerTrade == 0 {
		cfg.RiskPerTrade = defaults.RiskPerTrade
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = defaults.MinConfidence
	}
	return cfg
}

// optimizationJobListener tracks grid progress on the job and publishes
// the completion event.
type optimizationJobListener struct {
	service *OptimizationService
	job     *OptimizationJob
}

func (l *optimizationJobListener) OnOptimizationProgress(completed, total int) {
	l.service.mu.Lock()
	l.job.Completed = completed
	l.job.Total = total
	l.service.mu.Unlock()
}

func (l *optimizationJobListener) OnOptimizationCompleted(results []model.OptimizationResult) {
	var best *model.OptimizationResult
	if len(results) > 0 {
		best = &results[0]
	}
	l.service.publishEvent(events.EventOptimizationCompleted, l.job.ID, map[string]interface{}{
		"ranked": len(results),
		"best":   best,
	})
}
