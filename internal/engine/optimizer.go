package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// ErrNoParameters is returned when an optimization has an empty grid.
var ErrNoParameters = errors.New("optimization requires at least one parameter")

// RunFactory builds an isolated run for one parameter combination: a
// derived config plus a fresh signal source. The factory must not share
// mutable state between invocations.
type RunFactory func(params map[string]float64) (model.BacktestConfig, SignalSource, error)

// Optimizer enumerates a parameter grid, re-runs the backtester per
// combination against shared read-only market data, and ranks the scored
// results. Iterations are mutually independent and run concurrently.
type Optimizer struct {
	params      []model.OptimizationParameter
	factory     RunFactory
	data        MarketDataSource
	objective   string
	constraints *model.OptimizationConstraints
	workers     int
	budget      time.Duration
	listener    OptimizationListener
	logger      *zap.Logger
}

// OptimizerOption configures an Optimizer.
type OptimizerOption func(*Optimizer)

// WithWorkers sets the number of concurrent iteration workers.
func WithWorkers(n int) OptimizerOption {
	return func(o *Optimizer) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithConstraints filters non-conforming combinations before ranking.
func WithConstraints(c *model.OptimizationConstraints) OptimizerOption {
	return func(o *Optimizer) { o.constraints = c }
}

// WithTimeBudget short-circuits the combination loop once the budget is
// spent; already collected results are still ranked and returned.
func WithTimeBudget(d time.Duration) OptimizerOption {
	return func(o *Optimizer) { o.budget = d }
}

// WithOptimizationListener injects a progress listener.
func WithOptimizationListener(l OptimizationListener) OptimizerOption {
	return func(o *Optimizer) { o.listener = l }
}

// WithOptimizerLogger injects a logger.
func WithOptimizerLogger(logger *zap.Logger) OptimizerOption {
	return func(o *Optimizer) { o.logger = logger }
}

// NewOptimizer prepares a grid search over the declared parameters,
// scored by the given objective metric.
func NewOptimizer(params []model.OptimizationParameter, objective string, factory RunFactory, data MarketDataSource, opts ...OptimizerOption) (*Optimizer, error) {
	if len(params) == 0 {
		return nil, ErrNoParameters
	}
	for _, p := range params {
		if p.Step <= 0 {
			return nil, fmt.Errorf("parameter %q has non-positive step", p.Name)
		}
		if p.Max < p.Min {
			return nil, fmt.Errorf("parameter %q has max below min", p.Name)
		}
	}
	o := &Optimizer{
		params:    params,
		factory:   factory,
		data:      data,
		objective: objective,
		workers:   4,
		listener:  NopOptimizationListener{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// TotalCombinations returns the full grid size.
func (o *Optimizer) TotalCombinations() int {
	total := 1
	for _, p := range o.params {
		total *= p.Count()
	}
	return total
}

// Run evaluates the grid and returns results sorted descending by score
// with 1-based ranks. Cancellation stops scheduling new combinations;
// combinations already finished remain in the returned list. Failed
// iterations are logged and excluded from ranking.
func (o *Optimizer) Run(ctx context.Context) ([]model.OptimizationResult, error) {
	if o.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.budget)
		defer cancel()
	}

	total := o.TotalCombinations()
	o.logger.Info("starting grid search",
		zap.Int("parameters", len(o.params)),
		zap.Int("combinations", total),
		zap.Int("workers", o.workers))

	type indexed struct {
		order  int
		result model.OptimizationResult
	}

	resultsCh := make(chan indexed, total)
	semaphore := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	var completed int64
	var mu sync.Mutex

	enum := newGridEnumerator(o.params)
	order := 0
	for {
		params, ok := enum.next()
		if !ok {
			break
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(order int, params map[string]float64) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, err := o.runIteration(ctx, params)
			mu.Lock()
			completed++
			done := int(completed)
			mu.Unlock()
			o.listener.OnOptimizationProgress(done, total)

			if err != nil {
				o.logger.Warn("optimization iteration failed",
					zap.Any("parameters", params),
					zap.Error(err))
				return
			}
			resultsCh <- indexed{order: order, result: result}
		}(order, params)
		order++
	}

	wg.Wait()
	close(resultsCh)

	collected := make([]indexed, 0, total)
	for r := range resultsCh {
		collected = append(collected, r)
	}

	// Constraint filtering happens before ranking.
	filtered := collected[:0]
	for _, r := range collected {
		if o.constraints.Conforms(r.result.Metrics) {
			filtered = append(filtered, r)
		}
	}

	// Enumeration order breaks score ties so ranking is deterministic.
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].result.Score != filtered[j].result.Score {
			return filtered[i].result.Score > filtered[j].result.Score
		}
		return filtered[i].order < filtered[j].order
	})

	results := make([]model.OptimizationResult, len(filtered))
	for i, r := range filtered {
		r.result.Rank = i + 1
		results[i] = r.result
	}
	if len(results) > 0 {
		results[0].Best = true
	}

	o.listener.OnOptimizationCompleted(results)
	o.logger.Info("grid search finished",
		zap.Int("evaluated", len(collected)),
		zap.Int("ranked", len(results)))
	return results, nil
}

// runIteration executes one isolated combination. Panics inside a run
// are converted to errors so a bad combination cannot abort the grid.
func (o *Optimizer) runIteration(ctx context.Context, params map[string]float64) (result model.OptimizationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()

	cfg, signals, err := o.factory(params)
	if err != nil {
		return result, fmt.Errorf("build run: %w", err)
	}
	bt, err := NewBacktester(cfg, o.data, signals)
	if err != nil {
		return result, fmt.Errorf("configure run: %w", err)
	}
	res, err := bt.Run(ctx)
	if err != nil {
		return result, err
	}

	return model.OptimizationResult{
		Parameters: params,
		Metrics:    res.Metrics,
		Score:      Score(o.objective, res),
	}, nil
}

// Score maps a completed run to a scalar per the objective metric.
// Lower drawdown scores higher, hence the negation. The composite
// default caps an infinite profit factor so other terms stay relevant.
func Score(objective string, res *model.BacktestResult) float64 {
	m := res.Metrics
	switch objective {
	case model.MetricTotalReturn:
		return res.TotalReturn
	case model.MetricSharpeRatio:
		return m.SharpeRatio
	case model.MetricWinRate:
		return m.WinRate
	case model.MetricProfitFactor:
		return m.ProfitFactor
	case model.MetricMaxDrawdown:
		return -m.MaxDrawdown
	default:
		pf := m.ProfitFactor
		if math.IsInf(pf, 1) {
			pf = 100
		}
		return 0.3*m.WinRate + 10*pf + 20*m.SharpeRatio - 2*m.MaxDrawdown
	}
}

// gridEnumerator walks the Cartesian product iteratively, odometer
// style: parameters in declaration order, values ascending. This bounds
// stack depth on large grids and lets the consumer stop early.
type gridEnumerator struct {
	params []model.OptimizationParameter
	idx    []int
	counts []int
	done   bool
}

func newGridEnumerator(params []model.OptimizationParameter) *gridEnumerator {
	counts := make([]int, len(params))
	for i, p := range params {
		counts[i] = p.Count()
	}
	return &gridEnumerator{
		params: params,
		idx:    make([]int, len(params)),
		counts: counts,
	}
}

func (g *gridEnumerator) next() (map[string]float64, bool) {
	if g.done {
		return nil, false
	}
	combo := make(map[string]float64, len(g.params))
	for i, p := range g.params {
		combo[p.Name] = p.Min + float64(g.idx[i])*p.Step
	}

	// Advance the odometer from the last axis.
	for i := len(g.idx) - 1; ; i-- {
		if i < 0 {
			g.done = true
			break
		}
		g.idx[i]++
		if g.idx[i] < g.counts[i] {
			break
		}
		g.idx[i] = 0
	}
	return combo, true
}
