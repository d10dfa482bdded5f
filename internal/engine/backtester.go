package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// Backtester drives a single simulation run. It exclusively owns the
// mutable run state (cash, equity, positions, ledger, curves) for the
// run's duration; every run gets fresh state, so concurrent Backtesters
// over the same read-only market data are safe.
//
// A run is strictly sequential: each tick's position updates, signal
// generation, and entries happen in timestamp order because later
// decisions depend on the cash and equity mutated by earlier ticks.
type Backtester struct {
	cfg      model.BacktestConfig
	data     MarketDataSource
	signals  SignalSource
	listener RunListener
	logger   *zap.Logger
	status   model.RunStatus
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithListener injects a run event listener.
func WithListener(l RunListener) Option {
	return func(b *Backtester) { b.listener = l }
}

// WithLogger injects a logger; runs are silent by default.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backtester) { b.logger = logger }
}

// NewBacktester validates the configuration and prepares a run.
// Validation failures are returned before any run state exists.
func NewBacktester(cfg model.BacktestConfig, data MarketDataSource, signals SignalSource, opts ...Option) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backtester{
		cfg:      cfg.WithDefaults(),
		data:     data,
		signals:  signals,
		listener: NopListener{},
		logger:   zap.NewNop(),
		status:   model.StatusInitialized,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Status returns the run's lifecycle state.
func (b *Backtester) Status() model.RunStatus {
	return b.status
}

// Run executes the simulation over the configured window and returns the
// assembled result. An empty timeline yields a valid degenerate result:
// zero trades, equity flat at the initial capital.
func (b *Backtester) Run(ctx context.Context) (*model.BacktestResult, error) {
	startedAt := time.Now().UTC()
	timeline := b.data.Timeline(b.cfg.StartDate, b.cfg.EndDate)
	state := newRunState(b.cfg.InitialCapital)
	sim := newSimulator(b.cfg, b.listener)

	b.status = model.StatusRunning
	b.logger.Debug("backtest started",
		zap.Time("start", b.cfg.StartDate),
		zap.Time("end", b.cfg.EndDate),
		zap.Int("ticks", len(timeline)),
		zap.Int("instruments", len(b.cfg.Universe)))

	total := len(timeline)
	var lastTick time.Time
	for i, ts := range timeline {
		if err := ctx.Err(); err != nil {
			b.status = model.StatusCancelled
			return nil, err
		}
		b.processTick(state, sim, ts)
		lastTick = ts

		if (i+1)%b.cfg.ProgressInterval == 0 || i == total-1 {
			b.listener.OnProgress(i+1, total)
		}
	}

	// Force-close whatever is still open at the end of the window.
	if lastTick.IsZero() {
		lastTick = b.cfg.EndDate
	}
	for _, pos := range state.book.all() {
		sim.closePosition(state, pos, pos.CurrentPrice, model.ExitEndOfRun, lastTick)
	}
	state.equity = state.cash

	result := b.assembleResult(state, startedAt)
	b.status = model.StatusCompleted
	b.listener.OnCompleted(result)
	b.logger.Debug("backtest completed",
		zap.Int("trades", result.Metrics.TotalTrades),
		zap.Float64("final_equity", result.FinalEquity),
		zap.Float64("total_return", result.TotalReturn))
	return result, nil
}

// processTick runs one timestamp: mark and close open positions, query
// the signal source, open accepted entries, then record the equity and
// drawdown snapshot.
func (b *Backtester) processTick(state *runState, sim *simulator, ts time.Time) {
	// 1) Position update pass. Positions with no observation yet are
	// skipped this tick (data gap, non-fatal).
	for _, pos := range state.book.all() {
		if !state.book.markToMarket(pos, b.data, ts) {
			continue
		}
		if reason := exitReason(pos); reason != "" {
			sim.closePosition(state, pos, pos.CurrentPrice, reason, ts)
		}
	}

	// 2) Entry candidates. Only instruments observed exactly at this
	// tick generate signals; occupied instruments are skipped.
	for _, inst := range b.cfg.Universe {
		if state.book.has(inst.Key()) {
			continue
		}
		candle, ok := b.data.ExactAt(inst, ts)
		if !ok {
			continue
		}
		signal := b.signals.GenerateSignal(inst, candle)
		if signal == nil || signal.Confidence < b.cfg.MinConfidence {
			continue
		}
		sim.openPosition(state, *signal, ts)
	}

	// 3) Snapshot equity and drawdown.
	state.equity = state.cash + state.book.unrealizedTotal()
	if state.equity > state.peak {
		state.peak = state.equity
	}
	drawdown := 0.0
	if state.peak > 0 {
		drawdown = (state.peak - state.equity) / state.peak * 100
		// An adverse gap can push equity below zero; the drawdown
		// scale still tops out at a full loss.
		if drawdown > 100 {
			drawdown = 100
		}
	}
	state.equityCurve = append(state.equityCurve, model.EquityPoint{Time: ts, Equity: state.equity})
	state.drawdownCurve = append(state.drawdownCurve, model.DrawdownPoint{Time: ts, Drawdown: drawdown})
}

func (b *Backtester) assembleResult(state *runState, startedAt time.Time) *model.BacktestResult {
	metrics := ComputeMetrics(state.trades, state.equityCurve, state.drawdownCurve, b.cfg.InitialCapital)
	return &model.BacktestResult{
		Config:         b.cfg,
		Trades:         state.trades,
		EquityCurve:    state.equityCurve,
		DrawdownCurve:  state.drawdownCurve,
		Metrics:        metrics,
		InitialCapital: b.cfg.InitialCapital,
		FinalEquity:    state.equity,
		TotalPnL:       state.equity - b.cfg.InitialCapital,
		TotalReturn:    metrics.TotalReturn,
		StartedAt:      startedAt,
		CompletedAt:    time.Now().UTC(),
	}
}
