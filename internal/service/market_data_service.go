package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/repository"
)

// MarketDataService handles candle ingestion and availability queries.
type MarketDataService struct {
	marketDataRepo *repository.MarketDataRepository
	logger         *zap.Logger
}

// NewMarketDataService creates a new market data service
func NewMarketDataService(marketDataRepo *repository.MarketDataRepository, logger *zap.Logger) *MarketDataService {
	return &MarketDataService{
		marketDataRepo: marketDataRepo,
		logger:         logger,
	}
}

// ImportCandles validates a batch and upserts it. The whole batch is
// rejected on the first invalid candle; nothing partial is written.
func (s *MarketDataService) ImportCandles(ctx context.Context, candles []model.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, errors.New("no candles provided")
	}
	for i, c := range candles {
		if c.Symbol == "" || c.Market == "" {
			return 0, fmt.Errorf("candle %d is missing symbol or market", i)
		}
		if c.Time.IsZero() {
			return 0, fmt.Errorf("candle %d is missing a timestamp", i)
		}
	}

	if err := s.marketDataRepo.InsertCandles(ctx, candles); err != nil {
		return 0, err
	}

	s.logger.Info("Candles imported", zap.Int("count", len(candles)))
	return len(candles), nil
}

// GetAvailability reports the span of stored data for an instrument.
// A nil range means no data exists.
func (s *MarketDataService) GetAvailability(ctx context.Context, symbol, market string) (*model.DateRange, error) {
	hasData, err := s.marketDataRepo.HasData(ctx, symbol, market)
	if err != nil {
		return nil, err
	}
	if !hasData {
		return nil, nil
	}
	return s.marketDataRepo.GetDataRange(ctx, symbol, market)
}
