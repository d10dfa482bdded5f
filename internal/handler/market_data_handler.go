package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/service"
)

// MarketDataHandler handles market data HTTP requests
type MarketDataHandler struct {
	marketDataService *service.MarketDataService
	logger            *zap.Logger
}

// NewMarketDataHandler creates a new market data handler
func NewMarketDataHandler(marketDataService *service.MarketDataService, logger *zap.Logger) *MarketDataHandler {
	return &MarketDataHandler{
		marketDataService: marketDataService,
		logger:            logger,
	}
}

// BatchImportCandles handles bulk candle ingestion
func (h *MarketDataHandler) BatchImportCandles(c *gin.Context) {
	var request struct {
		Candles []model.Candle `json:"candles" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	imported, err := h.marketDataService.ImportCandles(c.Request.Context(), request.Candles)
	if err != nil {
		h.logger.Error("Failed to import candles", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"imported": imported})
}

// GetDataRange handles availability queries for an instrument
func (h *MarketDataHandler) GetDataRange(c *gin.Context) {
	symbol := c.Query("symbol")
	market := c.Query("market")
	if symbol == "" || market == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and market are required"})
		return
	}

	dataRange, err := h.marketDataService.GetAvailability(c.Request.Context(), symbol, market)
	if err != nil {
		h.logger.Error("Failed to get data range",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("market", market))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get data range"})
		return
	}
	if dataRange == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data for instrument"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"market": market,
		"start":  dataRange.Start,
		"end":    dataRange.End,
	})
}
