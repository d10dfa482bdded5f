package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/service"
)

// BacktestHandler handles backtest HTTP requests
type BacktestHandler struct {
	backtestService *service.BacktestService
	logger          *zap.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(backtestService *service.BacktestService, logger *zap.Logger) *BacktestHandler {
	return &BacktestHandler{
		backtestService: backtestService,
		logger:          logger,
	}
}

// CreateBacktest handles starting a new backtest run
func (h *BacktestHandler) CreateBacktest(c *gin.Context) {
	var request model.BacktestRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.backtestService.CreateBacktest(c.Request.Context(), &request)
	if err != nil {
		if errors.Is(err, model.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to create backtest", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Backtest started",
	})
}

// ListBacktests handles listing backtest jobs
func (h *BacktestHandler) ListBacktests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	status := c.Query("status")
	sortBy := c.DefaultQuery("sort_by", "created_at")
	sortDirection := c.DefaultQuery("sort_direction", "desc")

	jobs, total := h.backtestService.ListJobs(status, sortBy, sortDirection, page, limit)

	c.JSON(http.StatusOK, gin.H{
		"backtests": jobs,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// GetBacktest handles retrieving a job's status and progress
func (h *BacktestHandler) GetBacktest(c *gin.Context) {
	job, err := h.backtestService.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetBacktestResult handles retrieving the full result of a completed run
func (h *BacktestHandler) GetBacktestResult(c *gin.Context) {
	id := c.Param("id")
	result, err := h.backtestService.GetResult(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBacktestTrades handles retrieving the closed-trade ledger
func (h *BacktestHandler) GetBacktestTrades(c *gin.Context) {
	id := c.Param("id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	trades, total, err := h.backtestService.GetTrades(c.Request.Context(), id, page, limit)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// GetBacktestMetrics handles retrieving the performance metrics only
func (h *BacktestHandler) GetBacktestMetrics(c *gin.Context) {
	result, err := h.backtestService.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result.Metrics)
}

// GetBacktestEquityCurve handles retrieving the equity curve
func (h *BacktestHandler) GetBacktestEquityCurve(c *gin.Context) {
	result, err := h.backtestService.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"equity_curve": result.EquityCurve})
}

// GetBacktestDrawdownCurve handles retrieving the drawdown curve
func (h *BacktestHandler) GetBacktestDrawdownCurve(c *gin.Context) {
	result, err := h.backtestService.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"drawdown_curve": result.DrawdownCurve})
}

// CancelBacktest handles cancelling a running job
func (h *BacktestHandler) CancelBacktest(c *gin.Context) {
	id := c.Param("id")
	if err := h.backtestService.CancelJob(id); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Cancellation requested"})
}

// DeleteBacktest handles removing a job and its persisted result
func (h *BacktestHandler) DeleteBacktest(c *gin.Context) {
	id := c.Param("id")
	if err := h.backtestService.DeleteJob(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backtest not found"})
			return
		}
		h.logger.Error("Failed to delete backtest",
			zap.Error(err),
			zap.String("id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete backtest"})
		return
	}

	c.Status(http.StatusNoContent)
}
