package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/service"
)

// OptimizationHandler handles optimization HTTP requests
type OptimizationHandler struct {
	optimizationService *service.OptimizationService
	logger              *zap.Logger
}

// NewOptimizationHandler creates a new optimization handler
func NewOptimizationHandler(optimizationService *service.OptimizationService, logger *zap.Logger) *OptimizationHandler {
	return &OptimizationHandler{
		optimizationService: optimizationService,
		logger:              logger,
	}
}

// CreateOptimization handles starting a new grid search
func (h *OptimizationHandler) CreateOptimization(c *gin.Context) {
	var request model.OptimizationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.optimizationService.CreateOptimization(c.Request.Context(), &request)
	if err != nil {
		h.logger.Error("Failed to create optimization", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":       job.ID,
		"status":       job.Status,
		"combinations": job.Total,
		"message":      "Optimization started",
	})
}

// ListOptimizations handles listing optimization jobs
func (h *OptimizationHandler) ListOptimizations(c *gin.Context) {
	jobs := h.optimizationService.ListJobs()
	c.JSON(http.StatusOK, gin.H{"optimizations": jobs})
}

// GetOptimization handles retrieving a job's status and progress
func (h *OptimizationHandler) GetOptimization(c *gin.Context) {
	job, err := h.optimizationService.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Optimization not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetOptimizationResults handles retrieving the ranked results
func (h *OptimizationHandler) GetOptimizationResults(c *gin.Context) {
	results, err := h.optimizationService.GetResults(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Optimization not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// CancelOptimization handles cancelling a running grid search. Already
// collected results stay queryable.
func (h *OptimizationHandler) CancelOptimization(c *gin.Context) {
	id := c.Param("id")
	if err := h.optimizationService.CancelJob(id); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Optimization not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Cancellation requested"})
}
