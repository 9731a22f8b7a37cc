// Package http exposes dividend calculation and distribution endpoints.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/savacoop/saccocore/internal/dividend/application"
	"github.com/savacoop/saccocore/internal/dividend/domain"
	"github.com/savacoop/saccocore/pkg/logger"
)

type DividendHandler struct {
	app *application.Service
}

func NewDividendHandler(app *application.Service) *DividendHandler {
	return &DividendHandler{app: app}
}

func (h *DividendHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/dividends")
	{
		api.POST("", h.Calculate)
		api.GET("/:id", h.Get)
		api.POST("/:id/approve", h.Approve)
		api.POST("/:id/distribute", h.Distribute)
	}
}

type CalculateRequest struct {
	Year int             `json:"year" binding:"required"`
	Pool decimal.Decimal `json:"pool" binding:"required"`
}

func (h *DividendHandler) Calculate(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dividend, err := h.app.Calculate(c.Request.Context(), req.Year, req.Pool)
	if err != nil {
		logger.Error(c.Request.Context(), "dividend calculation failed",
			"year", req.Year, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dividend)
}

func (h *DividendHandler) Get(c *gin.Context) {
	dividend, rows, err := h.app.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dividend": dividend, "member_dividends": rows})
}

type ApproveRequest struct {
	Approver string `json:"approver" binding:"required"`
}

func (h *DividendHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.app.Approve(c.Request.Context(), c.Param("id"), req.Approver); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (h *DividendHandler) Distribute(c *gin.Context) {
	if err := h.app.Distribute(c.Request.Context(), c.Param("id")); err != nil {
		logger.Error(c.Request.Context(), "dividend distribution failed",
			"dividend_id", c.Param("id"), "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "distributed"})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrDividendNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrAlreadyCalculated):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyShareBase):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
