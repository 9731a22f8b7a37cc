// Package http exposes member onboarding and lifecycle endpoints.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/savacoop/saccocore/internal/member/application"
	"github.com/savacoop/saccocore/internal/member/domain"
	"github.com/savacoop/saccocore/pkg/logger"
)

type MemberHandler struct {
	app *application.Service
}

func NewMemberHandler(app *application.Service) *MemberHandler {
	return &MemberHandler{app: app}
}

func (h *MemberHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/members")
	{
		api.POST("", h.Register)
		api.GET("", h.List)
		api.GET("/:id", h.Get)
		api.POST("/:id/activate", h.Activate)
		api.POST("/:id/suspend", h.Suspend)
		api.POST("/:id/terminate", h.Terminate)
	}
}

type RegisterRequest struct {
	MemberNumber  string          `json:"member_number" binding:"required"`
	FirstName     string          `json:"first_name" binding:"required"`
	LastName      string          `json:"last_name" binding:"required"`
	NationalID    string          `json:"national_id" binding:"required"`
	Phone         string          `json:"phone" binding:"required"`
	Email         string          `json:"email"`
	Occupation    string          `json:"occupation"`
	Employer      string          `json:"employer"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
	PhotoPath     string          `json:"photo_path"`
}

func (h *MemberHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.app.Register(c.Request.Context(), application.RegisterCommand{
		MemberNumber:  req.MemberNumber,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		NationalID:    req.NationalID,
		Phone:         req.Phone,
		Email:         req.Email,
		Occupation:    req.Occupation,
		Employer:      req.Employer,
		MonthlyIncome: req.MonthlyIncome,
		PhotoPath:     req.PhotoPath,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "failed to register member", "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, member)
}

func (h *MemberHandler) Get(c *gin.Context) {
	member, err := h.app.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *MemberHandler) List(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	members, total, err := h.app.List(c.Request.Context(), domain.Status(c.Query("status")), limit, offset)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list members", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members, "total": total})
}

func (h *MemberHandler) Activate(c *gin.Context) {
	h.transition(c, h.app.Activate)
}

func (h *MemberHandler) Suspend(c *gin.Context) {
	h.transition(c, h.app.Suspend)
}

func (h *MemberHandler) Terminate(c *gin.Context) {
	h.transition(c, h.app.Terminate)
}

func (h *MemberHandler) transition(c *gin.Context, fn func(ctx context.Context, memberID string) error) {
	if err := fn(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func paging(c *gin.Context) (int, int, error) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		return 0, 0, err
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
