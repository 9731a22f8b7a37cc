// Package http exposes payment voucher workflow endpoints.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/savacoop/saccocore/internal/voucher/application"
	"github.com/savacoop/saccocore/internal/voucher/domain"
)

type VoucherHandler struct {
	app *application.Service
}

func NewVoucherHandler(app *application.Service) *VoucherHandler {
	return &VoucherHandler{app: app}
}

func (h *VoucherHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/vouchers")
	{
		api.POST("", h.Create)
		api.GET("", h.ListByStatus)
		api.GET("/:id", h.Get)
		api.POST("/:id/approve", h.Approve)
		api.POST("/:id/reject", h.Reject)
		api.POST("/:id/cancel", h.Cancel)
		api.POST("/:id/pay", h.MarkPaid)
	}
}

type CreateRequest struct {
	MemberID    string          `json:"member_id"`
	LoanID      string          `json:"loan_id"`
	Payee       string          `json:"payee" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Purpose     string          `json:"purpose" binding:"required"`
	Description string          `json:"description"`
	RequestedBy string          `json:"requested_by" binding:"required"`
}

func (h *VoucherHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	voucher, err := h.app.Create(c.Request.Context(), application.CreateCommand{
		MemberID:    req.MemberID,
		LoanID:      req.LoanID,
		Payee:       req.Payee,
		Amount:      req.Amount,
		Purpose:     domain.Purpose(req.Purpose),
		Description: req.Description,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, voucher)
}

func (h *VoucherHandler) Get(c *gin.Context) {
	voucher, err := h.app.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, voucher)
}

func (h *VoucherHandler) ListByStatus(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	vouchers, total, err := h.app.ListByStatus(c.Request.Context(),
		domain.Status(c.DefaultQuery("status", string(domain.StatusPending))), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers, "total": total})
}

type ApprovalRequest struct {
	Approver string `json:"approver" binding:"required"`
}

func (h *VoucherHandler) Approve(c *gin.Context) {
	var req ApprovalRequest
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

func (h *VoucherHandler) Reject(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.app.Reject(c.Request.Context(), c.Param("id"), req.Approver); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (h *VoucherHandler) Cancel(c *gin.Context) {
	if err := h.app.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type MarkPaidRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
}

func (h *VoucherHandler) MarkPaid(c *gin.Context) {
	var req MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.app.MarkPaid(c.Request.Context(), c.Param("id"), req.TransactionID); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrVoucherNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrVoucherImmutable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
