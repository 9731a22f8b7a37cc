// Package http exposes loan origination, disbursement and repayment
// endpoints.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/savacoop/saccocore/internal/loan/application"
	"github.com/savacoop/saccocore/internal/loan/domain"
	"github.com/savacoop/saccocore/pkg/logger"
)

type LoanHandler struct {
	app *application.Service
}

func NewLoanHandler(app *application.Service) *LoanHandler {
	return &LoanHandler{app: app}
}

func (h *LoanHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/loans")
	{
		api.POST("", h.Apply)
		api.GET("/:id", h.Get)
		api.GET("/:id/schedule", h.Schedule)
		api.POST("/:id/review", h.StartReview)
		api.POST("/:id/approve", h.Approve)
		api.POST("/:id/reject", h.Reject)
		api.POST("/:id/disburse", h.Disburse)
		api.POST("/:id/repayments", h.RecordRepayment)
		api.GET("/eligibility", h.Evaluate)
		api.GET("/max-amount", h.MaximumLoanAmount)
	}
}

type ApplyRequest struct {
	MemberID        string          `json:"member_id" binding:"required"`
	ProductID       string          `json:"product_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	TermMonths      int             `json:"term_months" binding:"required"`
	Purpose         string          `json:"purpose"`
	GuarantorIDs    []string        `json:"guarantor_ids"`
	GuaranteeAmount decimal.Decimal `json:"guarantee_amount"`
}

func (h *LoanHandler) Apply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loan, result, err := h.app.Apply(c.Request.Context(), application.ApplyCommand{
		MemberID:        req.MemberID,
		ProductID:       req.ProductID,
		Amount:          req.Amount,
		TermMonths:      req.TermMonths,
		Purpose:         req.Purpose,
		GuarantorIDs:    req.GuarantorIDs,
		GuaranteeAmount: req.GuaranteeAmount,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotEligible) && result != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    err.Error(),
				"eligible": false,
				"messages": result.Messages,
			})
			return
		}
		logger.Error(c.Request.Context(), "loan application failed",
			"member_id", req.MemberID, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"loan": loan, "eligibility": result})
}

func (h *LoanHandler) Get(c *gin.Context) {
	loan, err := h.app.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LoanHandler) Schedule(c *gin.Context) {
	schedule, err := h.app.Schedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": schedule})
}

func (h *LoanHandler) StartReview(c *gin.Context) {
	if err := h.app.StartReview(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "under_review"})
}

type ApproveRequest struct {
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	AnnualRate decimal.Decimal `json:"annual_rate" binding:"required"`
	TermMonths int             `json:"term_months" binding:"required"`
	ApprovedBy string          `json:"approved_by" binding:"required"`
}

func (h *LoanHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.app.Approve(c.Request.Context(), c.Param("id"), req.Amount, req.AnnualRate, req.TermMonths, req.ApprovedBy)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *LoanHandler) Reject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.app.Reject(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

type DisburseRequest struct {
	Operator string `json:"operator" binding:"required"`
}

func (h *LoanHandler) Disburse(c *gin.Context) {
	var req DisburseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := h.app.Disburse(c.Request.Context(), c.Param("id"), req.Operator)
	if err != nil {
		logger.Error(c.Request.Context(), "disbursement failed",
			"loan_id", c.Param("id"), "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

type RepaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Reference string          `json:"reference" binding:"required"`
}

func (h *LoanHandler) RecordRepayment(c *gin.Context) {
	var req RepaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.app.RecordRepayment(c.Request.Context(), c.Param("id"), req.Amount, req.Reference); err != nil {
		logger.Error(c.Request.Context(), "repayment failed",
			"loan_id", c.Param("id"), "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (h *LoanHandler) Evaluate(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	result, err := h.app.Evaluate(c.Request.Context(), c.Query("member_id"), c.Query("product_id"), amount)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LoanHandler) MaximumLoanAmount(c *gin.Context) {
	max, err := h.app.MaximumLoanAmount(c.Request.Context(), c.Query("member_id"), c.Query("product_id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"maximum_amount": max})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrLoanNotFound), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidLoanState), errors.Is(err, domain.ErrLoanNotDisbursable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAmountOutOfBounds),
		errors.Is(err, domain.ErrTermOutOfBounds),
		errors.Is(err, domain.ErrNotEligible):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
