// Package http exposes account and transaction endpoints.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/savacoop/saccocore/internal/ledger/application"
	"github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/pkg/logger"
)

type LedgerHandler struct {
	app *application.Service
}

func NewLedgerHandler(app *application.Service) *LedgerHandler {
	return &LedgerHandler{app: app}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.Engine) {
	accounts := router.Group("/api/v1/accounts")
	{
		accounts.GET("/:id", h.GetAccount)
		accounts.GET("/:id/transactions", h.ListTransactions)
	}
	transactions := router.Group("/api/v1/transactions")
	{
		transactions.POST("", h.Post)
	}
}

type PostRequest struct {
	AccountID     string          `json:"account_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Type          string          `json:"type" binding:"required"`
	TransactionID string          `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
}

// Post records a single ledger transaction. Callers supplying their own
// transaction_id get idempotent replay semantics.
func (h *LedgerHandler) Post(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := h.app.Post(c.Request.Context(), application.PostCommand{
		AccountID:     req.AccountID,
		Amount:        req.Amount,
		Type:          domain.TransactionType(req.Type),
		TransactionID: req.TransactionID,
		Reference:     req.Reference,
		Description:   req.Description,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "failed to post transaction",
			"account_id", req.AccountID, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, txn)
}

func (h *LedgerHandler) GetAccount(c *gin.Context) {
	account, err := h.app.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *LedgerHandler) ListTransactions(c *gin.Context) {
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

	transactions, total, err := h.app.ListTransactions(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list transactions",
			"account_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions, "total": total})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
