// Package http exposes deposit initiation and the gateway callback endpoint.
// Wire-format parsing lives here; the application layer only sees normalized
// GatewayResult values.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/savacoop/saccocore/internal/payment/application"
	"github.com/savacoop/saccocore/internal/payment/domain"
	"github.com/savacoop/saccocore/pkg/logger"
)

type PaymentHandler struct {
	app *application.Service
}

func NewPaymentHandler(app *application.Service) *PaymentHandler {
	return &PaymentHandler{app: app}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/payments")
	{
		api.POST("/deposits", h.InitiateDeposit)
		api.POST("/callback", h.Callback)
		api.GET("/:reference", h.Get)
		api.GET("", h.ListByMember)
	}
}

type InitiateDepositRequest struct {
	MemberID        string          `json:"member_id" binding:"required"`
	PayerIdentifier string          `json:"payer_identifier" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
}

func (h *PaymentHandler) InitiateDeposit(c *gin.Context) {
	var req InitiateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.app.InitiateDeposit(c.Request.Context(), req.MemberID, req.PayerIdentifier, req.Amount)
	if err != nil {
		logger.Error(c.Request.Context(), "deposit initiation failed",
			"member_id", req.MemberID, "error", err)
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "request": request})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, request)
}

// stkCallback mirrors the gateway's push notification payload.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// Callback normalizes the gateway payload and hands it to the deposit
// processor. Always answers 200 to stop gateway redelivery once the result is
// durably handled; unknown references get a 404 so the gateway retries.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var payload stkCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cb := payload.Body.StkCallback
	result := domain.GatewayResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		Succeeded:         cb.ResultCode == 0,
		FailureReason:     cb.ResultDesc,
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			var amount float64
			if err := json.Unmarshal(item.Value, &amount); err == nil {
				result.Amount = decimal.NewFromFloat(amount)
			}
		case "MpesaReceiptNumber":
			var receipt string
			if err := json.Unmarshal(item.Value, &receipt); err == nil {
				result.ExternalTransactionID = receipt
			}
		case "PhoneNumber":
			var phone json.Number
			if err := json.Unmarshal(item.Value, &phone); err == nil {
				result.PayerIdentifier = phone.String()
			}
		case "AccountReference":
			var reference string
			if err := json.Unmarshal(item.Value, &reference); err == nil {
				result.Reference = reference
			}
		}
	}

	if err := h.app.ProcessCallback(c.Request.Context(), result); err != nil {
		logger.Error(c.Request.Context(), "gateway callback processing failed",
			"checkout_request_id", cb.CheckoutRequestID, "error", err)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *PaymentHandler) Get(c *gin.Context) {
	request, err := h.app.Get(c.Request.Context(), c.Param("reference"))
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *PaymentHandler) ListByMember(c *gin.Context) {
	memberID := c.Query("member_id")
	if memberID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id is required"})
		return
	}
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

	requests, total, err := h.app.ListByMember(c.Request.Context(), memberID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": requests, "total": total})
}
