// Package http exposes notification history and redelivery endpoints.
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/savacoop/saccocore/internal/notification/application"
	"github.com/savacoop/saccocore/pkg/logger"
)

type NotificationHandler struct {
	app *application.Dispatcher
}

func NewNotificationHandler(app *application.Dispatcher) *NotificationHandler {
	return &NotificationHandler{app: app}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/notifications")
	{
		api.GET("/history", h.History)
		api.POST("/redeliver", h.Redeliver)
	}
}

func (h *NotificationHandler) History(c *gin.Context) {
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

	notifications, total, err := h.app.ListByMember(c.Request.Context(), memberID, limit, offset)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list notifications",
			"member_id", memberID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "total": total})
}

type RedeliverRequest struct {
	Limit int `json:"limit"`
}

func (h *NotificationHandler) Redeliver(c *gin.Context) {
	var req RedeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	retried, err := h.app.Redeliver(c.Request.Context(), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"redelivered": retried})
}
