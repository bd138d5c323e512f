package handlers

import (
	"net/http"
	"strconv"

	"prediclaw/internal/models"
	"prediclaw/internal/services"

	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	webhooks *services.WebhookService
}

func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Subscribe registers a bot endpoint for event delivery
func (h *WebhookHandler) Subscribe(c *gin.Context) {
	var req models.SubscribeWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.webhooks.Subscribe(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": sub})
}

// ListSubscriptions returns a bot's webhook registrations
func (h *WebhookHandler) ListSubscriptions(c *gin.Context) {
	botID, ok := parseID(c, "id")
	if !ok {
		return
	}

	subs, err := h.webhooks.Subscriptions(c.Request.Context(), botID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    subs,
		"count":   len(subs),
	})
}

// ListEvents returns a subject's event stream in sequence order
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	subjectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	events, err := h.webhooks.Events(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    events,
		"count":   len(events),
	})
}

// ListFailedDeliveries surfaces terminally failed deliveries for operators
func (h *WebhookHandler) ListFailedDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	deliveries, err := h.webhooks.FailedDeliveries(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    deliveries,
		"count":   len(deliveries),
	})
}
