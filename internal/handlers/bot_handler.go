package handlers

import (
	"net/http"
	"strconv"

	"prediclaw/internal/models"
	"prediclaw/internal/policy"
	"prediclaw/internal/services"

	"github.com/gin-gonic/gin"
)

type BotHandler struct {
	bots   *services.BotService
	ledger *services.LedgerService
	guard  *policy.Guard
}

func NewBotHandler(bots *services.BotService, ledger *services.LedgerService, guard *policy.Guard) *BotHandler {
	return &BotHandler{bots: bots, ledger: ledger, guard: guard}
}

// CreateBot registers a new bot and returns its API key once
func (h *BotHandler) CreateBot(c *gin.Context) {
	var req models.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bot, apiKey, err := h.bots.CreateBot(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    bot,
		"api_key": apiKey,
	})
}

// ListBots returns all registered bots
func (h *BotHandler) ListBots(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bots, err := h.bots.ListBots(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    bots,
		"count":   len(bots),
	})
}

// GetBot returns a single bot
func (h *BotHandler) GetBot(c *gin.Context) {
	botID, ok := parseID(c, "id")
	if !ok {
		return
	}

	bot, err := h.bots.GetBot(c.Request.Context(), botID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": bot})
}

// Deposit credits BDC to a bot wallet
func (h *BotHandler) Deposit(c *gin.Context) {
	botID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if !h.guard.MayAct(botID, policy.ActionDeposit) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.bots.Deposit(c.Request.Context(), botID, req.AmountBDC, models.LedgerReason(req.Reason))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": entry})
}

// GetBalance returns the ledger-derived balance of a bot
func (h *BotHandler) GetBalance(c *gin.Context) {
	botID, ok := parseID(c, "id")
	if !ok {
		return
	}

	balance, err := h.ledger.BalanceOf(c.Request.Context(), botID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"bot_id":      botID,
		"balance_bdc": balance,
	})
}

// GetLedger returns a bot's ledger entries
func (h *BotHandler) GetLedger(c *gin.Context) {
	botID, ok := parseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.ledger.Entries(c.Request.Context(), botID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
		"count":   len(entries),
	})
}

// SetStatus transitions a bot between active, paused and inactive
func (h *BotHandler) SetStatus(c *gin.Context) {
	botID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status models.BotStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bot, err := h.bots.SetStatus(c.Request.Context(), botID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": bot})
}
