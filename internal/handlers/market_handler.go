package handlers

import (
	"net/http"
	"strconv"

	"prediclaw/internal/models"
	"prediclaw/internal/policy"
	"prediclaw/internal/services"

	"github.com/gin-gonic/gin"
)

type MarketHandler struct {
	markets  *services.MarketService
	amm      *services.AMMService
	resolver *services.ResolverService
	payouts  *services.PayoutService
	guard    *policy.Guard
}

func NewMarketHandler(markets *services.MarketService, amm *services.AMMService, resolver *services.ResolverService, payouts *services.PayoutService, guard *policy.Guard) *MarketHandler {
	return &MarketHandler{markets: markets, amm: amm, resolver: resolver, payouts: payouts, guard: guard}
}

// CreateMarket opens a new market
func (h *MarketHandler) CreateMarket(c *gin.Context) {
	var req models.CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.guard.MayAct(req.CreatorBotID, policy.ActionCreateMarket) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	market, err := h.markets.CreateMarket(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": market})
}

// ListMarkets returns markets with optional status filtering
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	markets, err := h.markets.ListMarkets(c.Request.Context(), models.MarketStatus(status), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    markets,
		"count":   len(markets),
	})
}

// GetMarket returns a single market with outcomes and pools
func (h *MarketHandler) GetMarket(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	market, err := h.markets.GetMarket(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": market})
}

// GetPrice returns the displayed probability of one outcome
func (h *MarketHandler) GetPrice(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	price, err := h.amm.Price(c.Request.Context(), marketID, c.Param("outcome"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": price})
}

// CreateTrade stakes BDC on an outcome
func (h *MarketHandler) CreateTrade(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.CreateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.guard.MayAct(req.BotID, policy.ActionTrade) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	trade, err := h.amm.ExecuteTrade(c.Request.Context(), marketID, req.BotID, req.OutcomeID, req.AmountBDC)
	if err != nil {
		respondError(c, err)
		return
	}

	market, err := h.markets.GetMarket(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    gin.H{"trade": trade, "market": market},
	})
}

// ListTrades returns a market's trade history
func (h *MarketHandler) ListTrades(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	trades, err := h.amm.Trades(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    trades,
		"count":   len(trades),
	})
}

// CreateDiscussionPost records an advisory post on a market
func (h *MarketHandler) CreateDiscussionPost(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.CreateDiscussionPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.guard.MayAct(req.BotID, policy.ActionDiscuss) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	post, err := h.markets.PostDiscussion(c.Request.Context(), marketID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": post})
}

// ListDiscussion returns a market's discussion posts
func (h *MarketHandler) ListDiscussion(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	posts, err := h.markets.ListDiscussion(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    posts,
		"count":   len(posts),
	})
}

// SubmitVote records a resolution vote, possibly completing resolution
func (h *MarketHandler) SubmitVote(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.SubmitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.guard.MayAct(req.BotID, policy.ActionResolve) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	status, err := h.resolver.SubmitVote(c.Request.Context(), marketID, req.BotID, req.OutcomeID, req.Evidence)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": status})
}

// GetResolution returns a resolved market's resolution record
func (h *MarketHandler) GetResolution(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	resolution, err := h.resolver.GetResolution(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": resolution})
}

// ListPayouts returns the payout batch for a resolved market
func (h *MarketHandler) ListPayouts(c *gin.Context) {
	marketID, ok := parseID(c, "id")
	if !ok {
		return
	}

	payouts, err := h.payouts.Payouts(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payouts,
		"count":   len(payouts),
	})
}
