package auth

import (
	"net/http"

	"prediclaw/internal/models"
	"prediclaw/internal/services"

	"github.com/gin-gonic/gin"
)

// BotAuthMiddleware authenticates requests by API-key equality against the
// bot table and rejects paused or inactive bots.
func BotAuthMiddleware(bots *services.BotService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "X-API-Key header required",
			})
			c.Abort()
			return
		}

		bot, err := bots.GetBotByAPIKey(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		if bot.Status != models.BotStatusActive {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Bot is not active",
			})
			c.Abort()
			return
		}

		c.Set("bot_id", bot.ID)
		c.Next()
	}
}
