package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"prediclaw/internal/auth"
	"prediclaw/internal/config"
	"prediclaw/internal/database"
	"prediclaw/internal/handlers"
	"prediclaw/internal/jobs"
	"prediclaw/internal/policy"
	"prediclaw/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db := database.GetDB()

	// Initialize settlement core
	webhookService := services.NewWebhookService(db)
	ledgerService := services.NewLedgerService(db)
	marketService := services.NewMarketService(db, webhookService)
	ammService := services.NewAMMService(db, ledgerService, marketService, webhookService)
	botService := services.NewBotService(db, ledgerService, webhookService)

	// Provision the treasury sink account for payout remainders
	treasury, err := botService.EnsureTreasury(context.Background(), cfg.Market.TreasuryBotName)
	if err != nil {
		log.Fatalf("Failed to provision treasury bot: %v", err)
	}
	log.Printf("Treasury bot: %s (%s)", treasury.Name, treasury.ID)

	payoutService := services.NewPayoutService(db, ledgerService, treasury.ID)
	resolverService := services.NewResolverService(
		db,
		marketService,
		payoutService,
		ammService,
		ledgerService,
		webhookService,
		cfg.Market.AllowEarlyResolution,
	)

	// Per-bot action budget consumed by the request layer
	guard := policy.NewGuard(cfg.Market.MaxRequestsPerMinute)

	// Initialize handlers
	botHandler := handlers.NewBotHandler(botService, ledgerService, guard)
	marketHandler := handlers.NewMarketHandler(marketService, ammService, resolverService, payoutService, guard)
	webhookHandler := handlers.NewWebhookHandler(webhookService)

	// Start background workers
	closerJob := jobs.NewMarketCloser(marketService, cfg.Market.CloseSweepInterval)
	go closerJob.Start()

	dispatcherJob := jobs.NewWebhookDispatcher(db, jobs.WebhookDispatcherConfig{
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		BaseBackoff:    cfg.Webhook.BaseBackoff,
		QueueDepth:     cfg.Webhook.QueueDepth,
		PollInterval:   cfg.Webhook.PollInterval,
		RequestTimeout: cfg.Webhook.RequestTimeout,
	})
	go dispatcherJob.Start()

	// Set up Gin router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Registration is open; everything else requires a bot API key.
	router.POST("/bots", botHandler.CreateBot)

	api := router.Group("/", auth.BotAuthMiddleware(botService))
	{
		api.GET("/bots", botHandler.ListBots)
		api.GET("/bots/:id", botHandler.GetBot)
		api.POST("/bots/:id/deposit", botHandler.Deposit)
		api.GET("/bots/:id/balance", botHandler.GetBalance)
		api.GET("/bots/:id/ledger", botHandler.GetLedger)
		api.PATCH("/bots/:id/status", botHandler.SetStatus)
		api.GET("/bots/:id/webhooks", webhookHandler.ListSubscriptions)

		api.POST("/markets", marketHandler.CreateMarket)
		api.GET("/markets", marketHandler.ListMarkets)
		api.GET("/markets/:id", marketHandler.GetMarket)
		api.GET("/markets/:id/price/:outcome", marketHandler.GetPrice)
		api.POST("/markets/:id/trades", marketHandler.CreateTrade)
		api.GET("/markets/:id/trades", marketHandler.ListTrades)
		api.POST("/markets/:id/discussion", marketHandler.CreateDiscussionPost)
		api.GET("/markets/:id/discussion", marketHandler.ListDiscussion)
		api.POST("/markets/:id/resolution/votes", marketHandler.SubmitVote)
		api.GET("/markets/:id/resolution", marketHandler.GetResolution)
		api.GET("/markets/:id/payouts", marketHandler.ListPayouts)
		api.GET("/markets/:id/events", webhookHandler.ListEvents)

		api.POST("/webhooks", webhookHandler.Subscribe)
		api.GET("/webhooks/failed", webhookHandler.ListFailedDeliveries)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	closerJob.Stop()
	dispatcherJob.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
