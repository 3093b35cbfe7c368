package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alimgiray/hookmetrics/internal/handlers"
	"github.com/alimgiray/hookmetrics/internal/middleware"
	"github.com/alimgiray/hookmetrics/internal/repositories"
	"github.com/alimgiray/hookmetrics/internal/services"
	"github.com/alimgiray/hookmetrics/internal/workers"
	"github.com/alimgiray/hookmetrics/pkg/config"
	"github.com/alimgiray/hookmetrics/pkg/database"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/alimgiray/hookmetrics/pkg/metrics"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	gin.SetMode(cfg.Server.Mode)

	ctx := context.Background()

	// Initialize database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize dependencies
	m := metrics.New()
	webhookRepo := repositories.NewWebhookRepository(db)

	policy := services.IPPolicy{
		GitHub:     cfg.Webhook.VerifyGitHubIPs,
		Cloudflare: cfg.Webhook.VerifyCloudflareIPs,
	}
	allowlist := services.NewAllowlist()
	githubClient := services.NewGitHubClient(ctx, cfg.GitHub.Token)
	allowlistService := services.NewAllowlistService(allowlist, githubClient.Meta, nil, cfg.GitHub.CloudflareIPsURL, policy, m)

	ingestService := services.NewIngestService(webhookRepo, allowlist, services.NewTeamResolver(cfg.TeamMembers()), m, services.IngestConfig{
		Secret: cfg.Webhook.Secret,
		Policy: policy,
	})
	metricsService := services.NewMetricsService(webhookRepo)
	contributorService := services.NewContributorService(webhookRepo)
	turnaroundService := services.NewTurnaroundService(webhookRepo)
	teamDynamicsService := services.NewTeamDynamicsService(webhookRepo)
	commentResolutionService := services.NewCommentResolutionService(webhookRepo)
	timelineService := services.NewTimelineService(webhookRepo)
	exportService := services.NewExportService(metricsService)

	// Initialize worker manager
	workerManager := workers.NewWorkerManager()
	if policy.Enabled() {
		allowlistWorker, err := workers.NewAllowlistWorker("allowlist-1", allowlistService, cfg.Webhook.AllowlistRefresh)
		if err != nil {
			logger.Fatalf("Failed to create allowlist worker: %v", err)
		}
		workerManager.Register(allowlistWorker)
	}

	// Initialize router
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		logger.Fatalf("Invalid trusted proxies: %v", err)
	}
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger.GetLogger()))

	setupRoutes(router, routeDeps{
		webhookHandler: handlers.NewWebhookHandler(ingestService, cfg.Webhook.MaxBodyBytes),
		metricsHandler: handlers.NewMetricsHandler(
			metricsService, contributorService, turnaroundService, teamDynamicsService,
			commentResolutionService, timelineService, exportService,
		),
		healthHandler: handlers.NewHealthHandler(metricsService, m),
		rateLimiter:   middleware.NewRateLimiter(cfg.Webhook.RateLimitPerMin),
	})

	// Start workers
	if err := workerManager.StartAll(); err != nil {
		logger.Fatalf("Failed to start workers: %v", err)
	}

	// Setup server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shut down")
	}
	workerManager.StopAll()
	logger.Infof("Server stopped")
}

type routeDeps struct {
	webhookHandler *handlers.WebhookHandler
	metricsHandler *handlers.MetricsHandler
	healthHandler  *handlers.HealthHandler
	rateLimiter    *middleware.RateLimiter
}

func setupRoutes(router *gin.Engine, deps routeDeps) {
	notFoundHandler := handlers.NewNotFoundHandler()
	router.NoRoute(notFoundHandler.NotFound)

	router.GET("/health", deps.healthHandler.Health)
	router.GET("/metrics", deps.healthHandler.Prometheus())

	router.POST("/webhooks/github", middleware.RateLimit(deps.rateLimiter), deps.webhookHandler.Receive)

	api := router.Group("/api/metrics")
	{
		api.GET("/summary", deps.metricsHandler.Summary)
		api.GET("/webhooks", deps.metricsHandler.ListWebhooks)
		api.GET("/webhooks/export", deps.metricsHandler.ExportWebhooks)
		api.GET("/webhooks/:delivery_id", deps.metricsHandler.GetWebhook)
		api.GET("/repositories", deps.metricsHandler.Repositories)
		api.GET("/contributors", deps.metricsHandler.Contributors)
		api.GET("/user-prs", deps.metricsHandler.UserPRs)
		api.GET("/trends", deps.metricsHandler.Trends)
		api.GET("/turnaround", deps.metricsHandler.Turnaround)
		api.GET("/team-dynamics", deps.metricsHandler.TeamDynamics)
		api.GET("/comment-resolution", deps.metricsHandler.CommentResolution)
		api.GET("/pr-story", deps.metricsHandler.PRStory)
	}
}
