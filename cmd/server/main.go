// Package main runs the ticketing platform HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jamm-events/backend/config"
	"github.com/jamm-events/backend/internal/analytics"
	"github.com/jamm-events/backend/internal/auth"
	"github.com/jamm-events/backend/internal/checkout"
	"github.com/jamm-events/backend/internal/emaillogs"
	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/middleware"
	"github.com/jamm-events/backend/internal/models"
	"github.com/jamm-events/backend/internal/payments"
	"github.com/jamm-events/backend/internal/realtime"
	"github.com/jamm-events/backend/internal/rrpp"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/pkg/database"
	"github.com/jamm-events/backend/pkg/queue"
	"github.com/jamm-events/backend/pkg/redis"
	"github.com/jamm-events/backend/pkg/response"
	"github.com/jamm-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ImagesBucket:    cfg.AWS.ImagesBucket,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool)

	// Tickets (inventory ledger)
	ticketRepo := tickets.NewRepository(pool)
	ticketHandler := tickets.NewHandler(ticketRepo, eventRepo, logger)
	eventHandler := events.NewHandler(eventRepo, ticketRepo, s3Client, logger)

	// RRPP promoters
	rrppRepo := rrpp.NewRepository(pool)
	rrppStats := rrpp.NewAggregator(pool, rrppRepo)
	rrppHandler := rrpp.NewHandler(rrppRepo, rrppStats, eventRepo, logger)

	// Checkout + payments
	orderRepo := checkout.NewRepository(pool)
	paymentClient := payments.NewClient(cfg, logger)
	checkoutSvc := checkout.NewService(eventRepo, ticketRepo, orderRepo, rrppRepo,
		paymentClient, jobQueue, hub, logger)
	checkoutHandler := checkout.NewHandler(checkoutSvc, logger)

	reconciler := payments.NewReconciler(orderRepo, ticketRepo, jobQueue, hub, logger)
	paymentWebhook := payments.NewWebhookHandler(reconciler, paymentClient, logger)

	// Analytics
	analyticsHandler := analytics.NewHandler(pool, ticketRepo)

	// Email logs
	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo, ticketRepo, jobQueue, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	checkoutLimiter := middleware.RateLimit(rdb.Client, "checkout", 10, time.Minute, logger)

	// Public storefront: event page (with ?rrpp= referral pass-through),
	// guest checkout and guest order lookup
	router.GET("/public/events/:id", eventHandler.PublicView)
	router.POST("/public/checkout", checkoutLimiter, checkoutHandler.GuestCheckout)
	router.GET("/public/orders/:id", checkoutHandler.GuestOrderLookup)

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Buyer
		api.POST("/checkout", checkoutLimiter, checkoutHandler.Checkout)
		api.GET("/me/tickets", ticketHandler.MyTickets)

		// Events (organizer)
		api.POST("/events", middleware.RequireRole(string(models.RoleOrganizer)), eventHandler.Create)
		api.GET("/events", middleware.RequireRole(string(models.RoleOrganizer)), eventHandler.ListMine)

		owner := api.Group("/events/:id", middleware.RequireRole(string(models.RoleOrganizer)), events.RequireOwner(eventRepo))
		{
			owner.GET("", eventHandler.Get)
			owner.PUT("", eventHandler.Update)
			owner.DELETE("", eventHandler.Deactivate)
			owner.POST("/image", eventHandler.UploadImage)

			owner.POST("/ticket-types", ticketHandler.CreateType)
			owner.GET("/ticket-types", ticketHandler.ListTypes)
			owner.POST("/grants", checkoutHandler.Grant)

			owner.GET("/analytics", analyticsHandler.GetByEvent)
			owner.GET("/emails", emailLogsHandler.ListByEvent)
			owner.POST("/emails/resend", emailLogsHandler.Resend)
		}

		api.PUT("/ticket-types/:id", middleware.RequireRole(string(models.RoleOrganizer)), ticketHandler.UpdateType)
		api.DELETE("/ticket-types/:id", middleware.RequireRole(string(models.RoleOrganizer)), ticketHandler.DeactivateType)

		// Entry validation
		api.POST("/tickets/redeem", middleware.RequireRole(string(models.RoleOrganizer)), ticketHandler.Redeem)

		// RRPP promoters (organizer management + promoter dashboard)
		api.POST("/rrpps", middleware.RequireRole(string(models.RoleOrganizer)), rrppHandler.Create)
		api.GET("/rrpps", middleware.RequireRole(string(models.RoleOrganizer)), rrppHandler.List)
		api.PUT("/rrpps/:id", middleware.RequireRole(string(models.RoleOrganizer)), rrppHandler.Update)
		api.DELETE("/rrpps/:id", middleware.RequireRole(string(models.RoleOrganizer)), rrppHandler.Delete)
		api.POST("/rrpps/:id/events/:eventID", middleware.RequireRole(string(models.RoleOrganizer)), rrppHandler.Assign)
		api.DELETE("/rrpps/:id/events/:eventID", middleware.RequireRole(string(models.RoleOrganizer)), rrppHandler.Unassign)
		api.GET("/rrpps/stats", middleware.RequireRole(string(models.RoleOrganizer)), rrppHandler.OrganizerStats)
		api.GET("/rrpps/me/stats", middleware.RequireRole(string(models.RoleRRPP)), rrppHandler.MyStats)
	}

	// Webhooks (no JWT; payment state is verified against the provider)
	router.POST("/webhooks/payments", paymentWebhook.Handle)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
