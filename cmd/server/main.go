// Package main runs the ticketing HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gatherpass/backend/config"
	"github.com/gatherpass/backend/internal/analytics"
	"github.com/gatherpass/backend/internal/approval"
	"github.com/gatherpass/backend/internal/attendance"
	"github.com/gatherpass/backend/internal/auth"
	"github.com/gatherpass/backend/internal/events"
	"github.com/gatherpass/backend/internal/ledger"
	"github.com/gatherpass/backend/internal/middleware"
	"github.com/gatherpass/backend/internal/models"
	"github.com/gatherpass/backend/internal/payments"
	"github.com/gatherpass/backend/internal/realtime"
	"github.com/gatherpass/backend/internal/registrations"
	"github.com/gatherpass/backend/internal/worker"
	"github.com/gatherpass/backend/pkg/database"
	"github.com/gatherpass/backend/pkg/queue"
	"github.com/gatherpass/backend/pkg/redis"
	"github.com/gatherpass/backend/pkg/response"
	"github.com/gatherpass/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: int32(cfg.Database.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.QRBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			QRBucket:             cfg.AWS.QRBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}
	var presigner registrations.Presigner
	if s3Client != nil {
		presigner = s3Client
	}

	store := ledger.NewPgStore(pool, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	qrJobs := qrScheduler(jobQueue, s3Client != nil)
	if qrJobs == nil {
		logger.Warn("qr bucket not configured; qr images render on demand only")
	}
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	hub := realtime.NewHub(realtime.NewRedisPubSub(rdb.Client, logger), logger)

	gateway := payments.NewRazorpay(payments.RazorpayConfig{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
	}, &http.Client{Timeout: cfg.Payments.GatewayTimeout})
	if cfg.Razorpay.KeyID == "" {
		logger.Warn("razorpay credentials not set; paid checkout will fail with 503")
	}

	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, cfg.JWT.AdminEmails, logger)
	eventHandler := events.NewHandler(events.NewService(store, logger), logger)
	registrationHandler := registrations.NewHandler(registrations.NewService(store, qrJobs, presigner, logger), logger)
	paymentHandler := payments.NewHandler(payments.NewService(store, gateway, qrJobs, payments.Options{
		Currency:       cfg.Payments.Currency,
		GatewayTimeout: cfg.Payments.GatewayTimeout,
	}, logger), logger)
	attendanceHandler := attendance.NewHandler(attendance.NewService(store, hub, logger), logger)
	approvalHandler := approval.NewHandler(approval.NewService(store, qrJobs, logger), logger)
	analyticsHandler := analytics.NewHandler(analytics.NewService(store, cfg.Payments.Currency), logger)

	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled {
		limit = middleware.RateLimit(
			middleware.NewRedisLimiter(rdb.Client, cfg.RateLimit.Capacity, cfg.RateLimit.Rate),
			cfg.RateLimit.Capacity, logger)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "ok", "database": "ok", "redis": "ok"}
		if err := pool.Ping(hctx); err != nil {
			status["status"], status["database"] = "degraded", "down"
		}
		if !rdb.Healthy(hctx) {
			status["status"], status["redis"] = "degraded", "down"
		}
		response.OK(c, status)
	})

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", limit, authHandler.Login)
		authGroup.POST("/register", limit, authHandler.Register)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me(middleware.ContextUserID))
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/events", eventHandler.List)
		api.POST("/events", limit, eventHandler.Create)
		api.GET("/events/:id", eventHandler.Get)
		api.POST("/events/:id/join", limit, registrationHandler.Join)
		api.POST("/events/scan-qr", limit, attendanceHandler.Scan)

		api.POST("/payments/create/:registrationId", limit, paymentHandler.Create)
		api.POST("/payments/verify", limit, paymentHandler.Verify)

		api.POST("/approve/:registrationId", limit, approvalHandler.ApproveRegistration)

		api.GET("/my-events", registrationHandler.Mine)
		api.GET("/registrations/:id/qr.png", registrationHandler.QR)

		api.GET("/hosted", eventHandler.Hosted)
		api.GET("/hosted/:id/attendees", eventHandler.Attendees)
		api.GET("/hosted/:id/summary", analyticsHandler.Summary)

		admin := api.Group("/admin", middleware.RequireRole(models.RoleAdmin))
		admin.GET("/events/pending", approvalHandler.Pending)
		admin.POST("/events/:id/approve", approvalHandler.ApproveEvent)
	}

	// WebSocket (token in query; browsers cannot set headers on upgrade)
	router.GET("/ws", realtime.ServeWs(hub,
		realtime.NewHostAuthorizer(jwtService, store),
		realtime.NewUpgrader(cfg.Server.CORSAllowedOrigins), logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go worker.NewQRProcessor(store, s3Client, jobQueue, logger).Run(workerCtx)
		logger.Info("qr worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
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
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// qrScheduler returns q as the QR job sink when rendered images can be stored, nil otherwise.
func qrScheduler(q *queue.Queue, storageReady bool) registrations.QRJobs {
	if !storageReady || q == nil {
		return nil
	}
	return q
}
