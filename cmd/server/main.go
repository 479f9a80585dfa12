// Package main runs the live Q&A room HTTP server with WebSocket fan-out and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/askroom/backend/config"
	"github.com/askroom/backend/internal/auth"
	"github.com/askroom/backend/internal/middleware"
	"github.com/askroom/backend/internal/models"
	"github.com/askroom/backend/internal/questions"
	"github.com/askroom/backend/internal/realtime"
	"github.com/askroom/backend/internal/rooms"
	"github.com/askroom/backend/internal/worker"
	"github.com/askroom/backend/pkg/database"
	"github.com/askroom/backend/pkg/queue"
	"github.com/askroom/backend/pkg/redis"
	"github.com/askroom/backend/pkg/response"
	"github.com/askroom/backend/pkg/storage"
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
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchivesBucket:       cfg.AWS.ArchivesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Rooms and questions
	roomRepo := rooms.NewRepository(pool)
	questionRepo := questions.NewRepository(pool)
	hub.SetSnapshotProvider(rooms.NewSnapshotProvider(roomRepo, questionRepo))

	// Room archiving (transcript to S3 when a room ends)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	var archiver rooms.Archiver
	var archives rooms.ArchiveStorage
	if s3Client != nil {
		archiver = jobQueue
		archives = s3Client
	}
	roomHandler := rooms.NewHandler(roomRepo, questionRepo, hub, archiver, archives, logger)
	questionHandler := questions.NewHandler(questionRepo, roomRepo, hub, logger)
	archiveProcessor := worker.NewArchiveProcessor(roomRepo, questionRepo, s3Client, jobQueue, logger)

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

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Rooms
		api.POST("/rooms", roomHandler.Create)
		api.GET("/rooms", roomHandler.List)
		api.GET("/rooms/:code", roomHandler.Get)
		api.GET("/rooms/:code/join", roomHandler.Join)
		api.POST("/rooms/:code/end", roomHandler.End)
		api.GET("/rooms/:code/archive", roomHandler.Archive)

		// Questions
		api.POST("/rooms/:code/questions", questionHandler.Create)
		api.PATCH("/rooms/:code/questions/:id/answer", questionHandler.Answer)
		api.PATCH("/rooms/:code/questions/:id/highlight", questionHandler.Highlight)
		api.DELETE("/rooms/:code/questions/:id", questionHandler.Delete)

		// Admin surface
		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(string(models.RoleAdmin)))
		admin.GET("/rooms", roomHandler.ListAll)
	}

	// WebSocket (token in query; no Authorization header on browser sockets)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (room transcript archiving)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go archiveProcessor.Run(workerCtx)
		logger.Info("archive worker started")
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
	logger, _ := config.Build()
	return logger
}
