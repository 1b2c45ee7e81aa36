// Package main runs the LinguaClip HTTP server with the in-process
// transcription worker and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/linguaclip/backend/config"
	"github.com/linguaclip/backend/internal/auth"
	"github.com/linguaclip/backend/internal/media"
	"github.com/linguaclip/backend/internal/middleware"
	"github.com/linguaclip/backend/internal/models"
	"github.com/linguaclip/backend/internal/realtime"
	"github.com/linguaclip/backend/internal/transcribe"
	"github.com/linguaclip/backend/internal/worker"
	"github.com/linguaclip/backend/pkg/database"
	"github.com/linguaclip/backend/pkg/queue"
	"github.com/linguaclip/backend/pkg/redis"
	"github.com/linguaclip/backend/pkg/response"
	"github.com/linguaclip/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
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
			MediaBucket:          cfg.AWS.MediaBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		logger.Fatal("transcription backend", zap.Error(err))
	}
	logger.Info("transcription backend ready", zap.String("backend", backend.Name()))

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Media + transcription pipeline
	mediaRepo := media.NewRepository(pool)
	transcribeSvc := transcribe.NewService(mediaRepo, backend, pubsub, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	mediaHandler := media.NewHandler(mediaRepo, jobQueue, transcribeSvc, s3Client, cfg.Media.Dir, logger)
	processor := worker.NewTranscriptionProcessor(transcribeSvc, jobQueue, logger)

	jwtValidate := func(token string) (userID string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.MaxMultipartMemory = int64(cfg.Media.MaxUploadMB) << 20

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

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
		api.GET("/media", mediaHandler.List)
		api.POST("/media", mediaHandler.Create)
		api.GET("/media/:id", mediaHandler.GetByID)
		api.DELETE("/media/:id", mediaHandler.Delete)
		api.POST("/media/:id/transcribe", mediaHandler.Transcribe)
		api.POST("/media/:id/transcribe/retry", mediaHandler.Retry)
		api.GET("/media/:id/transcript", mediaHandler.Transcript)
		api.GET("/media/:id/download-url", mediaHandler.DownloadURL)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/media", mediaHandler.ListAll)
		}
	}

	// WebSocket status stream (token in query; no Authorization header)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process transcription worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go processor.Run(workerCtx)
	logger.Info("transcription worker started")

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

// newBackend builds the configured transcription backend. Mode is an
// explicit deployment choice; a missing local executable or missing
// cloud credentials fail startup.
func newBackend(cfg *config.Config, logger *zap.Logger) (transcribe.Backend, error) {
	switch cfg.Transcribe.Mode {
	case "whisper":
		return transcribe.NewWhisperBackend(cfg.Whisper, logger)
	case "tencent":
		return transcribe.NewTencentBackend(cfg.TencentASR, logger)
	default:
		return nil, fmt.Errorf("unknown TRANSCRIBE_MODE %q (want whisper or tencent)", cfg.Transcribe.Mode)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
