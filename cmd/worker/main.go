// Package main runs the standalone transcription worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/linguaclip/backend/config"
	"github.com/linguaclip/backend/internal/media"
	"github.com/linguaclip/backend/internal/realtime"
	"github.com/linguaclip/backend/internal/transcribe"
	"github.com/linguaclip/backend/internal/worker"
	"github.com/linguaclip/backend/pkg/database"
	"github.com/linguaclip/backend/pkg/queue"
	"github.com/linguaclip/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	backend, err := newBackend(cfg, logger)
	if err != nil {
		logger.Fatal("transcription backend", zap.Error(err))
	}
	logger.Info("transcription backend ready", zap.String("backend", backend.Name()))

	mediaRepo := media.NewRepository(pool)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	transcribeSvc := transcribe.NewService(mediaRepo, backend, pubsub, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewTranscriptionProcessor(transcribeSvc, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

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
