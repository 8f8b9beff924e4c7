package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"faceattend/internal/app"
	"faceattend/internal/archive"
	"faceattend/internal/config"
	"faceattend/internal/logging"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes scan audits and archives their frames to Cloudinary.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var q queue.Queue
	switch cfg.QueueBackend {
	case app.BackendMemory:
		// the api archives in-process with this backend
		logger.Warn("QUEUE_BACKEND=memory: no other process publishes here")
		q = queue.NewInMemory(64)
	default:
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
		}
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultRedisKey)
	}

	if err := archive.New(q, app.NewUploader(cfg, logger), logger).Run(ctx); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}
