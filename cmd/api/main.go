package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"support-chat/config"
	"support-chat/internal/events"
	"support-chat/internal/redis"
	"support-chat/internal/repository"
	"support-chat/internal/server"
	"support-chat/internal/storage"
	"support-chat/pkg/database"
	"support-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backend server.Backend

	if cfg.InMemory() {
		store := repository.NewMemoryStore()
		backend.Conversations = store.Conversations()
		backend.Messages = store.Messages()
		backend.Users = store.Users()
		l.Logger.Warn("running with the in-memory store, data is lost on exit")
	} else {
		pool, err := database.Connect(ctx, cfg.DSN())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		applied, err := database.RunMigrations(ctx, pool)
		if err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		l.Logger.Info("migrations applied", zap.Strings("files", applied))

		backend.Conversations = repository.NewConversationRepository(pool)
		backend.Messages = repository.NewMessageRepository(pool)
		backend.Users = repository.NewUserRepository(pool)
		backend.Health = func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }
	}

	if cfg.BusBackend == "memory" {
		backend.Bus = events.NewMemoryBus(nil)
		l.Logger.Warn("running with the in-process event bus, realtime is single node")
	} else {
		rdb, err := redis.Connect(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()

		backend.Bus = events.NewRedisBus(rdb, nil, l)
		backend.Labels = redis.NewLabelCache(rdb, redis.CacheConfig{LabelTTL: cfg.LabelCacheTTL})
		limits := redis.DefaultRateLimitConfig()
		if cfg.MessageRateLimit > 0 {
			limits.MessageLimit = cfg.MessageRateLimit
		}
		backend.Limiter = redis.NewRateLimiter(rdb, limits)
	}

	if cfg.ArchiveEnabled() {
		archive, err := storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			log.Fatalf("Failed to configure transcript archive: %v", err)
		}
		backend.Archiver = archive
		l.Logger.Info("transcript archive enabled", zap.String("bucket", cfg.S3Bucket))
	}

	app := server.NewApp(cfg, l, backend)
	go app.Run(ctx)

	if err := app.Server.Start(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
}
