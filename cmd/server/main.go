package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"fileforge/internal/auth"
	"fileforge/internal/blob"
	"fileforge/internal/config"
	"fileforge/internal/handlers"
	"fileforge/internal/queue"
	"fileforge/internal/services"
	"fileforge/internal/storage"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, log, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}
	log.Infof("Blob storage ready (backend: %s)", blobs.Backend())

	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The limiter already tolerates Redis outages at request time,
		// so a missing Redis only costs us rate limiting.
		log.Warnf("Redis unreachable, rate limiting disabled: %v", err)
		rdb = nil
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	users := storage.NewUsers(db)
	files := storage.NewFiles(db)
	jobs := storage.NewJobs(db)

	h := handlers.New(log,
		services.NewAuth(log, users, tokens),
		services.NewUsers(log, users, jobs, files),
		services.NewFiles(log, files, blobs, cfg.MaxUploadSize, cfg.FileTTL),
		services.NewJobs(log, jobs, files, producer, cfg.FileTTL),
		db)

	app := fiber.New(fiber.Config{
		AppName:      "FileForge API",
		BodyLimit:    int(cfg.MaxUploadSize),
		ErrorHandler: handlers.ErrorHandler,
	})
	handlers.RegisterRoutes(app, h, tokens, rdb, cfg.RateLimitPerMinute)

	go func() {
		log.Infof("Starting FileForge API on %s", cfg.ServerAddress)
		if err := app.Listen(cfg.ServerAddress); err != nil {
			log.Errorf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down FileForge API...")

	closeErr := multierr.Combine(
		app.ShutdownWithTimeout(10*time.Second),
		producer.Close(),
	)
	if rdb != nil {
		closeErr = multierr.Append(closeErr, rdb.Close())
	}
	if closeErr != nil {
		log.Errorf("Shutdown finished with errors: %v", closeErr)
	}
	log.Info("FileForge API shut down gracefully")
}

// openDatabase connects and pings with a retry budget, so the binary
// survives starting before PostgreSQL does.
func openDatabase(ctx context.Context, log *logrus.Logger, dsn string) (*sql.DB, error) {
	db, err := storage.Open(dsn)
	if err != nil {
		return nil, err
	}

	b := retry.WithMaxDuration(30*time.Second, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			log.Warnf("PostgreSQL not ready, retrying: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		return blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "local":
		return blob.NewLocalStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
