package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"fileforge/internal/blob"
	"fileforge/internal/config"
	"fileforge/internal/engine"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
	"fileforge/internal/sweeper"
	"fileforge/internal/transform"
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

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}
	log.Infof("Blob storage ready (backend: %s)", blobs.Backend())

	files := storage.NewFiles(db)
	jobs := storage.NewJobs(db)

	eng := engine.New(log, jobs, files, blobs, transform.CLI{}, engine.Config{
		ScratchDir:       cfg.ScratchDir,
		FileTTL:          cfg.FileTTL,
		ProcessingLease:  cfg.ProcessingLease,
		TransformTimeout: cfg.TransformTimeout,
	})

	// All consumers join one group, so partitions spread across them
	// and across worker replicas.
	consumers := make([]queue.Consumer, 0, cfg.WorkerConcurrency)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		consumers = append(consumers, queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, log))
	}
	pool := engine.NewPool(log, eng, consumers)
	pool.Run(ctx)

	// The sweeper needs a producer to re-enqueue stray pending jobs.
	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	sweep := sweeper.New(log, files, jobs, blobs, producer, sweeper.Config{
		Interval:   cfg.SweepInterval,
		RequeueAge: cfg.PendingRequeueAge,
	})
	go sweep.Run(ctx)

	log.Infof("FileForge worker running with %d consumers", cfg.WorkerConcurrency)
	<-ctx.Done()
	log.Info("Shutting down FileForge worker...")

	closeErr := multierr.Combine(
		pool.Stop(),
		producer.Close(),
	)
	if closeErr != nil {
		log.Errorf("Shutdown finished with errors: %v", closeErr)
	}
	log.Info("FileForge worker shut down gracefully")
}

// openDatabase connects and pings with a retry budget, so the binary
// survives starting before PostgreSQL does. Migrations are the API
// server's job; the worker only assumes the schema is in place.
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
