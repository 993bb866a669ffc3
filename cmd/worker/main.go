package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fzzzzzj/aivideomake/internal/domain/port"
	"github.com/fzzzzzj/aivideomake/internal/infra/archive"
	"github.com/fzzzzzj/aivideomake/internal/infra/compositor"
	"github.com/fzzzzzj/aivideomake/internal/infra/config"
	"github.com/fzzzzzj/aivideomake/internal/infra/email"
	"github.com/fzzzzzj/aivideomake/internal/infra/ffmpeg"
	"github.com/fzzzzzj/aivideomake/internal/infra/metrics"
	miniostorage "github.com/fzzzzzj/aivideomake/internal/infra/minio"
	"github.com/fzzzzzj/aivideomake/internal/infra/postgres"
	"github.com/fzzzzzj/aivideomake/internal/infra/rabbitmq"
	"github.com/fzzzzzj/aivideomake/internal/infra/sequence"
	"github.com/fzzzzzj/aivideomake/internal/infra/tracing"
	"github.com/fzzzzzj/aivideomake/internal/usecase"
	"github.com/fzzzzzj/aivideomake/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting aivideomake worker")

	if !ffmpeg.Available() {
		log.Fatal("ffmpeg and ffprobe must be on PATH")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, "aivideomake-worker", cfg.TracingEndpoint())
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	fatalOnErr(postgres.RunMigrations(ctx, cfg.DatabaseURL), "run migrations")

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:        cfg.MinIOEndpoint,
		AccessKey:       cfg.MinIOAccessKey,
		SecretKey:       cfg.MinIOSecretKey,
		UseSSL:          cfg.MinIOUseSSL,
		SourcesBucket:   cfg.MinIOSourcesBucket,
		ArtifactsBucket: cfg.MinIOArtifactsBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusRoutingKey)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Pipeline
	pipeline := usecase.NewCompositePipelineUseCase(
		sequence.NewMatcher(log),
		func(workers int) port.FrameCompositor {
			if workers == 0 {
				workers = cfg.CompositeWorkers
			}
			return compositor.NewCompositor(log, compositor.WithWorkers(workers))
		},
		ffmpeg.NewAudioExtractor(cfg.AudioBitrate, log),
		ffmpeg.NewAssembler(cfg.TempDir, log),
		log,
		usecase.CompositePipelineConfig{TempDir: cfg.TempDir},
	)

	// Use case
	repo := postgres.NewJobRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)
	uc := usecase.NewProcessJobUseCase(
		repo, storage, pipeline, archive.NewArchiver(log),
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessJobConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
			DefaultFPS: cfg.DefaultFPS,
		},
	)

	// Metrics server
	var metricsSrv *http.Server
	if cfg.MetricsPort > 0 {
		metricsSrv = metrics.StartMetricsServer(cfg.MetricsPort, pool.Ping, log)
	}

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:              cfg.RabbitMQURL,
		Queue:            cfg.RabbitMQJobsQueue,
		Exchange:         cfg.RabbitMQExchange,
		DLQ:              cfg.RabbitMQDLQ,
		StatusQueue:      cfg.RabbitMQStatusQueue,
		JobsRoutingKey:   cfg.RabbitMQJobsRoutingKey,
		StatusRoutingKey: cfg.RabbitMQStatusRoutingKey,
		Prefetch:         cfg.RabbitMQPrefetch,
		WorkerCount:      cfg.WorkerCount,
		BaseDelayMs:      cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("aivideomake worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}

	consumer.Close()
	log.Info("aivideomake worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
