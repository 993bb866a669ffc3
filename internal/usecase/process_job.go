package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/domain/port"
	"github.com/fzzzzzj/aivideomake/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PipelineRunner is the part of CompositePipelineUseCase the worker needs.
type PipelineRunner interface {
	Run(ctx context.Context, cfg entity.PipelineConfig) (*entity.PipelineResult, error)
}

type ProcessJobUseCase struct {
	repo       port.JobRepository
	storage    port.ArtifactStorage
	pipeline   PipelineRunner
	archiver   port.Archiver
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	tempDir    string
	maxRetry   int
	defaultFPS float64
}

type ProcessJobConfig struct {
	TempDir    string
	MaxRetries int
	DefaultFPS float64
}

func NewProcessJobUseCase(
	repo port.JobRepository,
	storage port.ArtifactStorage,
	pipeline PipelineRunner,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessJobConfig,
) *ProcessJobUseCase {
	return &ProcessJobUseCase{
		repo:       repo,
		storage:    storage,
		pipeline:   pipeline,
		archiver:   archiver,
		publisher:  publisher,
		dlq:        dlq,
		notifier:   notifier,
		logger:     logger,
		tempDir:    cfg.TempDir,
		maxRetry:   cfg.MaxRetries,
		defaultFPS: cfg.DefaultFPS,
	}
}

// Execute handles one composite.jobs delivery. A nil return acks the message;
// an *entity.RetryableError asks the consumer to requeue it.
func (uc *ProcessJobUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessJobUseCase.Execute")
	defer span.End()

	var msg entity.CompositeJobMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.foreground_dir", msg.Pipeline.ForegroundDir),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("user_id", msg.UserID))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if errors.Is(err, port.ErrJobNotFound) {
		job = entity.NewJob(msg.UserID, msg.Pipeline.ForegroundDir, uc.fps(msg.Pipeline), uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	} else if err != nil {
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("find job: %w", err)
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, skipping redelivery")
		return nil
	}
	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	return uc.processJob(ctx, job, msg, rawMsg, log)
}

func (uc *ProcessJobUseCase) fps(cfg entity.PipelineConfig) float64 {
	if cfg.FPS > 0 {
		return cfg.FPS
	}
	return uc.defaultFPS
}

func (uc *ProcessJobUseCase) processJob(
	ctx context.Context,
	job *entity.Job,
	msg entity.CompositeJobMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	cfg := msg.Pipeline
	cfg.FPS = uc.fps(cfg)

	if msg.ReferenceAudioKey != "" {
		dlStart := time.Now()
		ctx2, spanDl := tracer.Start(ctx, "download_reference")
		cfg.ReferenceAudio = filepath.Join(workDir, "reference"+path.Ext(msg.ReferenceAudioKey))
		err := uc.storage.DownloadReference(ctx2, msg.ReferenceAudioKey, cfg.ReferenceAudio)
		spanDl.End()
		if err != nil {
			log.Error("failed to download reference audio", zap.Error(err))
			return uc.handleFailure(ctx, job, msg, rawMsg, "download_reference", err, log)
		}
		metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())
	}

	result, err := uc.pipeline.Run(ctx, cfg)
	if err != nil {
		return uc.handleFailure(ctx, job, msg, rawMsg, "pipeline", err, log)
	}

	prefix := fmt.Sprintf("%s/%s", msg.UserID, job.ID.String())

	var archiveKey string
	if cfg.ArchiveFrames {
		zipPath := filepath.Join(workDir, "frames.zip")
		ctx3, spanZip := tracer.Start(ctx, "create_zip")
		err := uc.archiver.CreateZip(ctx3, result.Composite.FramePaths, zipPath)
		spanZip.End()
		if err != nil {
			log.Error("zip creation failed", zap.Error(err))
			return uc.handleFailure(ctx, job, msg, rawMsg, "create_zip", err, log)
		}
		archiveKey = prefix + "/frames.zip"
		if err := uc.upload(ctx, zipPath, archiveKey, uc.storage.UploadArchive); err != nil {
			log.Error("archive upload failed", zap.Error(err))
			return uc.handleFailure(ctx, job, msg, rawMsg, "upload_archive", err, log)
		}
	}

	videoKey := prefix + "/" + filepath.Base(result.Video.Path)
	if err := uc.upload(ctx, result.Video.Path, videoKey, uc.storage.UploadVideo); err != nil {
		log.Error("video upload failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, "upload_video", err, log)
	}

	job.MarkCompleted(videoKey, archiveKey, result.Video.FrameCount, result.Video.Duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", result.Video.FrameCount),
		zap.Float64("duration_secs", result.Video.Duration),
		zap.String("video_key", videoKey),
		zap.String("archive_key", archiveKey),
	)
	return nil
}

type uploadFunc func(ctx context.Context, objectKey string, reader io.Reader, size int64) error

func (uc *ProcessJobUseCase) upload(ctx context.Context, localPath, key string, put uploadFunc) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "upload")
	defer span.End()
	span.SetAttributes(attribute.String("object.key", key))

	start := time.Now()
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	if err := put(ctx, key, f, stat.Size()); err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	return nil
}

// handleFailure sends taxonomy errors straight to the DLQ and retries the rest.
func (uc *ProcessJobUseCase) handleFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.CompositeJobMessage,
	rawMsg []byte,
	step string,
	err error,
	log *zap.Logger,
) error {
	errMsg := step + ": " + err.Error()
	if entity.IsPermanent(err) {
		log.Warn("permanent failure, not retrying", zap.String("step", step), zap.Error(err))
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return &entity.RetryableError{Attempt: job.Attempt, Err: fmt.Errorf("%s (attempt %d/%d)", errMsg, job.Attempt, job.MaxAttempts)}
}

func (uc *ProcessJobUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.CompositeJobMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.PipelinesTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.Pipeline.ForegroundDir, errMsg)
	}

	return nil
}

func (uc *ProcessJobUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.CompositeStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		ArchiveKey:   job.ArchiveKey,
		FrameCount:   job.FrameCount,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
