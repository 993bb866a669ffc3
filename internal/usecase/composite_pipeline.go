package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/domain/port"
	"github.com/fzzzzzj/aivideomake/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CompositorFactory builds a compositor bounded to workers goroutines
// (0 means the compositor's default).
type CompositorFactory func(workers int) port.FrameCompositor

type CompositePipelineUseCase struct {
	matcher     port.SequenceMatcher
	compositors CompositorFactory
	audio       port.AudioExtractor
	assembler   port.SequenceAssembler
	logger      *zap.Logger
	tempDir     string
	now         func() time.Time
}

type CompositePipelineConfig struct {
	// TempDir holds the extracted audio track while the video is encoded.
	TempDir string
}

func NewCompositePipelineUseCase(
	matcher port.SequenceMatcher,
	compositors CompositorFactory,
	audio port.AudioExtractor,
	assembler port.SequenceAssembler,
	logger *zap.Logger,
	cfg CompositePipelineConfig,
) *CompositePipelineUseCase {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &CompositePipelineUseCase{
		matcher:     matcher,
		compositors: compositors,
		audio:       audio,
		assembler:   assembler,
		logger:      logger,
		tempDir:     tempDir,
		now:         time.Now,
	}
}

// Run matches, composites, extracts the aligned audio and encodes the final
// video. The first failing stage aborts the run; composited frames already
// written stay in cfg.OutputDir.
func (uc *CompositePipelineUseCase) Run(ctx context.Context, cfg entity.PipelineConfig) (*entity.PipelineResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "CompositePipelineUseCase.Run")
	defer span.End()

	start := time.Now()
	cfg = cfg.WithDefaults(uc.now())
	span.SetAttributes(
		attribute.String("pipeline.foreground_dir", cfg.ForegroundDir),
		attribute.String("pipeline.output_video", cfg.OutputVideo),
		attribute.Float64("pipeline.fps", cfg.FPS),
	)

	result, err := uc.run(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.PipelinesTotal.WithLabelValues("failed").Inc()
		uc.logger.Error("composite pipeline failed", zap.Error(err))
		return nil, err
	}

	metrics.PipelinesTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	uc.logger.Info("composite pipeline finished",
		zap.String("video", result.Video.Path),
		zap.Int("frames", result.Video.FrameCount),
		zap.Float64("duration", result.Video.Duration),
		zap.Float64("audio_duration", result.Video.AudioDuration),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (uc *CompositePipelineUseCase) run(ctx context.Context, cfg entity.PipelineConfig) (*entity.PipelineResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ReferenceAudio); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: reference audio %s", entity.ErrPathNotFound, cfg.ReferenceAudio)
		}
		return nil, fmt.Errorf("stat reference audio: %w", err)
	}

	index, err := stage(ctx, "match", func(ctx context.Context) (*entity.FrameIndex, error) {
		return uc.matcher.Match(ctx, cfg.ForegroundDir, cfg.BackgroundDir, cfg.MaskDir)
	})
	if err != nil {
		return nil, err
	}
	if index.Len() == 0 {
		return nil, fmt.Errorf("%w: no foreground frames in %s", entity.ErrEmptySequence, cfg.ForegroundDir)
	}
	uc.logger.Info("frame sequences matched", zap.Int("frames", index.Len()))

	composite, err := stage(ctx, "composite", func(ctx context.Context) (*entity.CompositeResult, error) {
		return uc.compositors(cfg.Workers).Composite(ctx, index, cfg.OutputDir)
	})
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(uc.tempDir, "pipeline-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	target := cfg.TargetDuration(len(composite.FramePaths))
	audio, err := stage(ctx, "audio", func(ctx context.Context) (*entity.AudioTrack, error) {
		return uc.audio.Extract(ctx, cfg.ReferenceAudio, target, filepath.Join(workDir, "audio.m4a"))
	})
	if err != nil {
		return nil, err
	}

	video, err := stage(ctx, "assemble", func(ctx context.Context) (*entity.VideoOutput, error) {
		return uc.assembler.Assemble(ctx, composite.FramePaths, cfg.FPS, audio, cfg.OutputVideo)
	})
	if err != nil {
		return nil, err
	}

	return &entity.PipelineResult{Composite: composite, Audio: audio, Video: video}, nil
}

// stage runs fn inside a span and records its duration. Errors are prefixed
// with the stage name and still match the entity sentinels.
func stage[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, name)
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero T
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
