package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/domain/port"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

type Extractor struct {
	format string
	logger *zap.Logger
}

func NewExtractor(format string, logger *zap.Logger) *Extractor {
	if format == "" {
		format = "png"
	}
	return &Extractor{format: format, logger: logger}
}

// ExtractFrames writes frame_%06d.<format> files into outputDir. With fps > 0
// one frame is kept every round(sourceFPS/fps) frames.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath string, outputDir string, fps float64) (*port.FrameExtractionResult, error) {
	info, err := Probe(videoPath)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("%w: no video stream in %s", entity.ErrInvalidConfig, videoPath)
	}

	e.logger.Info("video info",
		zap.String("path", videoPath),
		zap.Int("frames", info.FrameCount),
		zap.Float64("fps", info.FPS),
		zap.Float64("duration", info.Duration),
	)

	interval := samplingInterval(info.FPS, fps)
	framePattern := filepath.Join(outputDir, fmt.Sprintf("frame_%%06d.%s", e.format))
	stream := ffmpeggo.Input(videoPath)
	if interval > 1 {
		stream = stream.Filter("framestep", ffmpeggo.Args{strconv.Itoa(interval)})
		e.logger.Info("sampling frames", zap.Float64("target_fps", fps), zap.Int("interval", interval))
	}
	out := stream.Output(framePattern, ffmpeggo.KwArgs{
		"vsync":        "vfr",
		"start_number": 0,
	}).OverWriteOutput()

	if err := run(ctx, out, e.logger); err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, fmt.Sprintf("frame_*.%s", e.format)))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from video")
	}
	sort.Strings(frames)

	e.logger.Info("frames extracted",
		zap.Int("count", len(frames)),
		zap.Float64("video_duration", info.Duration),
	)

	return &port.FrameExtractionResult{
		FramePaths:    frames,
		FrameCount:    len(frames),
		SourceFPS:     info.FPS,
		VideoDuration: info.Duration,
	}, nil
}

// samplingInterval mirrors "keep every Nth frame" sampling. A zero target or an
// unknown source rate keeps every frame.
func samplingInterval(sourceFPS, targetFPS float64) int {
	if targetFPS <= 0 || sourceFPS <= 0 {
		return 1
	}
	n := int(math.Round(sourceFPS / targetFPS))
	if n < 1 {
		return 1
	}
	return n
}
