package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

type AudioExtractor struct {
	bitrate string
	logger  *zap.Logger
}

func NewAudioExtractor(bitrate string, logger *zap.Logger) *AudioExtractor {
	if bitrate == "" {
		bitrate = "192k"
	}
	return &AudioExtractor{bitrate: bitrate, logger: logger}
}

// Extract re-encodes the audio of referencePath to AAC, trimmed to
// targetDuration. The track is never padded: a shorter source stays shorter.
func (a *AudioExtractor) Extract(ctx context.Context, referencePath string, targetDuration float64, outputPath string) (*entity.AudioTrack, error) {
	if _, err := os.Stat(referencePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", entity.ErrPathNotFound, referencePath)
		}
		return nil, fmt.Errorf("stat reference: %w", err)
	}
	if targetDuration <= 0 {
		return nil, fmt.Errorf("%w: target duration must be positive", entity.ErrInvalidConfig)
	}

	info, err := Probe(referencePath)
	if err != nil {
		return nil, err
	}
	if !info.HasAudio {
		return nil, fmt.Errorf("%w: %s", entity.ErrNoAudioStream, referencePath)
	}

	duration := AlignedDuration(info.Duration, targetDuration)
	if duration < targetDuration {
		a.logger.Warn("reference audio shorter than video, not padding",
			zap.Float64("audio_duration", info.Duration),
			zap.Float64("video_duration", targetDuration),
		)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	if err := run(ctx, trimAudio(referencePath, outputPath, duration, a.bitrate), a.logger); err != nil {
		os.Remove(outputPath)
		return nil, encodeFailure("extract audio", err)
	}

	a.logger.Info("audio extracted",
		zap.String("reference", referencePath),
		zap.Float64("source_duration", info.Duration),
		zap.Float64("duration", duration),
	)
	return &entity.AudioTrack{
		Path:           outputPath,
		SourceDuration: info.Duration,
		Duration:       duration,
	}, nil
}

// trimAudio encodes only the first audio stream of referencePath.
func trimAudio(referencePath, outputPath string, duration float64, bitrate string) *ffmpeggo.Stream {
	return ffmpeggo.Input(referencePath).Get("a:0").
		Output(outputPath, ffmpeggo.KwArgs{
			"t":   formatSeconds(duration),
			"c:a": "aac",
			"b:a": bitrate,
		}).OverWriteOutput()
}

// AlignedDuration applies the trim-only policy: the track is cut to target
// when longer and left as is when shorter. An unknown source length (0) is
// treated as long enough.
func AlignedDuration(source, target float64) float64 {
	if source <= 0 || source >= target {
		return target
	}
	return source
}
