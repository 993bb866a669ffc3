package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// Remuxer covers the whole-video helpers: replacing a soundtrack and building
// side-by-side comparison clips.
type Remuxer struct {
	logger *zap.Logger
}

func NewRemuxer(logger *zap.Logger) *Remuxer {
	return &Remuxer{logger: logger}
}

// SwapAudio copies the video stream of videoPath and replaces its audio with
// the audio of audioSource, trimmed to the video length.
func (r *Remuxer) SwapAudio(ctx context.Context, videoPath, audioSource, outputPath string) error {
	video, err := probeExisting(videoPath)
	if err != nil {
		return err
	}
	if !video.HasVideo {
		return fmt.Errorf("%w: no video stream in %s", entity.ErrInvalidConfig, videoPath)
	}
	source, err := probeExisting(audioSource)
	if err != nil {
		return err
	}
	if !source.HasAudio {
		return fmt.Errorf("%w: %s", entity.ErrNoAudioStream, audioSource)
	}

	streams := []*ffmpeggo.Stream{
		ffmpeggo.Input(videoPath).Video(),
		ffmpeggo.Input(audioSource).Get("a:0"),
	}
	kwargs := ffmpeggo.KwArgs{
		"c:v": "copy",
		"c:a": audioCodec,
		"b:a": audioBitrate,
	}
	if video.Duration > 0 {
		kwargs["t"] = formatSeconds(AlignedDuration(source.Duration, video.Duration))
	}
	return r.write(ctx, ffmpeggo.Output(streams, partialPath(outputPath), kwargs), outputPath)
}

// Compare stacks left and right horizontally. right is scaled to left's
// height; audio comes from left when it has any.
func (r *Remuxer) Compare(ctx context.Context, leftPath, rightPath, outputPath string) error {
	left, err := probeExisting(leftPath)
	if err != nil {
		return err
	}
	if _, err := probeExisting(rightPath); err != nil {
		return err
	}
	if !left.HasVideo || left.Height == 0 {
		return fmt.Errorf("%w: no video stream in %s", entity.ErrInvalidConfig, leftPath)
	}

	l := ffmpeggo.Input(leftPath)
	right := ffmpeggo.Input(rightPath).Video().
		Filter("scale", ffmpeggo.Args{}, ffmpeggo.KwArgs{"w": "-2", "h": strconv.Itoa(left.Height)})
	stacked := ffmpeggo.Filter([]*ffmpeggo.Stream{l.Video(), right}, "hstack", ffmpeggo.Args{}).
		Filter("pad", ffmpeggo.Args{}, ffmpeggo.KwArgs{"w": "ceil(iw/2)*2", "h": "ceil(ih/2)*2"})

	streams := []*ffmpeggo.Stream{stacked}
	kwargs := ffmpeggo.KwArgs{
		"c:v":     videoCodec,
		"pix_fmt": pixelFormat,
	}
	if left.HasAudio {
		streams = append(streams, l.Get("a:0"))
		kwargs["c:a"] = audioCodec
		kwargs["b:a"] = audioBitrate
	}
	return r.write(ctx, ffmpeggo.Output(streams, partialPath(outputPath), kwargs), outputPath)
}

func (r *Remuxer) write(ctx context.Context, out *ffmpeggo.Stream, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	partial := partialPath(outputPath)
	if err := run(ctx, out.OverWriteOutput(), r.logger); err != nil {
		os.Remove(partial)
		return encodeFailure("encode video", err)
	}
	if err := os.Rename(partial, outputPath); err != nil {
		os.Remove(partial)
		return fmt.Errorf("%w: move video into place: %w", entity.ErrEncode, err)
	}
	r.logger.Info("video saved", zap.String("path", outputPath))
	return nil
}

func probeExisting(path string) (*MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", entity.ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return Probe(path)
}
