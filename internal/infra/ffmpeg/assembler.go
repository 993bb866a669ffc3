package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// Codec policy for every assembled video.
const (
	videoCodec   = "libx264"
	pixelFormat  = "yuv420p"
	audioCodec   = "aac"
	audioBitrate = "192k"
	// libx264 with yuv420p needs even dimensions.
	evenPad = "pad=ceil(iw/2)*2:ceil(ih/2)*2"
)

type Assembler struct {
	tempDir string
	logger  *zap.Logger
}

func NewAssembler(tempDir string, logger *zap.Logger) *Assembler {
	return &Assembler{tempDir: tempDir, logger: logger}
}

// Assemble encodes frames so that frame k shows image k for 1/fps seconds and
// muxes audio when given. The file appears at outputPath only on success.
func (a *Assembler) Assemble(ctx context.Context, frames []string, fps float64, audio *entity.AudioTrack, outputPath string) (*entity.VideoOutput, error) {
	if len(frames) == 0 {
		return nil, entity.ErrEmptySequence
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: fps must be positive, got %v", entity.ErrInvalidConfig, fps)
	}
	if a.tempDir != "" {
		if err := os.MkdirAll(a.tempDir, 0755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("create video dir: %w", err)
	}

	stageDir, err := os.MkdirTemp(a.tempDir, "assemble-*")
	if err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}
	defer os.RemoveAll(stageDir)

	ext, err := a.stageFrames(ctx, frames, stageDir)
	if err != nil {
		return nil, err
	}

	duration := float64(len(frames)) / fps
	rate := strconv.FormatFloat(fps, 'f', -1, 64)

	streams := []*ffmpeggo.Stream{
		ffmpeggo.Input(filepath.Join(stageDir, "%08d"+ext), ffmpeggo.KwArgs{
			"framerate":    rate,
			"start_number": 0,
		}),
	}
	kwargs := ffmpeggo.KwArgs{
		"c:v":      videoCodec,
		"pix_fmt":  pixelFormat,
		"vf":       evenPad,
		"r":        rate,
		"t":        formatSeconds(duration),
		"movflags": "+faststart",
	}
	audioDuration := 0.0
	if audio != nil {
		streams = append(streams, ffmpeggo.Input(audio.Path).Get("a:0"))
		kwargs["c:a"] = audioCodec
		kwargs["b:a"] = audioBitrate
		audioDuration = audio.Duration
	}

	partial := partialPath(outputPath)
	out := ffmpeggo.Output(streams, partial, kwargs).OverWriteOutput()

	a.logger.Info("encoding video",
		zap.Int("frames", len(frames)),
		zap.Float64("fps", fps),
		zap.Float64("duration", duration),
		zap.Bool("audio", audio != nil),
	)
	if err := run(ctx, out, a.logger); err != nil {
		os.Remove(partial)
		return nil, encodeFailure("encode video", err)
	}
	if err := os.Rename(partial, outputPath); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("%w: move video into place: %w", entity.ErrEncode, err)
	}

	a.logger.Info("video saved", zap.String("path", outputPath))
	return &entity.VideoOutput{
		Path:          outputPath,
		FrameCount:    len(frames),
		FPS:           fps,
		Duration:      duration,
		AudioDuration: audioDuration,
	}, nil
}

// stageFrames lays frames out as 00000000<ext>, 00000001<ext>, ... in list
// order. Frames already matching the first frame's format and size are linked;
// the rest are re-encoded to PNG at the first frame's size.
func (a *Assembler) stageFrames(ctx context.Context, frames []string, stageDir string) (string, error) {
	type meta struct {
		ext  string
		size image.Point
	}
	metas := make([]meta, len(frames))
	uniform := true
	for i, f := range frames {
		size, err := imageSize(f)
		if err != nil {
			return "", &entity.FrameError{Index: i, Path: f, Err: err}
		}
		metas[i] = meta{ext: strings.ToLower(filepath.Ext(f)), size: size}
		if metas[i] != metas[0] {
			uniform = false
		}
	}

	target := metas[0].size
	ext := metas[0].ext
	if !uniform {
		ext = ".png"
		a.logger.Info("normalizing frames before encoding",
			zap.Int("width", target.X),
			zap.Int("height", target.Y),
		)
	}

	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		dst := filepath.Join(stageDir, fmt.Sprintf("%08d%s", i, ext))
		if metas[i].ext == ext && metas[i].size == target {
			if err := linkOrCopy(f, dst); err != nil {
				return "", &entity.FrameError{Index: i, Path: f, Err: err}
			}
			continue
		}
		img, err := imaging.Open(f)
		if err != nil {
			return "", &entity.FrameError{Index: i, Path: f, Err: fmt.Errorf("decode: %w", err)}
		}
		if metas[i].size != target {
			img = imaging.Resize(img, target.X, target.Y, imaging.Lanczos)
			a.logger.Info("frame resized", zap.String("file", filepath.Base(f)))
		}
		if err := imaging.Save(img, dst); err != nil {
			return "", &entity.FrameError{Index: i, Path: f, Err: fmt.Errorf("encode: %w", err)}
		}
	}
	return ext, nil
}

func imageSize(path string) (image.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return image.Point{}, entity.ErrPathNotFound
		}
		return image.Point{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Point{}, fmt.Errorf("read image header: %w", err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func partialPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".partial" + ext
}
