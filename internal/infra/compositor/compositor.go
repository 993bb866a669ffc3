package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/infra/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Compositor struct {
	workers  int
	logger   *zap.Logger
	progress func(done, total int)
}

type Option func(*Compositor)

// WithWorkers bounds how many frames are processed at once. n <= 0 means one
// worker per CPU.
func WithWorkers(n int) Option {
	return func(c *Compositor) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithProgress registers a callback invoked after each frame is written with
// the number of frames done so far. It may be called from several goroutines.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Compositor) { c.progress = fn }
}

func NewCompositor(logger *zap.Logger, opts ...Option) *Compositor {
	c := &Compositor{workers: runtime.NumCPU(), logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Composite blends every triple of index into outputDir. Output i carries the
// basename of foreground i. The first failing frame cancels the pass.
func (c *Compositor) Composite(ctx context.Context, index *entity.FrameIndex, outputDir string) (*entity.CompositeResult, error) {
	n := index.Len()
	if n == 0 {
		return &entity.CompositeResult{}, nil
	}
	first := index.Triples[0]
	for input, path := range map[string]string{
		"foreground": first.Foreground,
		"background": first.Background,
		"mask":       first.Mask,
	} {
		if filepath.Clean(outputDir) == filepath.Dir(path) {
			return nil, fmt.Errorf("%w: output dir %s would overwrite %s frames", entity.ErrInvalidConfig, outputDir, input)
		}
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := make([]string, n)
	var resized, done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, triple := range index.Triples {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := filepath.Join(outputDir, filepath.Base(triple.Foreground))
			adjusted, err := c.compositeFrame(triple, out)
			if err != nil {
				return err
			}
			resized.Add(int64(adjusted))
			metrics.FramesCompositedTotal.Inc()
			paths[i] = out
			c.logger.Debug("frame composited", zap.Int("index", i), zap.String("output", out))
			if c.progress != nil {
				c.progress(int(done.Add(1)), n)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info("compositing complete",
		zap.Int("frames", n),
		zap.Int64("resized", resized.Load()),
		zap.String("output_dir", outputDir),
	)
	return &entity.CompositeResult{FramePaths: paths, Resized: int(resized.Load())}, nil
}

// compositeFrame returns how many inputs had to be resized.
func (c *Compositor) compositeFrame(t entity.FrameTriple, outPath string) (int, error) {
	if _, err := os.Stat(t.Mask); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &entity.FrameError{Index: t.Index, Path: t.Mask, Err: entity.ErrMissingMask}
		}
		return 0, &entity.FrameError{Index: t.Index, Path: t.Mask, Err: err}
	}

	fg, err := loadNRGBA(t.Foreground)
	if err != nil {
		return 0, &entity.FrameError{Index: t.Index, Path: t.Foreground, Err: err}
	}
	bg, err := loadNRGBA(t.Background)
	if err != nil {
		return 0, &entity.FrameError{Index: t.Index, Path: t.Background, Err: err}
	}
	maskImg, err := imaging.Open(t.Mask)
	if err != nil {
		return 0, &entity.FrameError{Index: t.Index, Path: t.Mask, Err: fmt.Errorf("decode: %w", err)}
	}
	mask := Luma(maskImg)

	size := fg.Bounds().Size()
	adjusted := 0
	if bg.Bounds().Size() != size {
		bg = imaging.Resize(bg, size.X, size.Y, imaging.Lanczos)
		adjusted++
		metrics.FramesResizedTotal.WithLabelValues("background").Inc()
		c.logger.Info("background resized",
			zap.String("file", filepath.Base(t.Background)),
			zap.Int("width", size.X),
			zap.Int("height", size.Y),
		)
	}
	if mask.Bounds().Size() != size {
		mask = resizeMask(mask, size.X, size.Y)
		adjusted++
		metrics.FramesResizedTotal.WithLabelValues("mask").Inc()
		c.logger.Info("mask resized",
			zap.String("file", filepath.Base(t.Mask)),
			zap.Int("width", size.X),
			zap.Int("height", size.Y),
		)
	}

	out, err := Blend(fg, bg, mask)
	if err != nil {
		return adjusted, &entity.FrameError{Index: t.Index, Path: t.Foreground, Err: err}
	}
	if err := SaveAtomic(out, outPath); err != nil {
		return adjusted, &entity.FrameError{Index: t.Index, Path: outPath, Err: err}
	}
	return adjusted, nil
}

func loadNRGBA(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return imaging.Clone(img), nil
}

// SaveAtomic encodes img in the format implied by path's extension, writing a
// temp file next to path and renaming it into place.
func SaveAtomic(img image.Image, path string) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("output format: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, format); err != nil {
		tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
