package sequence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"go.uber.org/zap"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
}

// IsImage reports whether name carries a whitelisted image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ListImages returns the whitelisted image file names in dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", entity.ErrPathNotFound, dir)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", entity.ErrPathNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !IsImage(e.Name()) || !isRegularFile(dir, e) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// isRegularFile follows symlinks; dangling links are skipped.
func isRegularFile(dir string, e os.DirEntry) bool {
	if e.Type()&os.ModeSymlink == 0 {
		return e.Type().IsRegular()
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

type Matcher struct {
	logger *zap.Logger
}

func NewMatcher(logger *zap.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Match pairs the three listings by sort position. Only directory listings are
// read here; no image is opened.
func (m *Matcher) Match(ctx context.Context, foregroundDir, backgroundDir, maskDir string) (*entity.FrameIndex, error) {
	fg, err := ListImages(foregroundDir)
	if err != nil {
		return nil, fmt.Errorf("list foreground: %w", err)
	}
	bg, err := ListImages(backgroundDir)
	if err != nil {
		return nil, fmt.Errorf("list background: %w", err)
	}
	masks, err := ListImages(maskDir)
	if err != nil {
		return nil, fmt.Errorf("list masks: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(fg) != len(bg) {
		return nil, fmt.Errorf("%w: foreground %d vs background %d", entity.ErrCountMismatch, len(fg), len(bg))
	}
	if len(masks) < len(fg) {
		return nil, fmt.Errorf("%w: need at least %d, found %d in %s", entity.ErrInsufficientMask, len(fg), len(masks), maskDir)
	}
	if len(masks) > len(fg) {
		m.logger.Warn("extra mask frames ignored",
			zap.Int("frames", len(fg)),
			zap.Int("masks", len(masks)),
		)
	}

	triples := make([]entity.FrameTriple, len(fg))
	for i := range fg {
		triples[i] = entity.FrameTriple{
			Index:      i,
			Foreground: filepath.Join(foregroundDir, fg[i]),
			Background: filepath.Join(backgroundDir, bg[i]),
			Mask:       filepath.Join(maskDir, masks[i]),
		}
	}

	m.logger.Info("frame sequences matched", zap.Int("frames", len(triples)))
	return &entity.FrameIndex{Triples: triples}, nil
}
