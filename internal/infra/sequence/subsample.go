package sequence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"go.uber.org/zap"
)

// Subsample copies every interval-th image of sourceDir (starting with the
// first) into targetDir under the same name and returns the copied paths.
func Subsample(ctx context.Context, sourceDir, targetDir string, interval int, logger *zap.Logger) ([]string, error) {
	if interval < 1 {
		return nil, fmt.Errorf("%w: interval must be at least 1, got %d", entity.ErrInvalidConfig, interval)
	}

	names, err := ListImages(sourceDir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", entity.ErrEmptySequence, sourceDir)
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("create target dir: %w", err)
	}

	logger.Info("subsampling frames",
		zap.Int("found", len(names)),
		zap.Int("interval", interval),
	)

	var copied []string
	for i := 0; i < len(names); i += interval {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		dst := filepath.Join(targetDir, names[i])
		if err := copyFile(filepath.Join(sourceDir, names[i]), dst); err != nil {
			return copied, fmt.Errorf("copy %s: %w", names[i], err)
		}
		copied = append(copied, dst)
	}

	logger.Info("subsample complete", zap.Int("copied", len(copied)), zap.String("target", targetDir))
	return copied, nil
}

func copyFile(src, dst string) error {
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
