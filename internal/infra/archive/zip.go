package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// compressed formats are stored as is; deflating them only costs CPU.
var storedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".mp4":  true,
	".m4a":  true,
}

type Archiver struct {
	logger *zap.Logger
}

func NewArchiver(logger *zap.Logger) *Archiver {
	return &Archiver{logger: logger}
}

// CreateZip packs filePaths flat into outputPath. The archive is written next
// to outputPath and renamed once complete.
func (a *Archiver) CreateZip(ctx context.Context, filePaths []string, outputPath string) error {
	seen := make(map[string]string, len(filePaths))
	for _, fp := range filePaths {
		name := filepath.Base(fp)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("duplicate entry %q from %s and %s", name, prev, fp)
		}
		seen[name] = fp
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".zip-*")
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	zipWriter := zip.NewWriter(tmp)
	for _, fp := range filePaths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := addFileToZip(zipWriter, fp); err != nil {
			return fmt.Errorf("add %s to zip: %w", fp, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("chmod zip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("move zip into place: %w", err)
	}
	ok = true

	a.logger.Info("archive created", zap.String("path", outputPath), zap.Int("files", len(filePaths)))
	return nil
}

func addFileToZip(zw *zip.Writer, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.Base(filename)
	header.Method = zip.Deflate
	if storedExtensions[strings.ToLower(filepath.Ext(filename))] {
		header.Method = zip.Store
	}

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
