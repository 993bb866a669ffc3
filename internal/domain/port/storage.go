package port

import (
	"context"
	"io"
)

type ArtifactStorage interface {
	DownloadReference(ctx context.Context, objectKey string, destPath string) error
	UploadVideo(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
