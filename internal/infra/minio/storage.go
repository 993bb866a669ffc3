package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage keeps reference media in the sources bucket and finished videos and
// frame archives in the artifacts bucket.
type Storage struct {
	client          *miniogo.Client
	sourcesBucket   string
	artifactsBucket string
}

type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	SourcesBucket   string
	ArtifactsBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:          client,
		sourcesBucket:   cfg.SourcesBucket,
		artifactsBucket: cfg.ArtifactsBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.sourcesBucket, s.artifactsBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// DownloadReference fetches the reference audio source. A missing object is
// reported as entity.ErrPathNotFound so the job is not retried.
func (s *Storage) DownloadReference(ctx context.Context, objectKey string, destPath string) error {
	err := s.client.FGetObject(ctx, s.sourcesBucket, objectKey, destPath, miniogo.GetObjectOptions{})
	if err == nil {
		return nil
	}
	if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s/%s", entity.ErrPathNotFound, s.sourcesBucket, objectKey)
	}
	return fmt.Errorf("download reference: %w", err)
}

func (s *Storage) UploadVideo(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	return s.put(ctx, objectKey, reader, size, "video/mp4")
}

func (s *Storage) UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	return s.put(ctx, objectKey, reader, size, "application/zip")
}

func (s *Storage) put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.artifactsBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}
