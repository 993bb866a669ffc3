package usecase_test

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/domain/port"
	"github.com/fzzzzzj/aivideomake/internal/infra/archive"
	"github.com/fzzzzzj/aivideomake/internal/infra/compositor"
	"github.com/fzzzzzj/aivideomake/internal/infra/email"
	"github.com/fzzzzzj/aivideomake/internal/infra/ffmpeg"
	miniostorage "github.com/fzzzzzj/aivideomake/internal/infra/minio"
	"github.com/fzzzzzj/aivideomake/internal/infra/postgres"
	"github.com/fzzzzzj/aivideomake/internal/infra/rabbitmq"
	"github.com/fzzzzzj/aivideomake/internal/infra/sequence"
	"github.com/fzzzzzj/aivideomake/internal/usecase"
	"github.com/fzzzzzj/aivideomake/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

const (
	exchange   = "aivideomake"
	jobsQueue  = "composite.jobs"
	statusQ    = "composite.status"
	dlqQueue   = "composite.jobs.dlq"
	sourcesBkt = "sources"
	artifacts  = "artifacts"
)

type stack struct {
	pool        *pgxpool.Pool
	minioClient *miniogo.Client
	rmqConn     *amqp.Connection
}

// startStack brings up postgres, rabbitmq and minio, wires the worker the way
// cmd/worker does and starts consuming.
func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(ctx, pgConnStr))

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:        minioEndpoint,
		AccessKey:       "minioadmin",
		SecretKey:       "minioadmin",
		SourcesBucket:   sourcesBkt,
		ArtifactsBucket: artifacts,
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, exchange)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log, err := logger.New("debug")
	require.NoError(t, err)
	tempDir := t.TempDir()

	pipeline := usecase.NewCompositePipelineUseCase(
		sequence.NewMatcher(log),
		func(workers int) port.FrameCompositor {
			return compositor.NewCompositor(log, compositor.WithWorkers(workers))
		},
		ffmpeg.NewAudioExtractor("", log),
		ffmpeg.NewAssembler(tempDir, log),
		log,
		usecase.CompositePipelineConfig{TempDir: tempDir},
	)
	uc := usecase.NewProcessJobUseCase(
		postgres.NewJobRepository(pool), storage, pipeline, archive.NewArchiver(log),
		rabbitmq.NewStatusPublisher(pub, statusQ), rabbitmq.NewDLQPublisher(pub, dlqQueue),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", zap.NewNop()),
		log,
		usecase.ProcessJobConfig{TempDir: tempDir, MaxRetries: 3, DefaultFPS: 1},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:              rmqURL,
		Queue:            jobsQueue,
		Exchange:         exchange,
		DLQ:              dlqQueue,
		StatusQueue:      statusQ,
		JobsRoutingKey:   jobsQueue,
		StatusRoutingKey: statusQ,
		Prefetch:         1,
		WorkerCount:      1,
		BaseDelayMs:      100,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)
	go consumer.Start(consumerCtx)
	time.Sleep(500 * time.Millisecond)

	return &stack{pool: pool, minioClient: minioClient, rmqConn: rmqConn}
}

func (s *stack) publish(t *testing.T, ctx context.Context, body []byte) {
	t.Helper()
	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.PublishWithContext(ctx, exchange, jobsQueue, false, false,
		amqp.Publishing{ContentType: "application/json", Body: body}))
}

func writeSolid(t *testing.T, path string, c color.Color) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestProcessJobEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !ffmpeg.Available() {
		t.Skip("ffmpeg/ffprobe not found in PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s := startStack(t, ctx)

	// frames on the worker's shared volume
	data := t.TempDir()
	pc := entity.PipelineConfig{
		ForegroundDir: filepath.Join(data, "fg"),
		BackgroundDir: filepath.Join(data, "bg"),
		MaskDir:       filepath.Join(data, "mask"),
		OutputDir:     filepath.Join(data, "out"),
		FPS:           1,
		ArchiveFrames: true,
	}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("%03d.png", i)
		writeSolid(t, filepath.Join(pc.ForegroundDir, name), color.NRGBA{G: uint8(80 * i), B: 200, A: 255})
		writeSolid(t, filepath.Join(pc.BackgroundDir, name), color.NRGBA{R: 255, A: 255})
		writeSolid(t, filepath.Join(pc.MaskDir, name), color.White)
	}

	ref := filepath.Join(data, "ref.mp4")
	out, err := exec.Command("ffmpeg", "-hide_banner", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=5",
		"-f", "lavfi", "-i", "color=c=black:size=16x16:rate=5:duration=5",
		"-c:a", "aac", "-c:v", "libx264", "-pix_fmt", "yuv420p", ref).CombinedOutput()
	require.NoError(t, err, string(out))
	_, err = s.minioClient.FPutObject(ctx, sourcesBkt, "testuser/ref.mp4", ref, miniogo.PutObjectOptions{ContentType: "video/mp4"})
	require.NoError(t, err)

	statusCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	statusMsgs, err := statusCh.Consume(statusQ, "", true, false, false, false, nil)
	require.NoError(t, err)

	jobID := uuid.New()
	body, err := json.Marshal(entity.CompositeJobMessage{
		JobID:             jobID,
		UserID:            "testuser",
		UserEmail:         "test@test.local",
		ReferenceAudioKey: "testuser/ref.mp4",
		Pipeline:          pc,
	})
	require.NoError(t, err)
	s.publish(t, ctx, body)

	var statusMsg entity.CompositeStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &statusMsg))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, statusMsg.JobID)
	require.Equal(t, entity.JobStatusCompleted, statusMsg.Status, statusMsg.ErrorMessage)
	assert.Equal(t, 3, statusMsg.FrameCount)
	assert.Equal(t, 3.0, statusMsg.Duration)

	// video in the artifacts bucket
	videoPath := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, s.minioClient.FGetObject(ctx, artifacts, statusMsg.VideoKey, videoPath, miniogo.GetObjectOptions{}))
	info, err := ffmpeg.Probe(videoPath)
	require.NoError(t, err)
	assert.True(t, info.HasAudio)
	assert.InDelta(t, 3.0, info.Duration, 0.15)

	// composited frames archive
	zipPath := filepath.Join(t.TempDir(), "frames.zip")
	require.NoError(t, s.minioClient.FGetObject(ctx, artifacts, statusMsg.ArchiveKey, zipPath, miniogo.GetObjectOptions{}))
	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	assert.Len(t, zr.File, 3)

	var dbStatus string
	var dbFrameCount int
	err = s.pool.QueryRow(ctx,
		"SELECT status, frame_count FROM composite_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 3, dbFrameCount)
}

func TestProcessJobCountMismatchGoesToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	s := startStack(t, ctx)

	data := t.TempDir()
	pc := entity.PipelineConfig{
		ForegroundDir:  filepath.Join(data, "fg"),
		BackgroundDir:  filepath.Join(data, "bg"),
		MaskDir:        filepath.Join(data, "mask"),
		OutputDir:      filepath.Join(data, "out"),
		ReferenceAudio: filepath.Join(data, "ref.mp4"),
		FPS:            1,
	}
	require.NoError(t, os.WriteFile(pc.ReferenceAudio, []byte("placeholder"), 0644))
	for i := 0; i < 3; i++ {
		writeSolid(t, filepath.Join(pc.ForegroundDir, fmt.Sprintf("%03d.png", i)), color.White)
		writeSolid(t, filepath.Join(pc.MaskDir, fmt.Sprintf("%03d.png", i)), color.White)
	}
	writeSolid(t, filepath.Join(pc.BackgroundDir, "000.png"), color.Black)

	body, err := json.Marshal(entity.CompositeJobMessage{JobID: uuid.New(), UserID: "testuser", Pipeline: pc})
	require.NoError(t, err)
	s.publish(t, ctx, body)

	time.Sleep(2 * time.Second)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get(dlqQueue, true)
	require.NoError(t, err)
	require.True(t, ok, "count mismatch should be dead-lettered without retries")
	assert.JSONEq(t, string(body), string(dlqMsg.Body))
	assert.Contains(t, dlqMsg.Headers["x-dlq-reason"], "foreground 3 vs background 1")
}

func TestProcessJobMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	s := startStack(t, ctx)

	s.publish(t, ctx, []byte(`{invalid json`))
	time.Sleep(2 * time.Second)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get(dlqQueue, true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
}
