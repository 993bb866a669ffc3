package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/domain/port"
	"github.com/google/uuid"
)

type fakeRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.Job
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]entity.Job{}}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return port.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	return &job, nil
}

type fakeStorage struct {
	references map[string]string
	videos     map[string][]byte
	archives   map[string][]byte
	uploadErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		references: map[string]string{},
		videos:     map[string][]byte{},
		archives:   map[string][]byte{},
	}
}

func (s *fakeStorage) DownloadReference(_ context.Context, key, dest string) error {
	body, ok := s.references[key]
	if !ok {
		return entity.ErrPathNotFound
	}
	return os.WriteFile(dest, []byte(body), 0644)
}

func (s *fakeStorage) UploadVideo(_ context.Context, key string, r io.Reader, _ int64) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	b, err := io.ReadAll(r)
	s.videos[key] = b
	return err
}

func (s *fakeStorage) UploadArchive(_ context.Context, key string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	s.archives[key] = b
	return err
}

// fakeRunner writes a tiny output video so uploads have something to read.
type fakeRunner struct {
	err   error
	calls []entity.PipelineConfig
}

func (f *fakeRunner) Run(_ context.Context, cfg entity.PipelineConfig) (*entity.PipelineResult, error) {
	f.calls = append(f.calls, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, err
	}
	out := cfg.OutputDir + "/result.mp4"
	if err := os.WriteFile(out, []byte("mp4"), 0644); err != nil {
		return nil, err
	}
	return &entity.PipelineResult{
		Composite: &entity.CompositeResult{FramePaths: []string{cfg.OutputDir + "/a.png"}},
		Audio:     &entity.AudioTrack{Duration: 3},
		Video:     &entity.VideoOutput{Path: out, FrameCount: 90, FPS: cfg.FPS, Duration: 3, AudioDuration: 3},
	}, nil
}

type fakeArchiver struct {
	files []string
}

func (a *fakeArchiver) CreateZip(_ context.Context, files []string, out string) error {
	a.files = files
	return os.WriteFile(out, []byte("zip"), 0644)
}

type fakeStatus struct {
	msgs [][]byte
}

func (p *fakeStatus) PublishStatus(_ context.Context, msg []byte) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeDLQ struct {
	bodies  [][]byte
	reasons []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	d.bodies = append(d.bodies, msg)
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	sent []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, email, jobID, _, _ string) error {
	n.sent = append(n.sent, email+" "+jobID)
	return nil
}

var errBrokerDown = errors.New("connection reset by peer")
