package entity

import "github.com/google/uuid"

// CompositeJobMessage is the inbound message from the composite.jobs queue.
// Directories are paths on the worker's shared volume.
type CompositeJobMessage struct {
	JobID             uuid.UUID      `json:"job_id"`
	UserID            string         `json:"user_id"`
	UserEmail         string         `json:"user_email"`
	ReferenceAudioKey string         `json:"reference_audio_key,omitempty"`
	Pipeline          PipelineConfig `json:"pipeline"`
}

// CompositeStatusMessage is the outbound message published to the composite.status queue.
type CompositeStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key,omitempty"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	Duration     float64   `json:"duration_seconds,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
