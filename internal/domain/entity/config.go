package entity

import (
	"fmt"
	"path/filepath"
	"time"
)

// PipelineConfig is the explicit configuration for one composite run.
type PipelineConfig struct {
	ForegroundDir  string  `json:"foreground_dir"  yaml:"foreground_dir"`
	BackgroundDir  string  `json:"background_dir"  yaml:"background_dir"`
	MaskDir        string  `json:"mask_dir"        yaml:"mask_dir"`
	OutputDir      string  `json:"output_dir"      yaml:"output_dir"`
	ReferenceAudio string  `json:"reference_audio" yaml:"reference_audio"`
	OutputVideo    string  `json:"output_video"    yaml:"output_video"`
	FPS            float64 `json:"fps"             yaml:"fps"`
	Workers        int     `json:"workers"         yaml:"workers"`
	ArchiveFrames  bool    `json:"archive_frames"  yaml:"archive_frames"`
}

// WithDefaults fills the output video name the way the original scripts did:
// a timestamped mp4 inside the output directory.
func (c PipelineConfig) WithDefaults(now time.Time) PipelineConfig {
	if c.OutputVideo == "" && c.OutputDir != "" {
		name := fmt.Sprintf("final_output_video_%s.mp4", now.Format("20060102_150405"))
		c.OutputVideo = filepath.Join(c.OutputDir, name)
	}
	return c
}

func (c PipelineConfig) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
	}
	switch {
	case c.ForegroundDir == "":
		return missing("foreground_dir")
	case c.BackgroundDir == "":
		return missing("background_dir")
	case c.MaskDir == "":
		return missing("mask_dir")
	case c.OutputDir == "":
		return missing("output_dir")
	case c.ReferenceAudio == "":
		return missing("reference_audio")
	case c.OutputVideo == "":
		return missing("output_video")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %v", ErrInvalidConfig, c.FPS)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	for field, dir := range map[string]string{
		"foreground_dir": c.ForegroundDir,
		"background_dir": c.BackgroundDir,
		"mask_dir":       c.MaskDir,
	} {
		if filepath.Clean(c.OutputDir) == filepath.Clean(dir) {
			return fmt.Errorf("%w: output_dir must differ from %s", ErrInvalidConfig, field)
		}
	}
	return nil
}

// TargetDuration is the video length in seconds for n frames.
func (c PipelineConfig) TargetDuration(n int) float64 {
	if c.FPS <= 0 {
		return 0
	}
	return float64(n) / c.FPS
}
