package port

import (
	"context"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
)

type SequenceMatcher interface {
	Match(ctx context.Context, foregroundDir, backgroundDir, maskDir string) (*entity.FrameIndex, error)
}

type FrameCompositor interface {
	Composite(ctx context.Context, index *entity.FrameIndex, outputDir string) (*entity.CompositeResult, error)
}

// AudioExtractor pulls the audio stream out of a reference container and trims
// it to targetDuration seconds.
type AudioExtractor interface {
	Extract(ctx context.Context, referencePath string, targetDuration float64, outputPath string) (*entity.AudioTrack, error)
}

// SequenceAssembler encodes frames at fps into outputPath. audio may be nil.
type SequenceAssembler interface {
	Assemble(ctx context.Context, frames []string, fps float64, audio *entity.AudioTrack, outputPath string) (*entity.VideoOutput, error)
}
