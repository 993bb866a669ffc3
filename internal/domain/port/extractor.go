package port

import "context"

type FrameExtractionResult struct {
	FramePaths    []string
	FrameCount    int
	SourceFPS     float64
	VideoDuration float64
}

// FrameExtractor splits a video into numbered frames. fps == 0 keeps every frame.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath string, outputDir string, fps float64) (*FrameExtractionResult, error)
}
