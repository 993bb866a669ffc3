package entity

// FrameTriple is one position-matched (foreground, background, mask) trio.
type FrameTriple struct {
	Index      int
	Foreground string
	Background string
	Mask       string
}

// FrameIndex is the ordered join of the three frame listings. It is built once
// and handed to every later stage so alignment is never re-derived.
type FrameIndex struct {
	Triples []FrameTriple
}

func (fi *FrameIndex) Len() int {
	if fi == nil {
		return 0
	}
	return len(fi.Triples)
}

// CompositeResult lists composited frames in FrameIndex order.
type CompositeResult struct {
	FramePaths []string
	Resized    int
}

// AudioTrack is an extracted audio stream on disk, already aligned to the
// target video duration.
type AudioTrack struct {
	Path           string
	SourceDuration float64
	Duration       float64
}

type VideoOutput struct {
	Path          string
	FrameCount    int
	FPS           float64
	Duration      float64
	AudioDuration float64
}

// PipelineResult is what a full composite run produced.
type PipelineResult struct {
	Composite *CompositeResult
	Audio     *AudioTrack
	Video     *VideoOutput
}
