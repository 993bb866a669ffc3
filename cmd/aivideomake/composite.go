package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/domain/port"
	"github.com/fzzzzzj/aivideomake/internal/infra/compositor"
	"github.com/fzzzzzj/aivideomake/internal/infra/config"
	"github.com/fzzzzzj/aivideomake/internal/infra/ffmpeg"
	"github.com/fzzzzzj/aivideomake/internal/infra/sequence"
	"github.com/fzzzzzj/aivideomake/internal/infra/tracing"
	"github.com/fzzzzzj/aivideomake/internal/usecase"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type compositeFlags struct {
	job        string
	foreground string
	background string
	mask       string
	output     string
	audio      string
	video      string
	fps        float64
	workers    int
	noProgress bool
}

func newCompositeCmd(a *app) *cobra.Command {
	f := &compositeFlags{}
	cmd := &cobra.Command{
		Use:   "composite",
		Short: "Blend foreground over background through masks and encode the result with reference audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !ffmpeg.Available() {
				return fmt.Errorf("ffmpeg and ffprobe must be on PATH")
			}
			base := entity.PipelineConfig{FPS: a.cfg.DefaultFPS, Workers: a.cfg.CompositeWorkers}
			pc, err := resolvePipelineConfig(cmd.Flags(), f, base)
			if err != nil {
				return err
			}
			return runComposite(cmd, a, pc, !f.noProgress)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.job, "job", "", "YAML job file; flags given explicitly override it")
	fl.StringVar(&f.foreground, "fg", "", "foreground frames directory")
	fl.StringVar(&f.background, "bg", "", "background frames directory")
	fl.StringVar(&f.mask, "mask", "", "mask frames directory")
	fl.StringVar(&f.output, "out", "", "directory for composited frames")
	fl.StringVar(&f.audio, "audio", "", "reference video or audio file")
	fl.StringVar(&f.video, "video", "", "output video (default final_output_video_<timestamp>.mp4 in --out)")
	fl.Float64Var(&f.fps, "fps", 0, "output frame rate (default DEFAULT_FPS)")
	fl.IntVar(&f.workers, "workers", 0, "parallel frames (default one per CPU)")
	fl.BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

// resolvePipelineConfig layers env defaults, then the job file, then any
// flag set on the command line.
func resolvePipelineConfig(fs *pflag.FlagSet, f *compositeFlags, base entity.PipelineConfig) (entity.PipelineConfig, error) {
	pc := base
	if f.job != "" {
		var err error
		if pc, err = config.LoadJobFile(f.job, base); err != nil {
			return pc, err
		}
	}
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("fg", func() { pc.ForegroundDir = f.foreground })
	set("bg", func() { pc.BackgroundDir = f.background })
	set("mask", func() { pc.MaskDir = f.mask })
	set("out", func() { pc.OutputDir = f.output })
	set("audio", func() { pc.ReferenceAudio = f.audio })
	set("video", func() { pc.OutputVideo = f.video })
	set("fps", func() { pc.FPS = f.fps })
	set("workers", func() { pc.Workers = f.workers })
	return pc, nil
}

func runComposite(cmd *cobra.Command, a *app, pc entity.PipelineConfig, showProgress bool) error {
	ctx := cmd.Context()
	tp, err := tracing.InitTracer(ctx, "aivideomake-cli", a.cfg.TracingEndpoint())
	if err != nil {
		a.log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	factory := func(workers int) port.FrameCompositor {
		opts := []compositor.Option{compositor.WithWorkers(workers)}
		if showProgress {
			opts = append(opts, compositor.WithProgress(func(_, total int) {
				mu.Lock()
				defer mu.Unlock()
				if bar == nil {
					bar = newFrameBar(total)
				}
				bar.Add(1)
			}))
		}
		return compositor.NewCompositor(a.log, opts...)
	}

	uc := usecase.NewCompositePipelineUseCase(
		sequence.NewMatcher(a.log),
		factory,
		ffmpeg.NewAudioExtractor(a.cfg.AudioBitrate, a.log),
		ffmpeg.NewAssembler(a.cfg.TempDir, a.log),
		a.log,
		usecase.CompositePipelineConfig{TempDir: a.cfg.TempDir},
	)

	start := time.Now()
	res, err := uc.Run(ctx, pc)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "video: %s\nframes: %d (resized inputs: %d)\nduration: %.3fs, audio: %.3fs\nelapsed: %s\n",
		res.Video.Path, res.Video.FrameCount, res.Composite.Resized,
		res.Video.Duration, res.Video.AudioDuration, time.Since(start).Round(time.Millisecond))
	return nil
}

// newFrameBar is created on the first completed frame, once the total is known.
func newFrameBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Compositing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)
}
