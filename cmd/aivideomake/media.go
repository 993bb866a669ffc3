package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/fzzzzzj/aivideomake/internal/infra/ffmpeg"
	"github.com/fzzzzzj/aivideomake/internal/infra/sequence"
	"github.com/spf13/cobra"
)

func requireFFmpeg(cmd *cobra.Command, args []string) error {
	if !ffmpeg.Available() {
		return fmt.Errorf("ffmpeg and ffprobe must be on PATH")
	}
	return nil
}

func newExtractCmd(a *app) *cobra.Command {
	var output string
	var fps float64
	cmd := &cobra.Command{
		Use:     "extract <video>",
		Short:   "Split a video into numbered frames",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireFFmpeg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				base := filepath.Base(args[0])
				output = filepath.Join(filepath.Dir(args[0]), base[:len(base)-len(filepath.Ext(base))]+"_frames")
			}
			if err := os.MkdirAll(output, 0755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			res, err := ffmpeg.NewExtractor(a.cfg.FrameFormat, a.log).ExtractFrames(cmd.Context(), args[0], output, fps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "source fps: %.3f\nduration: %.3fs\nframes written: %d\noutput: %s\n",
				res.SourceFPS, res.VideoDuration, res.FrameCount, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default <video>_frames next to the video)")
	cmd.Flags().Float64Var(&fps, "fps", 0, "frames per second to keep (0 keeps every frame)")
	return cmd
}

func newSubsampleCmd(a *app) *cobra.Command {
	var interval int
	cmd := &cobra.Command{
		Use:   "subsample <source-dir> <target-dir>",
		Short: "Copy every Nth image of a frame directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			copied, err := sequence.Subsample(cmd.Context(), args[0], args[1], interval, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "copied %d frames to %s\n", len(copied), args[1])
			return nil
		},
	}
	cmd.Flags().IntVarP(&interval, "interval", "n", 3, "keep one frame out of every N")
	return cmd
}

func newAssembleCmd(a *app) *cobra.Command {
	var output, audio string
	var fps float64
	cmd := &cobra.Command{
		Use:     "assemble <frames-dir>",
		Short:   "Encode a frame directory into a video, optionally with audio from another file",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireFFmpeg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("fps") {
				fps = a.cfg.DefaultFPS
			}
			if output == "" {
				return fmt.Errorf("%w: --output is required", entity.ErrInvalidConfig)
			}
			names, err := sequence.ListImages(args[0])
			if err != nil {
				return err
			}
			frames := make([]string, len(names))
			for i, n := range names {
				frames[i] = filepath.Join(args[0], n)
			}
			if len(frames) == 0 {
				return fmt.Errorf("%w: no images in %s", entity.ErrEmptySequence, args[0])
			}

			var track *entity.AudioTrack
			if audio != "" {
				workDir, err := os.MkdirTemp(a.cfg.TempDir, "assemble-audio-*")
				if err != nil {
					return fmt.Errorf("create work dir: %w", err)
				}
				defer os.RemoveAll(workDir)
				target := float64(len(frames)) / fps
				track, err = ffmpeg.NewAudioExtractor(a.cfg.AudioBitrate, a.log).
					Extract(cmd.Context(), audio, target, filepath.Join(workDir, "audio.m4a"))
				if err != nil {
					return err
				}
			}

			video, err := ffmpeg.NewAssembler(a.cfg.TempDir, a.log).Assemble(cmd.Context(), frames, fps, track, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "video: %s\nframes: %d\nduration: %.3fs, audio: %.3fs\n",
				video.Path, video.FrameCount, video.Duration, video.AudioDuration)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output video path")
	cmd.Flags().StringVar(&audio, "audio", "", "video or audio file to take the soundtrack from")
	cmd.Flags().Float64Var(&fps, "fps", 0, "frame rate (default DEFAULT_FPS)")
	return cmd
}

func newSwapAudioCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "swap-audio <video> <audio-source> <output>",
		Short:   "Replace a video's soundtrack with the audio of another file",
		Args:    cobra.ExactArgs(3),
		PreRunE: requireFFmpeg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ffmpeg.NewRemuxer(a.log).SwapAudio(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "video: %s\n", args[2])
			return nil
		},
	}
}

func newCompareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "compare <left> <right> <output>",
		Short:   "Render two videos side by side",
		Args:    cobra.ExactArgs(3),
		PreRunE: requireFFmpeg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ffmpeg.NewRemuxer(a.log).Compare(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "video: %s\n", args[2])
			return nil
		},
	}
}
