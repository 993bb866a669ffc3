package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

const stderrTail = 2048

// run executes a compiled ffmpeg-go graph. The graph only supplies the
// argument list; the process is started with exec.CommandContext so ctx
// cancellation kills it.
func run(ctx context.Context, stream *ffmpeggo.Stream, logger *zap.Logger) error {
	args := append([]string{"-hide_banner", "-nostdin"}, stream.GetArgs()...)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("running ffmpeg", zap.String("args", strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, tail(stderr.String()))
	}
	return nil
}

// encodeFailure tags a failed ffmpeg run as ErrEncode. Cancellation is
// returned unchanged so callers can retry it.
func encodeFailure(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", entity.ErrEncode, step, err)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}

// Available reports whether both ffmpeg and ffprobe are on PATH.
func Available() bool {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	return true
}
