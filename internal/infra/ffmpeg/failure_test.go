package ffmpeg

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFFmpeg puts a shell script named ffmpeg first on PATH.
func fakeFFmpeg(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	bin := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bin, "ffmpeg"), []byte("#!/bin/sh\n"+script+"\n"), 0755))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestAssemblerCodecFailureLeavesNoOutput(t *testing.T) {
	// Writes the .mp4 output it was given, then fails like a missing encoder.
	fakeFFmpeg(t, `for a in "$@"; do case "$a" in *.mp4) out="$a";; esac; done
echo partial > "$out"
echo "Unknown encoder 'libx264'" >&2
exit 1`)

	frames := writeFrames(t, t.TempDir(), 2, image.Pt(8, 8))
	out := filepath.Join(t.TempDir(), "final.mp4")

	_, err := NewAssembler(t.TempDir(), zap.NewNop()).
		Assemble(context.Background(), frames, 30, nil, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrEncode)
	assert.ErrorContains(t, err, "Unknown encoder")
	assert.True(t, entity.IsPermanent(err))

	var exitErr interface{ ExitCode() int }
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode())

	assert.NoFileExists(t, partialPath(out))
	assert.NoFileExists(t, out)
}

func TestAssemblerCancelledIsNotPermanent(t *testing.T) {
	fakeFFmpeg(t, "exec sleep 30")

	frames := writeFrames(t, t.TempDir(), 2, image.Pt(8, 8))
	out := filepath.Join(t.TempDir(), "final.mp4")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewAssembler(t.TempDir(), zap.NewNop()).Assemble(ctx, frames, 30, nil, out)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, entity.ErrEncode)
	assert.False(t, entity.IsPermanent(err))
	assert.NoFileExists(t, partialPath(out))
	assert.NoFileExists(t, out)
}

func TestEncodeFailure(t *testing.T) {
	cause := errors.New("exit status 1")
	err := encodeFailure("encode video", cause)
	assert.ErrorIs(t, err, entity.ErrEncode)
	assert.ErrorIs(t, err, cause)

	err = encodeFailure("extract audio", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, entity.ErrEncode)
}
