package sequence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// touch writes placeholder files. Their content is not a valid image, which
// proves the matcher never decodes anything.
func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("not an image"), 0644))
	}
}

func TestListImagesFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.PNG", "a.jpg", "c.tiff", "notes.txt", "d.JPEG", "e.webp")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0755))

	names, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.PNG", "c.tiff", "d.JPEG"}, names)
}

func TestListImagesMissingDir(t *testing.T) {
	_, err := ListImages(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, entity.ErrPathNotFound)
}

func TestListImagesRejectsFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.png")
	_, err := ListImages(filepath.Join(dir, "a.png"))
	assert.ErrorIs(t, err, entity.ErrPathNotFound)
}

// symlinkAll links every file of src into dst under the same name.
func symlinkAll(t *testing.T, src, dst string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dst, 0755))
	entries, err := os.ReadDir(src)
	require.NoError(t, err)
	for _, e := range entries {
		if err := os.Symlink(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			t.Skipf("symlinks not supported: %v", err)
		}
	}
}

func TestListImagesFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	src, linked := filepath.Join(root, "src"), filepath.Join(root, "linked")
	touch(t, src, "1.png", "2.png", "3.png")
	require.NoError(t, os.Mkdir(filepath.Join(src, "4.png"), 0755))
	symlinkAll(t, src, linked)
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.png"), filepath.Join(linked, "5.png")))

	names, err := ListImages(linked)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.png", "2.png", "3.png"}, names)
}

func TestMatchWithSymlinkedFrames(t *testing.T) {
	root := t.TempDir()
	fg, bg, mask := filepath.Join(root, "fg"), filepath.Join(root, "bg"), filepath.Join(root, "mask")
	touch(t, fg, "1.png", "2.png", "3.png")
	touch(t, filepath.Join(root, "bg_src"), "1.png", "2.png", "3.png")
	touch(t, filepath.Join(root, "mask_src"), "1.png", "2.png", "3.png")
	symlinkAll(t, filepath.Join(root, "bg_src"), bg)
	symlinkAll(t, filepath.Join(root, "mask_src"), mask)

	idx, err := NewMatcher(zap.NewNop()).Match(context.Background(), fg, bg, mask)
	require.NoError(t, err)
	require.Equal(t, 3, idx.Len())
	assert.Equal(t, filepath.Join(bg, "2.png"), idx.Triples[1].Background)
	assert.Equal(t, filepath.Join(mask, "3.png"), idx.Triples[2].Mask)
}

func TestMatchAlignsBySortOrder(t *testing.T) {
	root := t.TempDir()
	fg, bg, mask := filepath.Join(root, "fg"), filepath.Join(root, "bg"), filepath.Join(root, "mask")
	touch(t, fg, "0002.png", "0001.png", "0003.png")
	touch(t, bg, "x_b.jpg", "x_a.jpg", "x_c.jpg")
	touch(t, mask, "m3.png", "m1.png", "m2.png", "m4.png")

	idx, err := NewMatcher(zap.NewNop()).Match(context.Background(), fg, bg, mask)
	require.NoError(t, err)
	require.Equal(t, 3, idx.Len())

	assert.Equal(t, entity.FrameTriple{
		Index:      0,
		Foreground: filepath.Join(fg, "0001.png"),
		Background: filepath.Join(bg, "x_a.jpg"),
		Mask:       filepath.Join(mask, "m1.png"),
	}, idx.Triples[0])
	assert.Equal(t, filepath.Join(fg, "0003.png"), idx.Triples[2].Foreground)
	assert.Equal(t, filepath.Join(bg, "x_c.jpg"), idx.Triples[2].Background)
	assert.Equal(t, filepath.Join(mask, "m3.png"), idx.Triples[2].Mask)
}

func TestMatchCountMismatch(t *testing.T) {
	root := t.TempDir()
	fg, bg, mask := filepath.Join(root, "fg"), filepath.Join(root, "bg"), filepath.Join(root, "mask")
	touch(t, fg, "1.png", "2.png", "3.png", "4.png", "5.png")
	touch(t, bg, "1.png", "2.png", "3.png", "4.png")
	touch(t, mask, "1.png", "2.png", "3.png", "4.png", "5.png")

	_, err := NewMatcher(zap.NewNop()).Match(context.Background(), fg, bg, mask)
	require.ErrorIs(t, err, entity.ErrCountMismatch)
	assert.Contains(t, err.Error(), "5 vs background 4")
}

func TestMatchInsufficientMask(t *testing.T) {
	root := t.TempDir()
	fg, bg, mask := filepath.Join(root, "fg"), filepath.Join(root, "bg"), filepath.Join(root, "mask")
	touch(t, fg, "1.png", "2.png")
	touch(t, bg, "1.png", "2.png")
	touch(t, mask, "1.png")

	_, err := NewMatcher(zap.NewNop()).Match(context.Background(), fg, bg, mask)
	assert.ErrorIs(t, err, entity.ErrInsufficientMask)
}

func TestMatchMissingDirectory(t *testing.T) {
	root := t.TempDir()
	fg := filepath.Join(root, "fg")
	touch(t, fg, "1.png")

	_, err := NewMatcher(zap.NewNop()).Match(context.Background(), fg, filepath.Join(root, "bg"), filepath.Join(root, "mask"))
	assert.ErrorIs(t, err, entity.ErrPathNotFound)
}

func TestSubsampleEveryNth(t *testing.T) {
	root := t.TempDir()
	src, dst := filepath.Join(root, "src"), filepath.Join(root, "dst")
	touch(t, src, "f0.png", "f1.png", "f2.png", "f3.png", "f4.png", "f5.png", "f6.png", "skip.txt")

	copied, err := Subsample(context.Background(), src, dst, 3, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dst, "f0.png"),
		filepath.Join(dst, "f3.png"),
		filepath.Join(dst, "f6.png"),
	}, copied)

	names, err := ListImages(dst)
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestSubsampleRejectsZeroInterval(t *testing.T) {
	_, err := Subsample(context.Background(), t.TempDir(), t.TempDir(), 0, zap.NewNop())
	assert.ErrorIs(t, err, entity.ErrInvalidConfig)
}
