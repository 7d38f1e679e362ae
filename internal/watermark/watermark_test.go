package watermark

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"filigram/internal/testutil"
)

func TestBuildDefault(t *testing.T) {
	mark, err := Build(DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, CanvasSize, CanvasSize), mark.Bounds())

	opaque := 0
	for y := 0; y < CanvasSize; y++ {
		for x := 0; x < CanvasSize; x++ {
			if mark.RGBAAt(x, y).A > 0 {
				opaque++
			}
		}
	}
	assert.Greater(t, opaque, 500, "expected rendered text pixels")
}

func TestBuildCornersStayTransparent(t *testing.T) {
	mark, err := Build(DefaultConfig())
	require.NoError(t, err)

	last := CanvasSize - 1
	for _, p := range []image.Point{{0, 0}, {last, 0}, {0, last}, {last, last}} {
		assert.Equal(t, color.RGBA{}, mark.RGBAAt(p.X, p.Y), "corner %v", p)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build(DefaultConfig())
	require.NoError(t, err)
	b, err := Build(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestBuildBadFont(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Font = []byte("definitely not a font file")

	_, err := Build(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFont))
}

func TestBuildRejectsNonPositiveScale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scale = Scale{X: 10, Y: 0}

	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestRotateKeepsUncoveredAreaTransparent(t *testing.T) {
	src := testutil.Solid(CanvasSize, CanvasSize, color.RGBA{R: 0xff, A: 0xff})
	out := rotate(src, Angle, 1)

	last := CanvasSize - 1
	for _, p := range []image.Point{{0, 0}, {last, 0}, {0, last}, {last, last}} {
		assert.Equal(t, uint8(0), out.RGBAAt(p.X, p.Y).A, "corner %v", p)
	}
	assert.Greater(t, out.RGBAAt(CanvasSize/2, CanvasSize/2).A, uint8(0xf0))
}

func TestComposite(t *testing.T) {
	dir := t.TempDir()
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	src := testutil.WriteFile(t, dir, "in.png", testutil.EncodePNG(t, testutil.Solid(64, 48, white)))
	dst := filepath.Join(dir, "out.png")

	mark, err := Build(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Composite(src, dst, mark))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	out, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, CanvasSize, out.Bounds().Dx())
	require.Equal(t, CanvasSize, out.Bounds().Dy())

	marked := 0
	for y := 0; y < CanvasSize; y++ {
		for x := 0; x < CanvasSize; x++ {
			r, g, b, _ := out.At(x, y).RGBA()
			plain := r == 0xffff && g == 0xffff && b == 0xffff
			switch a := mark.RGBAAt(x, y).A; {
			case a == 0:
				assert.True(t, plain, "pixel %d,%d changed outside the watermark", x, y)
			case a >= 8:
				marked++
				assert.False(t, plain, "pixel %d,%d missing watermark", x, y)
			}
		}
	}
	assert.Greater(t, marked, 0)
}

func TestCompositeJPEGAndGIF(t *testing.T) {
	dir := t.TempDir()
	mark, err := Build(DefaultConfig())
	require.NoError(t, err)

	src := testutil.WriteFile(t, dir, "in.jpg", testutil.EncodeJPEG(t, testutil.Gradient(32, 32)))
	for _, name := range []string{"out.jpg", "out.jpeg", "out.gif", "out.bmp"} {
		dst := filepath.Join(dir, name)
		require.NoError(t, Composite(src, dst, mark), name)
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestCompositeDecodeError(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WriteFile(t, dir, "broken.png", []byte("not an image"))

	err := Composite(src, filepath.Join(dir, "out.png"), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestCompositeEncodeError(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WriteFile(t, dir, "in.png", testutil.EncodePNG(t, testutil.Gradient(8, 8)))

	err := Composite(src, filepath.Join(dir, "out.txt"), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))
}
