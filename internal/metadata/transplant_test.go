package metadata

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"filigram/internal/testutil"
	"filigram/pkg/imgutil"
)

func TestTransplantJPEG(t *testing.T) {
	dir := t.TempDir()
	original := testutil.WithJPEGSegments(t, testutil.EncodeJPEG(t, testutil.Gradient(16, 16)), testutil.ExifTIFF(), testutil.ICCProfile())
	origPath := testutil.WriteFile(t, dir, "orig.jpg", original)
	outPath := testutil.WriteFile(t, dir, "out.jpg", testutil.EncodeJPEG(t, testutil.Gradient(40, 40)))
	before := decodeJPEG(t, outPath)

	require.NoError(t, Transplant(context.Background(), origPath, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, testutil.ExifTIFF()), "EXIF bytes not carried")
	assert.True(t, bytes.Contains(data, testutil.ICCProfile()), "ICC bytes not carried")
	assert.Equal(t, before, decodeJPEG(t, outPath), "pixel data changed")

	x, err := goexif.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	model, err := x.Get(goexif.Model)
	require.NoError(t, err)
	value, err := model.StringVal()
	require.NoError(t, err)
	assert.Equal(t, testutil.CameraModel, value)
}

func TestTransplantJPEGReplacesExistingSegments(t *testing.T) {
	dir := t.TempDir()
	stale := []byte("II*\x00stale-exif-payload")
	origPath := testutil.WriteFile(t, dir, "orig.jpeg",
		testutil.WithJPEGSegments(t, testutil.EncodeJPEG(t, testutil.Gradient(8, 8)), testutil.ExifTIFF(), nil))
	outPath := testutil.WriteFile(t, dir, "out.jpeg",
		testutil.WithJPEGSegments(t, testutil.EncodeJPEG(t, testutil.Gradient(8, 8)), stale, testutil.ICCProfile()))

	require.NoError(t, Transplant(context.Background(), origPath, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(data, stale))
	assert.False(t, bytes.Contains(data, testutil.ICCProfile()), "original had no ICC profile")
	assert.Equal(t, 1, bytes.Count(data, []byte("Exif\x00\x00")))
}

func TestTransplantJPEGWithoutMetadataClearsOutput(t *testing.T) {
	dir := t.TempDir()
	origPath := testutil.WriteFile(t, dir, "orig.JPG", testutil.EncodeJPEG(t, testutil.Gradient(8, 8)))
	outPath := testutil.WriteFile(t, dir, "out.jpg",
		testutil.WithJPEGSegments(t, testutil.EncodeJPEG(t, testutil.Gradient(8, 8)), testutil.ExifTIFF(), nil))

	require.NoError(t, Transplant(context.Background(), origPath, outPath))

	report, err := Inspect(outPath)
	require.NoError(t, err)
	assert.False(t, report.HasMetadata())
}

func TestTransplantPNG(t *testing.T) {
	dir := t.TempDir()
	original := testutil.WithPNGChunks(t, testutil.EncodePNG(t, testutil.Gradient(8, 8)), testutil.ExifTIFF(), testutil.ICCProfile())
	origPath := testutil.WriteFile(t, dir, "orig.png", original)
	output := testutil.EncodePNG(t, testutil.Gradient(20, 20))
	outPath := testutil.WriteFile(t, dir, "out.png", output)

	require.NoError(t, Transplant(context.Background(), origPath, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, testutil.PNGChunkData(t, output, "IDAT"), testutil.PNGChunkData(t, data, "IDAT"), "pixel data changed")

	exifChunks := testutil.PNGChunkData(t, data, "eXIf")
	require.Len(t, exifChunks, 1)
	assert.Equal(t, testutil.ExifTIFF(), exifChunks[0])
	assert.Equal(t, testutil.PNGChunkData(t, original, "iCCP"), testutil.PNGChunkData(t, data, "iCCP"))

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 20), img.Bounds())
}

func TestTransplantUnsupportedFormatIsNoop(t *testing.T) {
	dir := t.TempDir()
	origPath := testutil.WriteFile(t, dir, "orig.gif", []byte("GIF89a-original"))
	outPath := testutil.WriteFile(t, dir, "out.gif", []byte("GIF89a-output"))

	require.NoError(t, Transplant(context.Background(), origPath, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("GIF89a-output"), data)
}

func TestTransplantErrors(t *testing.T) {
	dir := t.TempDir()
	jpegPath := testutil.WriteFile(t, dir, "orig.jpg", testutil.EncodeJPEG(t, testutil.Gradient(8, 8)))
	pngPath := testutil.WriteFile(t, dir, "actually-png.jpg", testutil.EncodePNG(t, testutil.Gradient(8, 8)))
	brokenPath := testutil.WriteFile(t, dir, "broken.png", []byte("not a png at all"))
	outPNG := testutil.WriteFile(t, dir, "out.png", testutil.EncodePNG(t, testutil.Gradient(8, 8)))

	tests := []struct {
		name     string
		original string
		output   string
	}{
		{name: "output container mismatch", original: jpegPath, output: pngPath},
		{name: "corrupt original", original: brokenPath, output: outPNG},
		{name: "missing output", original: jpegPath, output: filepath.Join(dir, "missing.jpg")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Transplant(context.Background(), tt.original, tt.output)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMetadata))
		})
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	jpegPath := testutil.WriteFile(t, dir, "a.jpg",
		testutil.WithJPEGSegments(t, testutil.EncodeJPEG(t, testutil.Gradient(8, 8)), testutil.ExifTIFF(), testutil.ICCProfile()))
	pngPath := testutil.WriteFile(t, dir, "b.png",
		testutil.WithPNGChunks(t, testutil.EncodePNG(t, testutil.Gradient(8, 8)), testutil.ExifTIFF(), nil))
	textPath := testutil.WriteFile(t, dir, "c.txt", []byte("plain text, nothing to see"))

	report, err := Inspect(jpegPath)
	require.NoError(t, err)
	assert.Equal(t, imgutil.KindJPEG, report.Kind)
	assert.Equal(t, len(testutil.ExifTIFF()), report.ExifSize)
	assert.Equal(t, len(testutil.ICCProfile()), report.ICCSize)
	assert.Contains(t, tagNames(report), "Model")

	report, err = Inspect(pngPath)
	require.NoError(t, err)
	assert.Equal(t, imgutil.KindPNG, report.Kind)
	assert.Equal(t, len(testutil.ExifTIFF()), report.ExifSize)
	assert.Zero(t, report.ICCSize)
	assert.Contains(t, tagNames(report), "DateTime")

	report, err = Inspect(textPath)
	require.NoError(t, err)
	assert.Equal(t, imgutil.KindUnknown, report.Kind)
	assert.False(t, report.HasMetadata())
}

func tagNames(r Report) []string {
	names := make([]string, 0, len(r.Tags))
	for _, tag := range r.Tags {
		names = append(names, tag.Name)
	}
	return names
}

func decodeJPEG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	return img
}
