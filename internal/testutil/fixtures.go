// Package testutil builds image fixtures with known metadata for tests.
package testutil

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	CameraModel = "TestCam"
	CaptureTime = "2024:01:02 03:04:05"
)

// ExifTIFF returns a little-endian TIFF payload with Model and DateTime tags.
func ExifTIFF() []byte {
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0110))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(len(CameraModel)+1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(38))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0132))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(len(CaptureTime)+1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(38+len(CameraModel)+1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))
	tiff.WriteString(CameraModel + "\x00")
	tiff.WriteString(CaptureTime + "\x00")
	return tiff.Bytes()
}

// ICCProfile returns an opaque stand-in for a color profile.
func ICCProfile() []byte {
	return bytes.Repeat([]byte("filigram-icc-profile:"), 16)
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// Gradient returns a w x h image whose pixels all differ from their neighbors.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8(x + y), A: 0xff})
		}
	}
	return img
}

func EncodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// WithJPEGSegments inserts an APP1 EXIF segment and an APP2 ICC segment right
// after SOI. Nil payloads are skipped.
func WithJPEGSegments(t testing.TB, data, exif, icc []byte) []byte {
	t.Helper()
	require.True(t, len(data) > 2 && data[0] == 0xff && data[1] == 0xd8, "not a JPEG")

	var buf bytes.Buffer
	buf.Write(data[:2])
	if exif != nil {
		writeJPEGSegment(&buf, 0xe1, append([]byte("Exif\x00\x00"), exif...))
	}
	if icc != nil {
		payload := append([]byte("ICC_PROFILE\x00\x01\x01"), icc...)
		writeJPEGSegment(&buf, 0xe2, payload)
	}
	buf.Write(data[2:])
	return buf.Bytes()
}

func writeJPEGSegment(buf *bytes.Buffer, marker byte, payload []byte) {
	buf.Write([]byte{0xff, marker})
	_ = binary.Write(buf, binary.BigEndian, uint16(len(payload)+2))
	buf.Write(payload)
}

// WithPNGChunks inserts an iCCP chunk and an eXIf chunk right after IHDR. Nil
// payloads are skipped.
func WithPNGChunks(t testing.TB, data, exif, icc []byte) []byte {
	t.Helper()
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	require.True(t, len(data) > ihdrEnd && string(data[12:16]) == "IHDR", "not a PNG")

	out := append([]byte{}, data[:ihdrEnd]...)
	if icc != nil {
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		_, err := zw.Write(icc)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		out = append(out, PNGChunk("iCCP", append([]byte("test\x00\x00"), z.Bytes()...))...)
	}
	if exif != nil {
		out = append(out, PNGChunk("eXIf", exif)...)
	}
	return append(out, data[ihdrEnd:]...)
}

// PNGChunk frames data as a PNG chunk with a valid CRC.
func PNGChunk(chunkType string, data []byte) []byte {
	chunkTypeBytes := []byte(chunkType)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc32.ChecksumIEEE(append(append([]byte{}, chunkTypeBytes...), data...)))

	chunk := make([]byte, 0, 12+len(data))
	chunk = append(chunk, lenBuf...)
	chunk = append(chunk, chunkTypeBytes...)
	chunk = append(chunk, data...)
	chunk = append(chunk, crcBuf...)
	return chunk
}

// PNGChunkData returns the payloads of every chunk of the given type.
func PNGChunkData(t testing.TB, data []byte, chunkType string) [][]byte {
	t.Helper()
	require.Greater(t, len(data), 8)

	var found [][]byte
	for pos := 8; pos+8 <= len(data); {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		name := string(data[pos+4 : pos+8])
		require.LessOrEqual(t, pos+12+length, len(data), "truncated chunk %s", name)
		if name == chunkType {
			found = append(found, data[pos+8:pos+8+length])
		}
		pos += 12 + length
	}
	return found
}

// WriteFile writes data under dir, creating parents as needed, and returns the path.
func WriteFile(t testing.TB, dir, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
