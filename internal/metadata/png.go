package metadata

import (
	"bytes"

	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
	"gitlab.com/tozd/go/errors"
)

const (
	pngChunkHeader = "IHDR"
	pngChunkExif   = "eXIf"
	pngChunkICC    = "iCCP"
)

func parsePNG(data []byte) (*pngstructure.ChunkSlice, error) {
	intfc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, err
	}

	cs, ok := intfc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, errors.New("unexpected PNG parse result")
	}
	return cs, nil
}

func isCarriedPNGChunk(c *pngstructure.Chunk) bool {
	return c.Type == pngChunkExif || c.Type == pngChunkICC
}

// transplantPNG returns output with its eXIf and iCCP chunks replaced by the
// ones found in original, placed right after IHDR so iCCP precedes PLTE and
// IDAT.
func transplantPNG(original, output []byte) ([]byte, error) {
	src, err := parsePNG(original)
	if err != nil {
		return nil, errors.Errorf("parsing original PNG: %w", err)
	}
	dst, err := parsePNG(output)
	if err != nil {
		return nil, errors.Errorf("parsing output PNG: %w", err)
	}

	var carried []*pngstructure.Chunk
	for _, c := range src.Chunks() {
		if isCarriedPNGChunk(c) {
			carried = append(carried, c)
		}
	}

	chunks := dst.Chunks()
	merged := make([]*pngstructure.Chunk, 0, len(chunks)+len(carried))
	sawHeader := false
	for _, c := range chunks {
		if isCarriedPNGChunk(c) {
			continue
		}
		merged = append(merged, c)
		if c.Type == pngChunkHeader {
			sawHeader = true
			merged = append(merged, carried...)
		}
	}
	if !sawHeader {
		return nil, errors.New("output PNG has no IHDR chunk")
	}

	var b bytes.Buffer
	if err := pngstructure.NewChunkSlice(merged).WriteTo(&b); err != nil {
		return nil, errors.Errorf("writing PNG: %w", err)
	}
	return b.Bytes(), nil
}
