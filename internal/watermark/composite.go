package watermark

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"gitlab.com/tozd/go/errors"
	_ "golang.org/x/image/webp"
)

// Composite decodes src, resizes it to CanvasSize x CanvasSize with
// nearest-neighbor sampling, draws mark over it at the origin and writes the
// result to dst in the format implied by dst's extension. Metadata is not
// carried over.
func Composite(src, dst string, mark image.Image) error {
	img, err := imaging.Open(src)
	if err != nil {
		return errors.Errorf("%w: %s: %s", ErrDecode, src, err)
	}

	if _, err := imaging.FormatFromFilename(dst); err != nil {
		return errors.Errorf("%w: %s: %s", ErrEncode, dst, err)
	}

	canvas := resize.Resize(CanvasSize, CanvasSize, img, resize.NearestNeighbor)
	out := imaging.Overlay(canvas, mark, image.Pt(0, 0), 1.0)

	if err := imaging.Save(out, dst, imaging.JPEGQuality(95)); err != nil {
		return errors.Errorf("%w: %s: %s", ErrEncode, dst, err)
	}
	return nil
}
