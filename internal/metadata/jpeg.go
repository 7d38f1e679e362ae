package metadata

import (
	"bytes"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"gitlab.com/tozd/go/errors"
)

const (
	markerSOI  = 0xd8
	markerAPP0 = 0xe0
	markerAPP1 = 0xe1
	markerAPP2 = 0xe2
)

var (
	jpegExifHeader = []byte("Exif\x00\x00")
	jpegICCHeader  = []byte("ICC_PROFILE\x00")
)

// ICC payloads carry a sequence number and a chunk count after the header.
const jpegICCChunkHeaderLen = 2

func parseJPEG(data []byte) (*jpegstructure.SegmentList, error) {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, err
	}

	sl, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, errors.New("unexpected JPEG parse result")
	}
	return sl, nil
}

func isJPEGExif(s *jpegstructure.Segment) bool {
	return s.MarkerId == markerAPP1 && bytes.HasPrefix(s.Data, jpegExifHeader)
}

func isJPEGICC(s *jpegstructure.Segment) bool {
	return s.MarkerId == markerAPP2 && bytes.HasPrefix(s.Data, jpegICCHeader)
}

func isCarriedJPEGSegment(s *jpegstructure.Segment) bool {
	return isJPEGExif(s) || isJPEGICC(s)
}

// transplantJPEG returns output with its EXIF and ICC segments replaced by the
// ones found in original. They are placed after SOI and any APP0 (JFIF)
// segments; every other segment, scan data included, is written back as is.
func transplantJPEG(original, output []byte) ([]byte, error) {
	src, err := parseJPEG(original)
	if err != nil {
		return nil, errors.Errorf("parsing original JPEG: %w", err)
	}
	dst, err := parseJPEG(output)
	if err != nil {
		return nil, errors.Errorf("parsing output JPEG: %w", err)
	}

	var carried []*jpegstructure.Segment
	for _, s := range src.Segments() {
		if isCarriedJPEGSegment(s) {
			carried = append(carried, s)
		}
	}

	segments := dst.Segments()
	if len(segments) == 0 || segments[0].MarkerId != markerSOI {
		return nil, errors.New("output JPEG does not start with SOI")
	}

	insertAt := 1
	for insertAt < len(segments) && segments[insertAt].MarkerId == markerAPP0 {
		insertAt++
	}

	merged := make([]*jpegstructure.Segment, 0, len(segments)+len(carried))
	for i, s := range segments {
		if i == insertAt {
			merged = append(merged, carried...)
		}
		if isCarriedJPEGSegment(s) {
			continue
		}
		merged = append(merged, s)
	}
	if insertAt >= len(segments) {
		merged = append(merged, carried...)
	}

	var b bytes.Buffer
	if err := jpegstructure.NewSegmentList(merged).Write(&b); err != nil {
		return nil, errors.Errorf("writing JPEG: %w", err)
	}
	return b.Bytes(), nil
}
