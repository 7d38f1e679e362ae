package metadata

import (
	"os"

	exif "github.com/dsoprea/go-exif/v3"
	"gitlab.com/tozd/go/errors"

	"filigram/pkg/imgutil"
)

// Report describes the metadata segments found in one file.
type Report struct {
	Path     string
	Kind     imgutil.Kind
	ExifSize int
	// ICCSize counts stored profile bytes, compressed for PNG.
	ICCSize int
	Tags    []Tag
}

type Tag struct {
	IFD   string
	Name  string
	Value string
}

// HasMetadata reports whether any EXIF or ICC payload was found.
func (r Report) HasMetadata() bool {
	return r.ExifSize > 0 || r.ICCSize > 0
}

// Inspect reads the EXIF and ICC segments of a JPEG or PNG file. Other formats
// yield a report with only Path and Kind set.
func Inspect(path string) (Report, error) {
	report := Report{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return report, err
	}
	if len(data) < 8 {
		return report, nil
	}

	kind, err := imgutil.DetectHeader(data)
	if err != nil {
		return report, err
	}
	report.Kind = kind

	var exifData []byte
	switch kind {
	case imgutil.KindJPEG:
		sl, err := parseJPEG(data)
		if err != nil {
			return report, errors.Errorf("parsing %s: %w", path, err)
		}
		for _, s := range sl.Segments() {
			switch {
			case isJPEGExif(s) && exifData == nil:
				exifData = s.Data[len(jpegExifHeader):]
			case isJPEGICC(s) && len(s.Data) >= len(jpegICCHeader)+jpegICCChunkHeaderLen:
				report.ICCSize += len(s.Data) - len(jpegICCHeader) - jpegICCChunkHeaderLen
			}
		}
	case imgutil.KindPNG:
		cs, err := parsePNG(data)
		if err != nil {
			return report, errors.Errorf("parsing %s: %w", path, err)
		}
		for _, c := range cs.Chunks() {
			switch c.Type {
			case pngChunkExif:
				exifData = c.Data
			case pngChunkICC:
				report.ICCSize += len(c.Data)
			}
		}
	default:
		return report, nil
	}

	report.ExifSize = len(exifData)
	if len(exifData) == 0 {
		return report, nil
	}

	tags, _, err := exif.GetFlatExifData(exifData, nil)
	if err != nil {
		return report, errors.Errorf("decoding EXIF of %s: %w", path, err)
	}
	for _, tag := range tags {
		report.Tags = append(report.Tags, Tag{IFD: tag.IfdPath, Name: tag.TagName, Value: tag.Formatted})
	}

	return report, nil
}
