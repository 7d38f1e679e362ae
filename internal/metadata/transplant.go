// Package metadata moves EXIF and ICC container segments between image files
// without touching their pixel data.
package metadata

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"filigram/internal/fsutil"
	"filigram/pkg/imgutil"
)

var ErrMetadata = errors.Base("cannot transplant metadata")

// Transplant copies the EXIF and ICC segments of originalPath into the file at
// outputPath, replacing any it already carries. The format is chosen from the
// original's extension; anything other than png, jpg and jpeg is logged and
// left alone.
func Transplant(ctx context.Context, originalPath, outputPath string) error {
	kind := imgutil.KindFromExt(originalPath)
	if !kind.HasMetadataSupport() {
		zerolog.Ctx(ctx).Warn().
			Str("path", originalPath).
			Str("ext", filepath.Ext(originalPath)).
			Msg("metadata not preserved for this format")
		return nil
	}

	original, err := os.ReadFile(originalPath)
	if err != nil {
		return errors.Errorf("%w: reading %s: %s", ErrMetadata, originalPath, err)
	}
	output, err := os.ReadFile(outputPath)
	if err != nil {
		return errors.Errorf("%w: reading %s: %s", ErrMetadata, outputPath, err)
	}

	if got, err := imgutil.DetectHeader(output); err != nil || got != kind {
		return errors.Errorf("%w: %s is not a %s container", ErrMetadata, outputPath, kind)
	}

	var merged []byte
	switch kind {
	case imgutil.KindJPEG:
		merged, err = transplantJPEG(original, output)
	case imgutil.KindPNG:
		merged, err = transplantPNG(original, output)
	}
	if err != nil {
		return errors.Errorf("%w: %s: %s", ErrMetadata, originalPath, err)
	}

	if err := replaceContents(outputPath, merged); err != nil {
		return errors.Errorf("%w: writing %s: %s", ErrMetadata, outputPath, err)
	}

	zerolog.Ctx(ctx).Debug().Str("path", outputPath).Str("format", kind.String()).Msg("metadata transplanted")
	return nil
}

func replaceContents(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return fsutil.WriteAtomic(path, info.Mode(), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
