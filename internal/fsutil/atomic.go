// Package fsutil writes files through a temporary sibling and a rename, so a
// failed write never leaves a partial file at the destination.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteAtomic creates dest with perm, filling it through write. On any error
// dest is left as it was.
func WriteAtomic(dest string, perm fs.FileMode, write func(w io.Writer) error) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), "filigram-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile.Name())

	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := write(tmpFile); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return ReplaceFile(tmpFile.Name(), dest)
}

// ReplaceFile renames tmpPath over destPath, removing destPath first on
// platforms where rename does not overwrite.
func ReplaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}
