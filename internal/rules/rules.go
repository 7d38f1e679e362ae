// Package rules decides which files of a tree get a watermark and which are
// copied through untouched.
package rules

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// Rules is read-only once a run starts and is shared by every worker.
type Rules struct {
	// ExcludedDirs are matched against whole path segments, e.g. ".hidden"
	// excludes "a/.hidden/pic.jpg" but not "a/not.hidden/pic.jpg".
	ExcludedDirs []string `yaml:"excluded_dirs"`
	// ExcludedFilePrefixes are matched against the start of the file name.
	ExcludedFilePrefixes []string `yaml:"excluded_file_prefixes"`
	// AllowedExtensions are compared case-insensitively, with or without a leading dot.
	AllowedExtensions []string `yaml:"allowed_extensions"`
	// ExcludedGlobs use doublestar syntax against the slash-separated path.
	ExcludedGlobs []string `yaml:"excluded_globs"`
}

// Default returns the rule set of the stock command line tool.
func Default() Rules {
	return Rules{
		ExcludedDirs:         []string{".hidden"},
		ExcludedFilePrefixes: []string{"background"},
		AllowedExtensions:    []string{"jpg", "jpeg", "png", "bmp", "gif"},
	}
}

// IsEligible reports whether the file at path should be watermarked. The
// first failing check wins: extension present, extension allowed, file name
// prefix, directory segment, glob.
func (r *Rules) IsEligible(path string) bool {
	ext := Extension(path)
	if ext == "" {
		return false
	}
	if !r.allowsExtension(ext) {
		return false
	}

	name := filepath.Base(path)
	for _, prefix := range r.ExcludedFilePrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return false
		}
	}

	slashed := filepath.ToSlash(path)
	if len(r.ExcludedDirs) > 0 {
		for _, segment := range strings.Split(slashed, "/") {
			for _, dir := range r.ExcludedDirs {
				if segment == dir {
					return false
				}
			}
		}
	}

	for _, pattern := range r.ExcludedGlobs {
		if matched, err := doublestar.Match(pattern, slashed); err == nil && matched {
			return false
		}
	}

	return true
}

// Validate checks that every glob pattern is well formed and that no
// excluded directory or file prefix is empty. IsEligible skips an empty prefix
// rather than excluding every file, so a configured one is rejected here.
func (r *Rules) Validate() error {
	for _, prefix := range r.ExcludedFilePrefixes {
		if prefix == "" {
			return errors.New("empty excluded file prefix")
		}
	}
	for _, dir := range r.ExcludedDirs {
		if dir == "" {
			return errors.New("empty excluded directory name")
		}
	}
	for _, pattern := range r.ExcludedGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return nil
}

func (r *Rules) allowsExtension(ext string) bool {
	for _, allowed := range r.AllowedExtensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}

// Extension returns the lower-cased extension of path without its dot, or ""
// when the file name has none. A dot-file such as ".png" has no extension.
func Extension(path string) string {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	if ext == name || len(ext) <= 1 {
		return ""
	}
	return strings.ToLower(ext[1:])
}
