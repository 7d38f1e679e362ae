package config

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/image/font/gofont/goregular"

	"filigram/internal/processor"
	"filigram/internal/watermark"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filigram.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, watermark.DefaultConfig(), opts.Watermark)
	assert.Equal(t, processor.CopyErrorSkip, opts.OnCopyError)
	assert.ElementsMatch(t, []string{"jpg", "jpeg", "png", "bmp", "gif"}, opts.Rules.AllowedExtensions)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
watermark:
  text: "© ACME"
  color: [255, 255, 255, 90]
  scale: {x: 40, y: 30}
rules:
  excluded_dirs: [".git", "thumbs"]
  excluded_file_prefixes: ["_"]
  allowed_extensions: [png]
  excluded_globs: ["**/raw/*"]
workers: 3
on_copy_error: abort
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "© ACME", opts.Watermark.Text)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 90}, opts.Watermark.Color)
	assert.Equal(t, watermark.Scale{X: 40, Y: 30}, opts.Watermark.Scale)
	assert.Equal(t, []string{".git", "thumbs"}, opts.Rules.ExcludedDirs)
	assert.Equal(t, []string{"**/raw/*"}, opts.Rules.ExcludedGlobs)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, processor.CopyErrorAbort, opts.OnCopyError)
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := writeConfig(t, "workers: 2\n")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, Default().Watermark, cfg.Watermark)
	assert.Equal(t, Default().Rules, cfg.Rules)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown field", content: "colour: [1, 2, 3, 4]\n"},
		{name: "short color", content: "watermark:\n  color: [1, 2, 3]\n"},
		{name: "color out of range", content: "watermark:\n  color: [1, 2, 3, 300]\n"},
		{name: "zero scale", content: "watermark:\n  scale: {x: 0, y: 10}\n"},
		{name: "negative workers", content: "workers: -1\n"},
		{name: "bad policy", content: "on_copy_error: retry\n"},
		{name: "bad glob", content: "rules:\n  allowed_extensions: [png]\n  excluded_globs: ['[oops']\n"},
		{name: "no extensions", content: "rules:\n  allowed_extensions: []\n"},
		{name: "empty prefix", content: "rules:\n  excluded_file_prefixes: ['']\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), err.Error())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestOptionsReadsFont(t *testing.T) {
	fontPath := filepath.Join(t.TempDir(), "regular.ttf")
	require.NoError(t, os.WriteFile(fontPath, goregular.TTF, 0o644))

	cfg := Default()
	cfg.Watermark.Font = fontPath
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, goregular.TTF, opts.Watermark.Font)

	cfg.Watermark.Font = fontPath + ".missing"
	_, err = cfg.Options()
	require.Error(t, err)
	assert.True(t, errors.Is(err, watermark.ErrFont))
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(context.Background(), writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
