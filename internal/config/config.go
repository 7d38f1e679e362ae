// Package config loads the optional YAML settings file and turns it into
// processor options.
package config

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"filigram/internal/processor"
	"filigram/internal/rules"
	"filigram/internal/watermark"
)

var ErrInvalidConfig = errors.Base("invalid configuration")

type Config struct {
	Watermark   Watermark   `yaml:"watermark"`
	Rules       rules.Rules `yaml:"rules"`
	Workers     int         `yaml:"workers"`
	OnCopyError string      `yaml:"on_copy_error"`
}

type Watermark struct {
	Text  string          `yaml:"text"`
	Color []int           `yaml:"color"`
	Scale watermark.Scale `yaml:"scale"`
	// Font is a path to a TTF/OTF file; empty selects the embedded face.
	Font string `yaml:"font"`
}

// Default mirrors the stock tool: copyright text in translucent black and
// the jpg/jpeg/png/bmp/gif rule set.
func Default() Config {
	wm := watermark.DefaultConfig()
	return Config{
		Watermark: Watermark{
			Text:  wm.Text,
			Color: []int{int(wm.Color.R), int(wm.Color.G), int(wm.Color.B), int(wm.Color.A)},
			Scale: wm.Scale,
		},
		Rules:       rules.Default(),
		OnCopyError: processor.CopyErrorSkip.String(),
	}
}

// Load reads path over the defaults. Fields absent from the file keep their
// default values; unknown fields are rejected.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Errorf("reading config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Errorf("%w: parsing YAML %s: %s", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Watermark.Color) != 4 {
		return errors.Errorf("%w: color needs 4 components (r, g, b, a), got %d", ErrInvalidConfig, len(c.Watermark.Color))
	}
	for _, v := range c.Watermark.Color {
		if v < 0 || v > 255 {
			return errors.Errorf("%w: color component %d out of range 0..255", ErrInvalidConfig, v)
		}
	}
	if c.Watermark.Scale.X <= 0 || c.Watermark.Scale.Y <= 0 {
		return errors.Errorf("%w: scale must be positive, got %vx%v", ErrInvalidConfig, c.Watermark.Scale.X, c.Watermark.Scale.Y)
	}
	if c.Workers < 0 {
		return errors.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	if len(c.Rules.AllowedExtensions) == 0 {
		return errors.Errorf("%w: at least one allowed extension is required", ErrInvalidConfig)
	}
	if err := c.Rules.Validate(); err != nil {
		return errors.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if _, err := processor.ParseCopyErrorPolicy(c.OnCopyError); err != nil {
		return errors.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return nil
}

// Options converts the validated config into processor options, reading the
// font file if one is set.
func (c Config) Options() (processor.Options, error) {
	if err := c.Validate(); err != nil {
		return processor.Options{}, err
	}

	policy, _ := processor.ParseCopyErrorPolicy(c.OnCopyError)
	wm := watermark.Config{
		Text: c.Watermark.Text,
		Color: color.NRGBA{
			R: uint8(c.Watermark.Color[0]),
			G: uint8(c.Watermark.Color[1]),
			B: uint8(c.Watermark.Color[2]),
			A: uint8(c.Watermark.Color[3]),
		},
		Scale: c.Watermark.Scale,
	}

	if c.Watermark.Font != "" {
		data, err := os.ReadFile(c.Watermark.Font)
		if err != nil {
			return processor.Options{}, errors.Errorf("%w: reading font %s: %s", watermark.ErrFont, c.Watermark.Font, err)
		}
		wm.Font = data
	}

	return processor.Options{
		Watermark:   wm,
		Rules:       c.Rules,
		Workers:     c.Workers,
		OnCopyError: policy,
	}, nil
}
