// Package watermark renders the translucent rotated text raster and lays it
// over source images.
package watermark

import (
	"image"
	"image/color"
	"math"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

const (
	// CanvasSize is the edge length of both the watermark raster and every
	// composited output image.
	CanvasSize = 500
	// Angle is the clockwise rotation applied to the rendered text, in radians.
	Angle = 0.8

	textX = 0
	textY = 210
)

var (
	ErrFont   = errors.Base("watermark font unusable")
	ErrDecode = errors.Base("cannot decode image")
	ErrEncode = errors.Base("cannot encode image")
)

// Scale is the pixel height of the rendered glyphs along each axis.
type Scale struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Config describes the watermark text. It is not modified during a run.
type Config struct {
	Text  string
	Color color.NRGBA
	Scale Scale
	// Font holds a TTF/OTF payload. Empty means the embedded Go Bold face.
	Font []byte
}

// DefaultConfig returns the stock copyright text in semi-transparent black.
func DefaultConfig() Config {
	const height = 28.0
	return Config{
		Text:  "© Copyright Filigram",
		Color: color.NRGBA{R: 0, G: 0, B: 0, A: 110},
		Scale: Scale{X: height * 2.3, Y: height * 2.3},
	}
}

// Build renders cfg.Text onto a transparent CanvasSize square and rotates it
// about the center. Pixels uncovered by the rotation stay fully transparent.
// The result is meant to be built once and shared read-only.
func Build(cfg Config) (*image.RGBA, error) {
	if cfg.Scale.X <= 0 || cfg.Scale.Y <= 0 {
		return nil, errors.Errorf("watermark scale must be positive, got %vx%v", cfg.Scale.X, cfg.Scale.Y)
	}

	face, err := newFace(cfg)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	canvas := image.NewRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(cfg.Color),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(textX), Y: fixed.I(textY) + face.Metrics().Ascent},
	}
	drawer.DrawString(cfg.Text)

	return rotate(canvas, Angle, cfg.Scale.X/cfg.Scale.Y), nil
}

// newFace sizes the face so that ascent plus descent equals cfg.Scale.Y pixels.
func newFace(cfg Config) (font.Face, error) {
	data := cfg.Font
	if len(data) == 0 {
		data = gobold.TTF
	}

	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, errors.Errorf("%w: %s", ErrFont, err)
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{Size: cfg.Scale.Y, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, errors.Errorf("%w: %s", ErrFont, err)
	}

	m := face.Metrics()
	height := float64(m.Ascent+m.Descent) / 64
	if height <= 0 {
		return face, nil
	}
	_ = face.Close()

	face, err = opentype.NewFace(parsed, &opentype.FaceOptions{Size: cfg.Scale.Y * cfg.Scale.Y / height, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, errors.Errorf("%w: %s", ErrFont, err)
	}
	return face, nil
}

// rotate turns src by theta radians about its center with Catmull-Rom
// (bicubic) sampling. stretch scales the x axis before rotating.
func rotate(src *image.RGBA, theta, stretch float64) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())

	cx := float64(src.Bounds().Dx()) / 2
	cy := float64(src.Bounds().Dy()) / 2
	sin, cos := math.Sincos(theta)
	s2d := f64.Aff3{
		cos * stretch, -sin, cx - cos*cx + sin*cy,
		sin * stretch, cos, cy - sin*cx - cos*cy,
	}

	draw.CatmullRom.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	return dst
}
