package snapshot

import (
	"bytes"
	"fmt"
	"image"

	"github.com/standardbeagle/pixelproof/internal/imaging"
)

// maxYIQDelta is the largest possible YIQ distance between two colours.
const maxYIQDelta = 35215.0

// Differ handles image comparison
type Differ struct {
	cfg        VisualConfig
	classifier AntialiasClassifier
}

// DifferOption customises a Differ.
type DifferOption func(*Differ)

// WithClassifier replaces the anti-aliasing classifier.
func WithClassifier(c AntialiasClassifier) DifferOption {
	return func(d *Differ) {
		d.classifier = c
	}
}

// NewDiffer creates a new image differ
func NewDiffer(cfg VisualConfig, opts ...DifferOption) *Differ {
	d := &Differ{
		cfg:        cfg,
		classifier: NeighborhoodClassifier{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the settings the differ was built with.
func (d *Differ) Config() VisualConfig {
	return d.cfg
}

// Compare normalizes the pair to a common size, diffs it and scores it.
// The normalized actual image is returned alongside the diff raster so callers
// can build review composites from exactly what was compared.
func (d *Differ) Compare(actual, reference image.Image) (ComparisonResult, *Normalized, error) {
	na, nr, err := imaging.Normalize(actual, reference)
	if err != nil {
		return ComparisonResult{}, nil, err
	}

	diff, diffPixels, err := d.Diff(na, nr)
	if err != nil {
		return ComparisonResult{}, nil, err
	}

	total := na.Rect.Dx() * na.Rect.Dy()
	result, err := NewComparisonResult(diffPixels, total, d.cfg.Threshold)
	if err != nil {
		return ComparisonResult{}, nil, err
	}

	return result, &Normalized{Actual: na, Reference: nr, Diff: diff}, nil
}

// Normalized holds the equal-sized rasters of one comparison.
type Normalized struct {
	Actual    *image.RGBA
	Reference *image.RGBA
	Diff      *image.RGBA
}

// Diff compares two equal-sized rasters pixel by pixel. The returned diff
// image is transparent where the pixels match, DiffColor where they differ
// and AAColor where the difference was classified as anti-aliasing. Only
// DiffColor pixels are counted.
func (d *Differ) Diff(a, b *image.RGBA) (*image.RGBA, int, error) {
	if a == nil || b == nil {
		return nil, 0, fmt.Errorf("nil image: %w", ErrInvalidDimensions)
	}
	w, h := a.Rect.Dx(), a.Rect.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, fmt.Errorf("image %dx%d: %w", w, h, ErrInvalidDimensions)
	}
	if b.Rect.Dx() != w || b.Rect.Dy() != h {
		return nil, 0, fmt.Errorf("image dimensions differ: %dx%d vs %dx%d: %w",
			w, h, b.Rect.Dx(), b.Rect.Dy(), ErrInvalidDimensions)
	}

	diff := image.NewRGBA(image.Rect(0, 0, w, h))
	if samePixels(a, b) {
		return diff, 0, nil
	}

	maxDelta := maxYIQDelta * d.cfg.ColorThreshold * d.cfg.ColorThreshold
	checkAA := d.cfg.IgnoreAntialiasing && d.classifier != nil

	count := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			delta := colorDelta(pixelAt(a, x, y), pixelAt(b, x, y))
			if delta <= maxDelta {
				continue
			}

			if checkAA && (d.classifier.IsAntialiased(a, b, x, y) || d.classifier.IsAntialiased(b, a, x, y)) {
				diff.SetRGBA(x, y, d.cfg.AAColor)
				continue
			}

			diff.SetRGBA(x, y, d.cfg.DiffColor)
			count++
		}
	}

	return diff, count, nil
}

// samePixels reports whether both rasters hold byte-identical pixels.
func samePixels(a, b *image.RGBA) bool {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	for y := 0; y < h; y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):][:w*4]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):][:w*4]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}

type rgba struct {
	r, g, b, a float64
}

// pixelAt reads the pixel at (x,y) relative to the image's origin.
func pixelAt(img *image.RGBA, x, y int) rgba {
	i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	p := img.Pix[i : i+4 : i+4]
	return rgba{float64(p[0]), float64(p[1]), float64(p[2]), float64(p[3])}
}

// blendWhite composites a non-opaque pixel over white.
func blendWhite(p rgba) rgba {
	if p.a >= 255 {
		return p
	}
	a := p.a / 255
	return rgba{
		r: 255 + (p.r-255)*a,
		g: 255 + (p.g-255)*a,
		b: 255 + (p.b-255)*a,
		a: 255,
	}
}

func rgb2y(p rgba) float64 { return p.r*0.29889531 + p.g*0.58662247 + p.b*0.11448223 }
func rgb2i(p rgba) float64 { return p.r*0.59597799 - p.g*0.27417610 - p.b*0.32180730 }
func rgb2q(p rgba) float64 { return p.r*0.21147017 - p.g*0.52261711 + p.b*0.31114694 }

// colorDelta is the squared YIQ distance between two pixels, after blending
// both over white. It is symmetric in its arguments.
func colorDelta(p1, p2 rgba) float64 {
	if p1 == p2 {
		return 0
	}
	p1, p2 = blendWhite(p1), blendWhite(p2)

	y := rgb2y(p1) - rgb2y(p2)
	i := rgb2i(p1) - rgb2i(p2)
	q := rgb2q(p1) - rgb2q(p2)

	return 0.5053*y*y + 0.299*i*i + 0.1957*q*q
}

// brightnessDelta is the signed luma difference p1 - p2.
func brightnessDelta(p1, p2 rgba) float64 {
	if p1 == p2 {
		return 0
	}
	return rgb2y(blendWhite(p1)) - rgb2y(blendWhite(p2))
}
