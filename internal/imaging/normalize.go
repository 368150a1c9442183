package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Background fills the margins left by a contain fit.
var Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Normalize brings actual and reference to a common size of
// min(widths) x min(heights). Each side is scaled uniformly to fit that box
// and centred on an opaque white canvas; nothing is cropped or stretched.
// Inputs already at the target size are returned as untouched copies.
func Normalize(actual, reference image.Image) (*image.RGBA, *image.RGBA, error) {
	ab, rb := actual.Bounds(), reference.Bounds()
	if ab.Empty() {
		return nil, nil, fmt.Errorf("actual %dx%d: %w", ab.Dx(), ab.Dy(), ErrInvalidDimensions)
	}
	if rb.Empty() {
		return nil, nil, fmt.Errorf("reference %dx%d: %w", rb.Dx(), rb.Dy(), ErrInvalidDimensions)
	}

	w := min(ab.Dx(), rb.Dx())
	h := min(ab.Dy(), rb.Dy())

	return Contain(actual, w, h, Background), Contain(reference, w, h, Background), nil
}

// Contain scales src uniformly so that it fits inside w x h, centres it and
// fills the remaining area with bg.
func Contain(src image.Image, w, h int, bg color.Color) *image.RGBA {
	sb := src.Bounds()
	if sb.Dx() == w && sb.Dy() == h {
		return ToRGBA(src)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	fit := FitRect(sb.Dx(), sb.Dy(), w, h)
	if fit.Empty() {
		return dst
	}
	xdraw.CatmullRom.Scale(dst, fit, src, sb, xdraw.Over, nil)
	return dst
}

// FitRect returns the centred rectangle inside a w x h box that holds an
// sw x sh source scaled uniformly.
func FitRect(sw, sh, w, h int) image.Rectangle {
	if sw <= 0 || sh <= 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	scale := math.Min(float64(w)/float64(sw), float64(h)/float64(sh))
	fw := max(1, min(w, int(math.Round(float64(sw)*scale))))
	fh := max(1, min(h, int(math.Round(float64(sh)*scale))))

	x0 := (w - fw) / 2
	y0 := (h - fh) / 2
	return image.Rect(x0, y0, x0+fw, y0+fh)
}
