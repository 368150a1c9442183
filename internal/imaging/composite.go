package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Default composite canvas size.
const (
	DefaultCompositeWidth  = 1200
	DefaultCompositeHeight = 800
)

const (
	compositePadding = 16
	compositeLabelH  = 36
	labelFontSize    = 20
)

// Panel is one labelled image on a composite canvas.
type Panel struct {
	Label string
	Image image.Image
}

// CompositeOptions controls the composite canvas.
type CompositeOptions struct {
	Width  int
	Height int
}

var labelFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// Composite lays the panels out left to right on a fixed-size white canvas,
// each scaled to fit its slot under a text label.
func Composite(panels []Panel, opts CompositeOptions) (image.Image, error) {
	if len(panels) == 0 {
		return nil, fmt.Errorf("composite: no panels")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultCompositeWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultCompositeHeight
	}

	n := len(panels)
	slotW := (opts.Width - (n+1)*compositePadding) / n
	slotH := opts.Height - compositeLabelH - 2*compositePadding
	if slotW <= 0 || slotH <= 0 {
		return nil, fmt.Errorf("composite canvas %dx%d: %w", opts.Width, opts.Height, ErrInvalidDimensions)
	}

	f, err := labelFont()
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    labelFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("label face: %w", err)
	}
	defer face.Close()

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetFontFace(face)

	top := compositePadding + compositeLabelH
	for i, p := range panels {
		x := compositePadding + i*(slotW+compositePadding)

		dc.SetColor(color.RGBA{R: 34, G: 34, B: 34, A: 255})
		dc.DrawStringAnchored(p.Label, float64(x)+float64(slotW)/2, float64(compositePadding)+compositeLabelH/2, 0.5, 0.5)

		if p.Image != nil {
			dc.DrawImage(Contain(p.Image, slotW, slotH, Background), x, top)
		}

		dc.SetColor(color.RGBA{R: 200, G: 200, B: 200, A: 255})
		dc.SetLineWidth(1)
		dc.DrawRectangle(float64(x)-0.5, float64(top)-0.5, float64(slotW)+1, float64(slotH)+1)
		dc.Stroke()
	}

	return dc.Image(), nil
}

// Overlay draws top over a copy of base faded to the given opacity on white.
// It is used to give a diff raster some context from the screenshot.
func Overlay(base, top image.Image, opacity float64) *image.RGBA {
	b := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	opacity = min(max(opacity, 0), 1)
	if opacity > 0 {
		mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
		draw.DrawMask(dst, dst.Bounds(), base, b.Min, mask, image.Point{}, draw.Over)
	}
	if top != nil {
		draw.Draw(dst, dst.Bounds(), top, top.Bounds().Min, draw.Over)
	}
	return dst
}
