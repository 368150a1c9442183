// Package imaging loads, normalizes and composes the raster images that the
// visual comparison pipeline works on.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

var (
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("image decode failed")

	// ErrInvalidDimensions reports a zero-area or mismatched raster.
	ErrInvalidDimensions = errors.New("invalid image dimensions")
)

// DecodeError names the file that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Load decodes the image at path into an RGBA buffer with origin (0,0).
func Load(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	rgba := ToRGBA(img)
	if rgba.Rect.Empty() {
		return nil, &DecodeError{Path: path, Err: ErrInvalidDimensions}
	}
	return rgba, nil
}

// ToRGBA copies img into a fresh RGBA buffer whose bounds start at (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// SavePNG encodes img as PNG at path, creating parent directories.
func SavePNG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("encode png: %w", err)
	}

	return file.Close()
}
