package snapshot

import "image"

// AntialiasClassifier decides whether a differing pixel is edge smoothing.
// img is the raster whose neighbourhood around (x,y) is examined and other is
// the raster it is being compared with; both have the same size and x,y are
// relative to their origins.
type AntialiasClassifier interface {
	IsAntialiased(img, other *image.RGBA, x, y int) bool
}

// ClassifierFunc adapts a function to AntialiasClassifier.
type ClassifierFunc func(img, other *image.RGBA, x, y int) bool

// IsAntialiased calls f.
func (f ClassifierFunc) IsAntialiased(img, other *image.RGBA, x, y int) bool {
	return f(img, other, x, y)
}

// NeighborhoodClassifier flags a pixel as anti-aliased when it sits between
// a darker and a brighter neighbour, has at most two identical neighbours, and
// the darkest or brightest neighbour lies in a flat region in both images.
//
// Known behaviour: a one pixel wide line drawn across a flat background in
// only one of the images is counted, since it has no brighter neighbour. A
// smoothed column between two flat regions is ignored. Pixels inside a
// horizontal gradient are never flagged because their extreme neighbours only
// have two identical neighbours of their own.
type NeighborhoodClassifier struct{}

// IsAntialiased implements AntialiasClassifier.
func (NeighborhoodClassifier) IsAntialiased(img, other *image.RGBA, x, y int) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x0, y0 := max(x-1, 0), max(y-1, 0)
	x2, y2 := min(x+1, w-1), min(y+1, h-1)

	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}

	center := pixelAt(img, x, y)
	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int

	for ny := y0; ny <= y2; ny++ {
		for nx := x0; nx <= x2; nx++ {
			if nx == x && ny == y {
				continue
			}

			delta := brightnessDelta(center, pixelAt(img, nx, ny))
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < minDelta:
				minDelta, minX, minY = delta, nx, ny
			case delta > maxDelta:
				maxDelta, maxX, maxY = delta, nx, ny
			}
		}
	}

	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minX, minY) && hasManySiblings(other, minX, minY)) ||
		(hasManySiblings(img, maxX, maxY) && hasManySiblings(other, maxX, maxY))
}

// hasManySiblings reports whether more than two neighbours of (x,y) share
// its exact colour. Image borders count as one sibling.
func hasManySiblings(img *image.RGBA, x, y int) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x0, y0 := max(x-1, 0), max(y-1, 0)
	x2, y2 := min(x+1, w-1), min(y+1, h-1)

	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}

	center := pixelAt(img, x, y)
	for ny := y0; ny <= y2; ny++ {
		for nx := x0; nx <= x2; nx++ {
			if nx == x && ny == y {
				continue
			}
			if pixelAt(img, nx, ny) == center {
				zeroes++
				if zeroes > 2 {
					return true
				}
			}
		}
	}
	return false
}
