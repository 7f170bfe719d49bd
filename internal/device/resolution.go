package device

import "math"

// DefaultResolution is the device size that recordings are replayed at.
//
// Recordings were historically rescaled with 1376 for press and 1380 for
// release and move of the same gesture. Every conversion goes through a
// single Resolution so the two can no longer drift; which width is correct
// for the target device is still an open product decision, so it is
// configurable.
var DefaultResolution = Resolution{Width: 1376, Height: 800}

// Resolution converts normalized screen fractions to device pixels.
type Resolution struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Scale maps a normalized point to pixels, clamped to [0,Width]x[0,Height].
func (r Resolution) Scale(nx, ny float64) (int, int) {
	return scaleAxis(nx, r.Width), scaleAxis(ny, r.Height)
}

func scaleAxis(v float64, size int) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return size
	}
	return int(v * float64(size))
}
