package main

import "math"

// CreateIconRGBA generates a 22x22 RGBA byte slice for the tray icon: a
// rounded speech bubble with a tail at the lower left and three dots cut out
// of it. White on transparent background with antialiased edges.
func CreateIconRGBA() ([]byte, int, int) {
	const size = 22
	rgba := make([]byte, size*size*4)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			idx := (y*size + x) * 4
			fx := float64(x) + 0.5
			fy := float64(y) + 0.5

			// Bubble body: rounded rectangle 2..20 x 3..16, corner radius 4.
			alpha := coverage(roundedRectDist(fx, fy, 2, 3, 20, 16, 4))

			// Tail: triangle hanging off the lower left of the body.
			if fy >= 15 && fy <= 20 && fx >= 5 && fx <= 10-(fy-15) {
				alpha = 1.0
			}

			// Three dots, punched out.
			for _, cx := range []float64{7, 11, 15} {
				d := math.Hypot(fx-cx, fy-9.5)
				alpha = math.Min(alpha, 1-coverage(d-1.4))
			}

			if alpha > 0.0 {
				rgba[idx] = 255
				rgba[idx+1] = 255
				rgba[idx+2] = 255
				rgba[idx+3] = uint8(math.Min(alpha, 1.0) * 255.0)
			}
		}
	}

	return rgba, size, size
}

// roundedRectDist is the signed distance from (x, y) to the rounded
// rectangle, negative inside.
func roundedRectDist(x, y, x0, y0, x1, y1, r float64) float64 {
	cx, cy := (x0+x1)/2, (y0+y1)/2
	hx, hy := (x1-x0)/2-r, (y1-y0)/2-r
	dx := math.Max(math.Abs(x-cx)-hx, 0)
	dy := math.Max(math.Abs(y-cy)-hy, 0)
	inside := math.Min(math.Max(math.Abs(x-cx)-hx, math.Abs(y-cy)-hy), 0)
	return math.Hypot(dx, dy) + inside - r
}

// coverage maps a signed distance to pixel coverage over a 0.8px edge.
func coverage(d float64) float64 {
	switch {
	case d <= -0.4:
		return 1
	case d >= 0.4:
		return 0
	}
	return (0.4 - d) / 0.8
}
