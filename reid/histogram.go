package reid

import (
	"math"

	"github.com/pointtrack/go-pointtrack/frame"
)

// histogram bin counts per channel
const (
	histBinsH = 8
	histBinsS = 8
	histBinsV = 4
)

// Histogram is a normalized joint HSV color histogram of an image region.
type Histogram [histBinsH * histBinsS * histBinsV]float32

// ComputeHistogram builds the joint HSV histogram of the square region of
// the given radius centered at (cx, cy), clamped to frame bounds.  It
// returns false for an empty region.
func ComputeHistogram(f *frame.Frame, cx, cy, radius int) (Histogram, bool) {
	x0 := cx - radius
	y0 := cy - radius
	x1 := cx + radius
	y1 := cy + radius

	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 >= f.Width() {
		x1 = f.Width() - 1
	}
	if y1 >= f.Height() {
		y1 = f.Height() - 1
	}

	if x1 < x0 || y1 < y0 {
		return Histogram{}, false
	}

	var h Histogram
	count := 0

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			r, g, b := f.RGBAt(x, y)
			hh, ss, vv := rgbToHSV(r, g, b)

			hi := int(hh / 360 * histBinsH)
			if hi >= histBinsH {
				hi = histBinsH - 1
			}
			si := int(ss * histBinsS)
			if si >= histBinsS {
				si = histBinsS - 1
			}
			vi := int(vv * histBinsV)
			if vi >= histBinsV {
				vi = histBinsV - 1
			}

			h[(hi*histBinsS+si)*histBinsV+vi]++
			count++
		}
	}

	if count == 0 {
		return Histogram{}, false
	}

	inv := 1 / float32(count)
	for i := range h {
		h[i] *= inv
	}

	return h, true
}

// Similarity is the histogram intersection of two normalized histograms,
// in [0,1] where 1 means identical color signatures.
func (h Histogram) Similarity(other Histogram) float32 {
	var sum float32

	for i := range h {
		if h[i] < other[i] {
			sum += h[i]
		} else {
			sum += other[i]
		}
	}

	return sum
}

// Blend updates the histogram by bounded exponential blending toward a
// fresh measurement and renormalizes.
func (h *Histogram) Blend(fresh Histogram, alpha float32) {
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}

	var total float32

	for i := range h {
		h[i] = (1-alpha)*h[i] + alpha*fresh[i]
		total += h[i]
	}

	if total > 0 {
		for i := range h {
			h[i] /= total
		}
	}
}

// rgbToHSV converts 8-bit RGB to HSV with hue in degrees and saturation
// and value in [0,1].
func rgbToHSV(r, g, b uint8) (float64, float64, float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	var h float64

	switch {
	case delta == 0:
		h = 0
	case max == rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}

	if h < 0 {
		h += 360
	}

	s := 0.0
	if max > 0 {
		s = delta / max
	}

	return h, s, max
}
