package estimate

import (
	"image"
	"image/color"
	"time"

	"github.com/pointtrack/go-pointtrack/frame"
)

// latticeAt is a deterministic binary lattice value for cell (cx, cy)
func latticeAt(cx, cy int) float64 {
	h := uint32(cx)*0x9E3779B1 ^ uint32(cy)*0x85EBCA77
	h ^= h >> 13
	h *= 0xC2B2AE35
	h ^= h >> 16
	if h&1 == 1 {
		return 255
	}
	return 0
}

// noiseAt is a deterministic smooth texture value for (x, y): binary
// lattice noise with 4px spacing, bilinearly interpolated so block matching
// has a real correlation basin around the true offset
func noiseAt(x, y int) uint8 {
	cx, fx := x>>2, float64(x&3)/4
	cy, fy := y>>2, float64(y&3)/4

	top := latticeAt(cx, cy)*(1-fx) + latticeAt(cx+1, cy)*fx
	bot := latticeAt(cx, cy+1)*(1-fx) + latticeAt(cx+1, cy+1)*fx

	return uint8(top*(1-fy) + bot*fy)
}

// noiseFrame builds a frame filled with deterministic noise shifted by
// (dx, dy), so two calls with different shifts are exact translations of
// each other
func noiseFrame(w, h, dx, dy int) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := noiseAt(x-dx, y-dy)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return frame.NewFrame(img, 1, time.Now())
}

// flatFrame builds a uniform frame
func flatFrame(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// stampNoise writes a noise textured square of the given half size centered
// at (cx, cy)
func stampNoise(img *image.RGBA, cx, cy, half int) {
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			v := noiseAt(x-cx+1000, y-cy+1000)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func asFrame(img *image.RGBA) *frame.Frame {
	return frame.NewFrame(img, 1, time.Now())
}

func defaultFlowConfig() FlowConfig {
	return FlowConfig{
		PatchSize:           17,
		SampleStride:        2,
		BaseRadius:          24,
		MaxRadius:           64,
		SpeedRadiusGain:     2,
		GlobalRadiusGain:    2,
		OcclusionRadiusGain: 1,
		CoarseStep:          3,
		TopK:                5,
		GradientWeight:      0.25,
		FwdBwdThreshold:     6,
		BoundaryMargin:      6,
		MinConfidence:       0.25,
	}
}

func defaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		GridCols:     5,
		GridRows:     3,
		PatchSize:    17,
		SearchRadius: 14,
		CoarseStep:   2,
		MinScore:     0.6,
	}
}
