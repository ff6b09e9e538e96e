package main

import (
	"flag"
	"image"
	"image/color"
	"log"
	"log/slog"
	"os"
	"time"

	pointtrack "github.com/pointtrack/go-pointtrack"
)

// texture is a deterministic binary lattice value for cell (cx, cy)
func texture(cx, cy int) float64 {
	h := uint32(cx)*0x9E3779B1 ^ uint32(cy)*0x85EBCA77
	h ^= h >> 13
	h *= 0xC2B2AE35
	h ^= h >> 16
	if h&1 == 1 {
		return 255
	}
	return 0
}

// textureAt interpolates the lattice so the object has smooth structure
func textureAt(x, y int) uint8 {
	cx, fx := x>>2, float64(x&3)/4
	cy, fy := y>>2, float64(y&3)/4

	top := texture(cx, cy)*(1-fx) + texture(cx+1, cy)*fx
	bot := texture(cx, cy+1)*(1-fx) + texture(cx+1, cy+1)*fx

	return uint8(top*(1-fy) + bot*fy)
}

// renderFrame paints the synthetic scene with the object at (cx, cy),
// or without the object when hidden is set
func renderFrame(w, h, cx, cy int, hidden bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}

	if hidden {
		return img
	}

	for y := cy - 12; y <= cy+12; y++ {
		for x := cx - 12; x <= cx+12; x++ {
			v := textureAt(x-cx+500, y-cy+500)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	return img
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	frames := flag.Int("n", 120, "Number of frames to simulate")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: slog.LevelInfo}))

	engine, err := pointtrack.NewEngine(pointtrack.DefaultConfig(), logger)

	if err != nil {
		log.Fatal("Error creating engine: ", err)
	}

	ts := time.Now()

	// seed frame with the object at rest, then register a tracker on it
	engine.Process(renderFrame(640, 480, 100, 240, false), ts, nil)

	id, err := engine.CreateTracker("target", 100, 240)

	if err != nil {
		log.Fatal("Error creating tracker: ", err)
	}

	// the object drifts right, disappears for a stretch, then reappears
	// further along its path
	for k := 1; k <= *frames; k++ {
		ts = ts.Add(33 * time.Millisecond)

		x := 100 + 3*k
		hidden := k > 40 && k <= 70

		res := engine.Process(renderFrame(640, 480, x, 240, hidden), ts, nil)

		for _, t := range res.Trackers {
			log.Printf("frame %3d  %-8s  (%6.1f, %6.1f)  conf %.2f",
				res.Seq, t.State, t.X, t.Y, t.Confidence)
		}
	}

	if tr, ok := engine.Tracker(id); ok {
		log.Printf("final state %s at (%.1f, %.1f) after %d frames tracked",
			tr.State, tr.Motion.X, tr.Motion.Y, tr.FramesTracked)
	}

	stats := engine.Stats()
	log.Printf("processed %d frames, %d relocations",
		stats.FramesProcessed, stats.Relocations)
}
