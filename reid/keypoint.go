// Package reid relocalizes lost trackers anywhere in the frame using
// FAST-style keypoints with rotated binary descriptors, RANSAC homography
// fitting and color histogram gating.
package reid

import (
	"image"
	"math"
	"sort"

	"github.com/pointtrack/go-pointtrack/frame"
)

// Keypoint is a detected corner with its response score and orientation.
type Keypoint struct {
	// X, Y is the pixel position
	X int
	Y int
	// Score is the corner response used for ranking and suppression
	Score int
	// Angle is the intensity centroid orientation in radians
	Angle float64
}

// circle16 is the Bresenham circle of radius 3 used by the segment test.
var circle16 = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// patchMargin keeps keypoints far enough from the frame edge that the
// rotated descriptor patch always fits.
const patchMargin = 16

// DetectKeypoints runs a FAST-9 segment test over the region of interest,
// suppresses non-maxima and returns at most maxCount keypoints ordered by
// response.  The ROI is clamped to the frame's descriptor-safe interior.
func DetectKeypoints(f *frame.Frame, roi image.Rectangle, threshold, maxCount int) []Keypoint {
	inner := image.Rect(patchMargin, patchMargin, f.Width()-patchMargin, f.Height()-patchMargin)
	roi = roi.Intersect(inner)

	if roi.Empty() {
		return nil
	}

	gray := f.Gray()
	w := f.Width()

	var found []Keypoint

	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			score, ok := segmentTest(gray, w, x, y, threshold)
			if !ok {
				continue
			}
			found = append(found, Keypoint{X: x, Y: y, Score: score})
		}
	}

	if len(found) == 0 {
		return nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Score > found[j].Score })

	// greedy non-max suppression, strongest first
	var kept []Keypoint

	for _, kp := range found {
		suppressed := false
		for _, k := range kept {
			dx := kp.X - k.X
			dy := kp.Y - k.Y
			if dx*dx+dy*dy <= 16 {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kp.Angle = orientation(gray, w, kp.X, kp.Y)
		kept = append(kept, kp)
		if len(kept) >= maxCount {
			break
		}
	}

	return kept
}

// segmentTest checks for 9 contiguous circle pixels all brighter or all
// darker than the center by the threshold, returning the response score.
func segmentTest(gray []uint8, w, x, y, threshold int) (int, bool) {
	c := int(gray[y*w+x])

	var brighter, darker [16]bool
	score := 0

	for i, off := range circle16 {
		v := int(gray[(y+off[1])*w+x+off[0]])
		d := v - c
		if d > threshold {
			brighter[i] = true
		} else if d < -threshold {
			darker[i] = true
		}
		if d < 0 {
			d = -d
		}
		score += d
	}

	if hasArc(brighter, 9) || hasArc(darker, 9) {
		return score, true
	}

	return 0, false
}

// hasArc reports whether the circular flag array contains a run of at
// least n consecutive set entries, wrapping around.
func hasArc(flags [16]bool, n int) bool {
	run := 0

	for i := 0; i < 32; i++ {
		if flags[i%16] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}

	return false
}

// orientation computes the intensity centroid angle over a radius 7 disc,
// giving the descriptor its rotation reference.
func orientation(gray []uint8, w, x, y int) float64 {
	var m10, m01 int

	for dy := -7; dy <= 7; dy++ {
		for dx := -7; dx <= 7; dx++ {
			if dx*dx+dy*dy > 49 {
				continue
			}
			v := int(gray[(y+dy)*w+x+dx])
			m10 += dx * v
			m01 += dy * v
		}
	}

	return math.Atan2(float64(m01), float64(m10))
}
