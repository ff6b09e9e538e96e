package estimate

import (
	"github.com/pointtrack/go-pointtrack/frame"
)

// GlobalConfig holds the grid correlation parameters for camera motion
// estimation.
type GlobalConfig struct {
	// GridCols and GridRows partition the frame into correlation cells
	GridCols int
	GridRows int
	// PatchSize is the odd side length of each cell patch
	PatchSize int
	// SearchRadius bounds the displacement search per cell in pixels
	SearchRadius int
	// CoarseStep is the initial search stride before local refinement
	CoarseStep int
	// MinScore discards cell matches below this correlation score
	MinScore float32
}

// GlobalEstimator measures camera-induced frame translation by correlating
// a coarse grid of patches between the previous and current frame.  Per-cell
// displacements are combined with a median so cells landing on
// independently moving foreground do not skew the result.
type GlobalEstimator struct {
	cfg GlobalConfig
}

// NewGlobalEstimator creates an estimator with the given grid parameters.
func NewGlobalEstimator(cfg GlobalConfig) *GlobalEstimator {
	return &GlobalEstimator{cfg: cfg}
}

// Estimate returns the frame translation between prev and cur.  Confidence
// is the mean matched score scaled by match density; it is zero when no
// cell produced an acceptable match or when either frame is missing.
func (e *GlobalEstimator) Estimate(prev, cur *frame.Frame) GlobalMotion {
	if prev == nil || cur == nil {
		return GlobalMotion{}
	}

	margin := e.cfg.PatchSize/2 + e.cfg.SearchRadius + 1
	cellW := prev.Width() / e.cfg.GridCols
	cellH := prev.Height() / e.cfg.GridRows
	total := e.cfg.GridCols * e.cfg.GridRows

	var dxs, dys []float32
	var scoreSum float32

	for row := 0; row < e.cfg.GridRows; row++ {
		for col := 0; col < e.cfg.GridCols; col++ {
			cx := col*cellW + cellW/2
			cy := row*cellH + cellH/2

			if cx < margin || cy < margin ||
				cx >= prev.Width()-margin || cy >= prev.Height()-margin {
				continue
			}

			p, ok := frame.CapturePatch(prev, cx, cy, e.cfg.PatchSize)
			if !ok {
				continue
			}

			dx, dy, score, ok := e.searchCell(cur, cx, cy, p)
			if !ok || score < e.cfg.MinScore {
				continue
			}

			dxs = append(dxs, dx)
			dys = append(dys, dy)
			scoreSum += score
		}
	}

	if len(dxs) == 0 {
		return GlobalMotion{}
	}

	conf := (scoreSum / float32(len(dxs))) * (float32(len(dxs)) / float32(total))

	return GlobalMotion{
		DX:   median(dxs),
		DY:   median(dys),
		Conf: clamp32(conf, 0, 1),
	}
}

// searchCell finds the best correlation displacement for one cell patch,
// scanning at the coarse step first and refining at unit step around the
// coarse winner.
func (e *GlobalEstimator) searchCell(cur *frame.Frame, cx, cy int, p frame.Patch) (float32, float32, float32, bool) {
	r := e.cfg.SearchRadius
	step := e.cfg.CoarseStep
	if step < 1 {
		step = 1
	}

	bestDX, bestDY := 0, 0
	bestScore := float32(-2)
	found := false

	for dy := -r; dy <= r; dy += step {
		for dx := -r; dx <= r; dx += step {
			score, ok := frame.NCCAt(cur, cx+dx, cy+dy, p)
			if !ok {
				continue
			}
			if score > bestScore {
				bestScore = score
				bestDX, bestDY = dx, dy
				found = true
			}
		}
	}

	if !found {
		return 0, 0, 0, false
	}

	// unit step refinement around the coarse winner
	refDX, refDY := bestDX, bestDY

	for dy := bestDY - step + 1; dy <= bestDY+step-1; dy++ {
		for dx := bestDX - step + 1; dx <= bestDX+step-1; dx++ {
			if dx == bestDX && dy == bestDY {
				continue
			}
			score, ok := frame.NCCAt(cur, cx+dx, cy+dy, p)
			if ok && score > bestScore {
				bestScore = score
				refDX, refDY = dx, dy
			}
		}
	}

	return float32(refDX), float32(refDY), bestScore, true
}
