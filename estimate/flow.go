package estimate

import (
	"math"
	"sort"

	"github.com/pointtrack/go-pointtrack/frame"
)

// FlowConfig holds the block search parameters for the optical flow
// matcher.
type FlowConfig struct {
	// PatchSize is the odd block side length
	PatchSize int
	// SampleStride subsamples the block when scoring, 1 scores every pixel
	SampleStride int
	// BaseRadius is the search radius at rest
	BaseRadius int
	// MaxRadius caps the adaptive radius
	MaxRadius int
	// SpeedRadiusGain grows the radius per pixel of tracker speed
	SpeedRadiusGain float32
	// GlobalRadiusGain grows the radius per pixel of global motion
	GlobalRadiusGain float32
	// OcclusionRadiusGain grows the radius per occluded frame
	OcclusionRadiusGain float32
	// CoarseStep is the first pass stride
	CoarseStep int
	// TopK candidates are re-ranked with the gradient term
	TopK int
	// GradientWeight blends gradient consistency into the match score
	GradientWeight float32
	// FwdBwdThreshold rejects matches whose round trip error exceeds it
	FwdBwdThreshold float32
	// BoundaryMargin invalidates searches whose block crosses it
	BoundaryMargin int
	// MinConfidence discards weak matches
	MinConfidence float32
}

// FlowRequest describes one tracker's search for the current frame.
type FlowRequest struct {
	// PrevX, PrevY is the tracker position in the previous frame
	PrevX float32
	PrevY float32
	// CenterX, CenterY is the predicted search center in the current frame
	CenterX float32
	CenterY float32
	// Speed is the tracker speed in pixels per frame
	Speed float32
	// GlobalMag is the global motion magnitude
	GlobalMag float32
	// FramesOccluded is the tracker occlusion backlog
	FramesOccluded int
}

// FlowMatcher performs coarse-to-fine block search with gradient re-ranking
// and a forward-backward consistency check, the primary anti-drift gate.
type FlowMatcher struct {
	cfg FlowConfig
}

// NewFlowMatcher creates a matcher with the given parameters.
func NewFlowMatcher(cfg FlowConfig) *FlowMatcher {
	return &FlowMatcher{cfg: cfg}
}

// flowSample is one reference pixel of the search block.
type flowSample struct {
	ox, oy  int
	r, g, b uint8
	grad    float32
}

// scored pairs a candidate displacement with its match score.
type scored struct {
	x, y  int
	score float32
}

// Radius returns the adaptive search radius for the request.
func (m *FlowMatcher) Radius(req FlowRequest) int {
	r := float32(m.cfg.BaseRadius) +
		req.Speed*m.cfg.SpeedRadiusGain +
		req.GlobalMag*m.cfg.GlobalRadiusGain +
		float32(req.FramesOccluded)*m.cfg.OcclusionRadiusGain

	if r > float32(m.cfg.MaxRadius) {
		return m.cfg.MaxRadius
	}

	return int(r)
}

// InBounds reports whether a search centered at (cx, cy) stays inside
// the boundary margin of the frame.  Match produces nothing outside it,
// which callers treat as the target leaving the frame rather than an
// occlusion in place
func (m *FlowMatcher) InBounds(f *frame.Frame, cx, cy float32) bool {
	x := int(math.Round(float64(cx)))
	y := int(math.Round(float64(cy)))

	edge := m.cfg.BoundaryMargin + m.cfg.PatchSize/2

	return x >= edge && y >= edge &&
		x < f.Width()-edge && y < f.Height()-edge
}

// Match searches the current frame for the tracker block.  It returns no
// candidate when the search block would cross the boundary margin, when the
// forward-backward round trip disagrees, or when confidence ends up below
// the configured minimum.
func (m *FlowMatcher) Match(prev, cur *frame.Frame, req FlowRequest) (Candidate, bool) {
	if prev == nil || cur == nil {
		return Candidate{}, false
	}

	px := int(math.Round(float64(req.PrevX)))
	py := int(math.Round(float64(req.PrevY)))
	cx := int(math.Round(float64(req.CenterX)))
	cy := int(math.Round(float64(req.CenterY)))

	if !m.InBounds(cur, req.CenterX, req.CenterY) {
		return Candidate{}, false
	}

	ref := m.sampleBlock(prev, px, py)
	if ref == nil {
		return Candidate{}, false
	}

	radius := m.Radius(req)

	fx, fy, fwdScore, ok := m.search(cur, ref, cx, cy, radius)
	if !ok {
		return Candidate{}, false
	}

	// backward pass from the forward winner toward the prior position
	back := m.sampleBlock(cur, fx, fy)
	if back == nil {
		return Candidate{}, false
	}

	bx, by, _, ok := m.search(prev, back, px, py, radius)
	if !ok {
		return Candidate{}, false
	}

	fbErr := hypot32(float32(bx-px), float32(by-py))
	if fbErr > m.cfg.FwdBwdThreshold {
		return Candidate{}, false
	}

	conf := clamp32(0.65*fwdScore+0.35*(1-fbErr/m.cfg.FwdBwdThreshold), 0, 1)
	if conf < m.cfg.MinConfidence {
		return Candidate{}, false
	}

	return Candidate{
		X:      float32(fx),
		Y:      float32(fy),
		Conf:   conf,
		Source: SourceFlow,
	}, true
}

// sampleBlock gathers the subsampled reference pixels and their gradient
// magnitudes around (x, y), or nil when the block crosses the frame bounds.
func (m *FlowMatcher) sampleBlock(f *frame.Frame, x, y int) []flowSample {
	half := m.cfg.PatchSize / 2
	stride := m.cfg.SampleStride
	if stride < 1 {
		stride = 1
	}

	if x-half < 1 || y-half < 1 || x+half >= f.Width()-1 || y+half >= f.Height()-1 {
		return nil
	}

	var out []flowSample

	for oy := -half; oy <= half; oy += stride {
		for ox := -half; ox <= half; ox += stride {
			r, g, b := f.RGBAt(x+ox, y+oy)
			out = append(out, flowSample{
				ox: ox, oy: oy,
				r: r, g: g, b: b,
				grad: gradMag(f, x+ox, y+oy),
			})
		}
	}

	return out
}

// search runs the coarse scan, gradient re-ranking of the top candidates
// and unit step refinement around the winner.
func (m *FlowMatcher) search(f *frame.Frame, ref []flowSample, cx, cy, radius int) (int, int, float32, bool) {
	step := m.cfg.CoarseStep
	if step < 1 {
		step = 1
	}

	var top []scored

	for dy := -radius; dy <= radius; dy += step {
		for dx := -radius; dx <= radius; dx += step {
			s, ok := m.colorScore(f, ref, cx+dx, cy+dy)
			if !ok {
				continue
			}
			top = append(top, scored{x: cx + dx, y: cy + dy, score: s})
		}
	}

	if len(top) == 0 {
		return 0, 0, 0, false
	}

	sort.Slice(top, func(i, j int) bool { return top[i].score > top[j].score })

	k := m.cfg.TopK
	if k < 1 || k > len(top) {
		k = len(top)
	}

	// gradient-consistency re-rank of the leading candidates
	w := m.cfg.GradientWeight
	best := scored{score: -1}

	for _, c := range top[:k] {
		g, ok := m.gradScore(f, ref, c.x, c.y)
		if !ok {
			continue
		}
		combined := (1-w)*c.score + w*g
		if combined > best.score {
			best = scored{x: c.x, y: c.y, score: combined}
		}
	}

	if best.score < 0 {
		return 0, 0, 0, false
	}

	// unit step refinement
	for dy := -step + 1; dy <= step-1; dy++ {
		for dx := -step + 1; dx <= step-1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			s, ok := m.colorScore(f, ref, best.x+dx, best.y+dy)
			if !ok {
				continue
			}
			g, ok := m.gradScore(f, ref, best.x+dx, best.y+dy)
			if !ok {
				continue
			}
			combined := (1-w)*s + w*g
			if combined > best.score {
				best = scored{x: best.x + dx, y: best.y + dy, score: combined}
			}
		}
	}

	return best.x, best.y, best.score, true
}

// colorScore evaluates the normalized color difference between the
// reference block and the frame window at (x, y).  Higher is better.
func (m *FlowMatcher) colorScore(f *frame.Frame, ref []flowSample, x, y int) (float32, bool) {
	half := m.cfg.PatchSize / 2

	if x-half < 0 || y-half < 0 || x+half >= f.Width() || y+half >= f.Height() {
		return 0, false
	}

	var sad int

	for _, s := range ref {
		r, g, b := f.RGBAt(x+s.ox, y+s.oy)
		sad += absInt(int(r)-int(s.r)) + absInt(int(g)-int(s.g)) + absInt(int(b)-int(s.b))
	}

	maxSad := len(ref) * 3 * 255

	return 1 - float32(sad)/float32(maxSad), true
}

// gradScore evaluates gradient magnitude consistency between the reference
// block and the window at (x, y).  Higher is better.
func (m *FlowMatcher) gradScore(f *frame.Frame, ref []flowSample, x, y int) (float32, bool) {
	half := m.cfg.PatchSize / 2

	if x-half < 1 || y-half < 1 || x+half >= f.Width()-1 || y+half >= f.Height()-1 {
		return 0, false
	}

	var sad float32

	for _, s := range ref {
		d := gradMag(f, x+s.ox, y+s.oy) - s.grad
		if d < 0 {
			d = -d
		}
		sad += d
	}

	maxSad := float32(len(ref)) * 255

	return 1 - sad/maxSad, true
}

// gradMag computes the central difference gradient magnitude at (x, y).
func gradMag(f *frame.Frame, x, y int) float32 {
	gx := int(f.GrayAt(x+1, y)) - int(f.GrayAt(x-1, y))
	gy := int(f.GrayAt(x, y+1)) - int(f.GrayAt(x, y-1))
	return hypot32(float32(gx)/2, float32(gy)/2)
}

// absInt returns the absolute value of an integer.
func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
