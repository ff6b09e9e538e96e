package reid

import (
	"image"
	"math"
	"math/rand"

	"github.com/pointtrack/go-pointtrack/frame"
)

// Config holds the re-identification search parameters.
type Config struct {
	// MaxKeypoints caps keypoint extraction per region
	MaxKeypoints int
	// FastThreshold is the corner segment test threshold
	FastThreshold int
	// RatioTest is the nearest / second-nearest acceptance ratio
	RatioTest float64
	// MaxHamming rejects matches above this descriptor distance
	MaxHamming int
	// RansacIters, RansacInlierDist, RansacMinInliers parameterize the
	// homography fit
	RansacIters      int
	RansacInlierDist float64
	RansacMinInliers int
	// RansacSeed makes the sampler deterministic for a given searcher
	RansacSeed int64
	// HistRadius is the color histogram region radius
	HistRadius int
	// MinHistSim gates candidates on color signature similarity
	MinHistSim float32
	// TemplateMinScore gates the high-confidence template path
	TemplateMinScore float32
	// GridMinScore gates the coarse grid path after refinement
	GridMinScore float32
	// ROIBase and ROIGrowth size the local search region, growing with
	// frames lost
	ROIBase   int
	ROIGrowth int
	// EnvelopeBase and EnvelopeGrowth bound the allowed distance from the
	// last known position, growing with frames lost
	EnvelopeBase   float32
	EnvelopeGrowth float32
	// EdgeRingInterval scans frame-edge re-entry zones every n-th lost
	// frame
	EdgeRingInterval int
	// GridScanInterval and GridScanAfter schedule the sparse full-frame
	// scan while long lost
	GridScanInterval int
	GridScanAfter    int
	// GridScanScale is the downscale factor of the coarse scan
	GridScanScale int
}

// Via names the path that produced a re-identification candidate.
type Via int

const (
	// ViaOrb is keypoint matching plus homography projection
	ViaOrb Via = iota
	// ViaTemplate is a high-confidence template correlation match
	ViaTemplate
	// ViaGrid is the coarse color-signature grid scan
	ViaGrid
)

// String returns the path name.
func (v Via) String() string {
	switch v {
	case ViaOrb:
		return "orb"
	case ViaTemplate:
		return "template"
	case ViaGrid:
		return "grid"
	}
	return "unknown"
}

// Query is the per-tracker state a search works from.  All fields are read
// only during the search.
type Query struct {
	// LastX, LastY is the last known good position
	LastX float32
	LastY float32
	// FramesLost is how long the tracker has been lost
	FramesLost int
	// Keypoints and Descriptors were captured at creation, in the
	// coordinates of the creation frame
	Keypoints   []Keypoint
	Descriptors []Descriptor
	// AnchorX, AnchorY is the tracker point in creation frame coordinates,
	// projected through the fitted homography to relocalize
	AnchorX float64
	AnchorY float64
	// Histogram is the tracker's maintained color signature
	Histogram Histogram
	// Template is the tracker's appearance patch
	Template frame.Patch
}

// Result is a raw re-identification candidate.  Acceptance still requires
// two-frame hysteresis by the caller; a single strong match never moves a
// track by itself.
type Result struct {
	// X, Y is the candidate absolute position
	X float32
	Y float32
	// Conf is the candidate confidence in [0,1]
	Conf float32
	// Via names the producing path
	Via Via
}

// Searcher relocalizes lost trackers.  The search escalates from a local
// region around the last known position to frame-edge re-entry zones and
// finally a sparse full-frame grid scan, trading CPU against reacquisition
// latency.
type Searcher struct {
	cfg Config
	rng *rand.Rand
}

// NewSearcher creates a searcher with the given parameters.
func NewSearcher(cfg Config) *Searcher {
	return &Searcher{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.RansacSeed)),
	}
}

// Search runs one re-identification attempt against the current frame.  It
// returns false when no path produced a candidate that passes the distance
// envelope and color gates.
func (s *Searcher) Search(cur *frame.Frame, q Query) (Result, bool) {
	if cur == nil {
		return Result{}, false
	}

	regions := s.regions(cur, q)

	// keypoint path first: it localizes precisely and survives appearance
	// rotation
	for _, roi := range regions {
		if r, ok := s.searchOrb(cur, q, roi); ok {
			return r, true
		}
	}

	for _, roi := range regions {
		if r, ok := s.searchTemplate(cur, q, roi); ok {
			return r, true
		}
	}

	if s.gridScanDue(q.FramesLost) {
		if r, ok := s.searchGrid(cur, q); ok {
			return r, true
		}
	}

	return Result{}, false
}

// regions builds the escalating list of search regions for this attempt.
func (s *Searcher) regions(cur *frame.Frame, q Query) []image.Rectangle {
	half := s.cfg.ROIBase/2 + q.FramesLost*s.cfg.ROIGrowth

	maxHalf := cur.Width() / 2
	if cur.Height()/2 < maxHalf {
		maxHalf = cur.Height() / 2
	}
	if half > maxHalf {
		half = maxHalf
	}

	cx := int(q.LastX)
	cy := int(q.LastY)

	out := []image.Rectangle{image.Rect(cx-half, cy-half, cx+half, cy+half)}

	// frame-edge ring: common re-entry zones, every few frames
	if s.cfg.EdgeRingInterval > 0 && q.FramesLost > 0 && q.FramesLost%s.cfg.EdgeRingInterval == 0 {
		band := s.cfg.ROIBase
		w := cur.Width()
		h := cur.Height()

		out = append(out,
			image.Rect(0, 0, w, band),
			image.Rect(0, h-band, w, h),
			image.Rect(0, band, band, h-band),
			image.Rect(w-band, band, w, h-band),
		)
	}

	return out
}

// gridScanDue reports whether the sparse full-frame scan runs this
// attempt.
func (s *Searcher) gridScanDue(framesLost int) bool {
	if s.cfg.GridScanInterval <= 0 || framesLost < s.cfg.GridScanAfter {
		return false
	}
	return framesLost%s.cfg.GridScanInterval == 0
}

// searchOrb extracts keypoints in the region, matches descriptors, fits a
// homography and projects the stored anchor point through it.
func (s *Searcher) searchOrb(cur *frame.Frame, q Query, roi image.Rectangle) (Result, bool) {
	if len(q.Keypoints) < 4 || len(q.Descriptors) != len(q.Keypoints) {
		return Result{}, false
	}

	kps := DetectKeypoints(cur, roi, s.cfg.FastThreshold, s.cfg.MaxKeypoints)
	if len(kps) < s.cfg.RansacMinInliers {
		return Result{}, false
	}

	descs := DescribeAll(cur, kps)

	matches := MatchDescriptors(q.Descriptors, descs, s.cfg.RatioTest, s.cfg.MaxHamming)
	if len(matches) < s.cfg.RansacMinInliers {
		return Result{}, false
	}

	src := make([]Point2f, len(matches))
	dst := make([]Point2f, len(matches))

	for i, m := range matches {
		src[i] = Point2f{X: float64(q.Keypoints[m.StoredIdx].X), Y: float64(q.Keypoints[m.StoredIdx].Y)}
		dst[i] = Point2f{X: float64(kps[m.FoundIdx].X), Y: float64(kps[m.FoundIdx].Y)}
	}

	h, inliers, ok := EstimateHomography(src, dst,
		s.cfg.RansacIters, s.cfg.RansacInlierDist, s.cfg.RansacMinInliers, s.rng)
	if !ok {
		return Result{}, false
	}

	px, py, ok := h.Project(q.AnchorX, q.AnchorY)
	if !ok {
		return Result{}, false
	}

	x := float32(px)
	y := float32(py)

	if !s.gates(cur, q, x, y) {
		return Result{}, false
	}

	conf := float32(inliers) / float32(len(matches))
	if conf > 1 {
		conf = 1
	}

	return Result{X: x, Y: y, Conf: conf, Via: ViaOrb}, true
}

// searchTemplate slides the appearance template over the region at a
// coarse step with unit refinement, accepting only high-confidence
// correlation.
func (s *Searcher) searchTemplate(cur *frame.Frame, q Query, roi image.Rectangle) (Result, bool) {
	x, y, score, ok := s.templateScan(cur, q.Template, roi, 3)
	if !ok || score < s.cfg.TemplateMinScore {
		return Result{}, false
	}

	if !s.gates(cur, q, float32(x), float32(y)) {
		return Result{}, false
	}

	return Result{X: float32(x), Y: float32(y), Conf: score, Via: ViaTemplate}, true
}

// searchGrid scans a downscaled frame for the tracker's color signature,
// then refines the best cell with a full resolution template match.
func (s *Searcher) searchGrid(cur *frame.Frame, q Query) (Result, bool) {
	scale := s.cfg.GridScanScale
	if scale < 1 {
		scale = 1
	}

	small := frame.Downscale(cur, scale)

	radius := s.cfg.HistRadius / scale
	if radius < 2 {
		radius = 2
	}

	stride := radius
	bestSim := float32(-1)
	bestX, bestY := 0, 0

	for y := radius; y < small.Height()-radius; y += stride {
		for x := radius; x < small.Width()-radius; x += stride {
			h, ok := ComputeHistogram(small, x, y, radius)
			if !ok {
				continue
			}
			if sim := q.Histogram.Similarity(h); sim > bestSim {
				bestSim = sim
				bestX, bestY = x, y
			}
		}
	}

	if bestSim < s.cfg.MinHistSim {
		return Result{}, false
	}

	// refine around the winning cell at full resolution
	fx := bestX * scale
	fy := bestY * scale
	pad := s.cfg.HistRadius

	x, y, score, ok := s.templateScan(cur, q.Template,
		image.Rect(fx-pad, fy-pad, fx+pad, fy+pad), 2)
	if !ok || score < s.cfg.GridMinScore {
		return Result{}, false
	}

	if !s.gates(cur, q, float32(x), float32(y)) {
		return Result{}, false
	}

	return Result{X: float32(x), Y: float32(y), Conf: bestSim * score, Via: ViaGrid}, true
}

// templateScan is a coarse-to-fine NCC sweep of the template over a
// region.
func (s *Searcher) templateScan(f *frame.Frame, tpl frame.Patch, roi image.Rectangle, step int) (int, int, float32, bool) {
	if tpl.Std == 0 || len(tpl.Pix) == 0 {
		return 0, 0, 0, false
	}

	roi = roi.Intersect(image.Rect(0, 0, f.Width(), f.Height()))
	if roi.Empty() {
		return 0, 0, 0, false
	}

	bestX, bestY := 0, 0
	bestScore := float32(-2)
	found := false

	for y := roi.Min.Y; y < roi.Max.Y; y += step {
		for x := roi.Min.X; x < roi.Max.X; x += step {
			score, ok := frame.NCCAt(f, x, y, tpl)
			if !ok {
				continue
			}
			if score > bestScore {
				bestScore = score
				bestX, bestY = x, y
				found = true
			}
		}
	}

	if !found {
		return 0, 0, 0, false
	}

	for dy := -step + 1; dy <= step-1; dy++ {
		for dx := -step + 1; dx <= step-1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			score, ok := frame.NCCAt(f, bestX+dx, bestY+dy, tpl)
			if ok && score > bestScore {
				bestScore = score
				bestX, bestY = bestX+dx, bestY+dy
			}
		}
	}

	return bestX, bestY, bestScore, true
}

// gates applies the distance envelope and color-signature checks shared by
// every path.
func (s *Searcher) gates(cur *frame.Frame, q Query, x, y float32) bool {
	if !cur.Contains(int(x), int(y)) {
		return false
	}

	envelope := s.cfg.EnvelopeBase + float32(q.FramesLost)*s.cfg.EnvelopeGrowth
	dist := math.Hypot(float64(x-q.LastX), float64(y-q.LastY))

	if dist > float64(envelope) {
		return false
	}

	// a tracker whose signature capture failed at creation has nothing
	// to gate on
	var sum float32
	for _, v := range q.Histogram {
		sum += v
	}
	if sum == 0 {
		return true
	}

	h, ok := ComputeHistogram(cur, int(x), int(y), s.cfg.HistRadius)
	if !ok {
		return false
	}

	return q.Histogram.Similarity(h) >= s.cfg.MinHistSim
}
