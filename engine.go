package pointtrack

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pointtrack/go-pointtrack/detect"
	"github.com/pointtrack/go-pointtrack/estimate"
	"github.com/pointtrack/go-pointtrack/frame"
	"github.com/pointtrack/go-pointtrack/overlay"
	"github.com/pointtrack/go-pointtrack/reid"
	"github.com/pointtrack/go-pointtrack/track"
)

// AnchorTracker is an optional external anchor tracking module.  The
// engine hands it the frame pair and the tracker's opaque anchor set and
// uses the returned position as one more fusion candidate
type AnchorTracker interface {
	Track(prev, cur *frame.Frame, anchors any) (x, y, conf float64, ok bool)
}

// Validation carries the result of an external identification service.
// It only ever updates descriptive metadata, except Invalid which forces
// the tracker out of Tracking
type Validation struct {
	Label       string
	Description string
	Features    []string
	Invalid     bool
}

// Engine runs one full tracking pass per frame over all trackers
type Engine struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	store    *frame.Store
	global   *estimate.GlobalEstimator
	flow     *estimate.FlowMatcher
	template *estimate.TemplateMatcher
	fuser    *estimate.Fuser
	searcher *reid.Searcher
	kf       *track.KalmanFilter
	trail    *track.Trail

	trackers []*track.Tracker
	strokes  []*overlay.Stroke
	anchor   AnchorTracker

	autoLabelSeq      int
	frames            uint64
	relocations       uint64
	detectionsClaimed uint64
}

// NewEngine validates the configuration and builds an engine.  A nil
// logger falls back to slog.Default
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:      cfg,
		log:      logger,
		store:    frame.NewStore(),
		global:   estimate.NewGlobalEstimator(cfg.Global),
		flow:     estimate.NewFlowMatcher(cfg.Flow),
		template: estimate.NewTemplateMatcher(cfg.Template),
		fuser:    estimate.NewFuser(cfg.Fuse),
		searcher: reid.NewSearcher(cfg.Reid),
		kf: track.NewKalmanFilter(cfg.KalmanPositionWeight,
			cfg.KalmanVelocityWeight),
		trail: track.NewTrail(cfg.TrailLength),
	}, nil
}

// SetAnchorTracker installs the optional anchor module
func (e *Engine) SetAnchorTracker(a AnchorTracker) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.anchor = a
}

// observation is the estimator output for one tracker, produced without
// mutating any shared state so trackers can be estimated in parallel
type observation struct {
	cands        []estimate.Candidate
	templateConf float32
	templateOK   bool
	// edgeOut is set when the predicted search center left the frame or
	// the flow search crossed the boundary margin
	edgeOut bool
}

// Process runs one tracking pass.  dets is the optional external
// detector feed for this frame; nil means no detector ran
func (e *Engine) Process(img *image.RGBA, ts time.Time,
	dets []detect.Detection) *FrameResult {

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.store.Push(img, ts)
	prev := e.store.Previous()

	var gm estimate.GlobalMotion

	if prev != nil {
		gm = e.global.Estimate(prev, cur)
	}

	claims := e.claimDetections(cur, dets)

	// estimator phase: every tracker reads the frame pair and its own
	// snapshot, so they run concurrently
	obs := make([]observation, len(e.trackers))

	var wg sync.WaitGroup

	for i, tr := range e.trackers {
		if tr.Frozen {
			continue
		}

		if tr.State != track.StateTracking && tr.State != track.StateOccluded {
			continue
		}

		wg.Add(1)

		go func(i int, tr *track.Tracker) {
			defer wg.Done()
			obs[i] = e.observe(prev, cur, gm, tr, claims, dets)
		}(i, tr)
	}

	wg.Wait()

	// remember display positions so attached strokes can follow the
	// per-frame displacement
	before := make(map[string][2]float64, len(e.trackers))

	for _, tr := range e.trackers {
		before[tr.ID] = [2]float64{tr.Motion.DisplayX, tr.Motion.DisplayY}
	}

	// reducer phase: apply the winning delta per tracker sequentially
	for i, tr := range e.trackers {
		e.reduce(cur, tr, obs[i], claims, dets)
	}

	e.moveStrokes(before)

	e.frames++

	return e.buildResult(cur, gm)
}

// claimDetections partitions the detector pool among all unfrozen
// trackers
func (e *Engine) claimDetections(cur *frame.Frame,
	dets []detect.Detection) map[string]int {

	if len(dets) == 0 {
		return nil
	}

	var claimants []detect.Claimant

	for _, tr := range e.trackers {
		if tr.Frozen {
			continue
		}

		claimants = append(claimants, detect.Claimant{
			ID: tr.ID,
			X:  tr.Motion.X,
			Y:  tr.Motion.Y,
		})
	}

	claims := detect.Claim(dets, claimants, cur.Width(), cur.Height(),
		e.cfg.DetectionClaimDistance)

	e.detectionsClaimed += uint64(len(claims))

	return claims
}

// observe collects this frame's candidates for a tracking tracker
func (e *Engine) observe(prev, cur *frame.Frame, gm estimate.GlobalMotion,
	tr *track.Tracker, claims map[string]int,
	dets []detect.Detection) observation {

	var o observation

	px, py := estimate.PredictCenter(
		float32(tr.Motion.X), float32(tr.Motion.Y),
		float32(tr.Motion.VX), float32(tr.Motion.VY), gm, e.cfg.Predict)

	o.edgeOut = !cur.Contains(int(px), int(py)) ||
		!e.flow.InBounds(cur, px, py)

	var (
		flowCand, tplCand estimate.Candidate
		flowOK, tplOK     bool
	)

	if prev != nil {
		flowCand, flowOK = e.flow.Match(prev, cur, estimate.FlowRequest{
			PrevX:          float32(tr.Motion.X),
			PrevY:          float32(tr.Motion.Y),
			CenterX:        px,
			CenterY:        py,
			Speed:          float32(tr.Motion.Speed()),
			GlobalMag:      gm.Magnitude(),
			FramesOccluded: tr.FramesOccluded,
		})
	}

	if tpl := tr.Appearance.Template; tpl != nil {
		tplCand, tplOK = e.template.Match(cur, *tpl, px, py,
			e.cfg.TemplateSearchRadius)

		if tplOK {
			o.templateConf = tplCand.Conf
			o.templateOK = true
		}
	}

	// the drift check displaces flow only when its own score is very
	// high or flow is weak; in the middle range both feed fusion
	if flowOK && tplOK &&
		(tplCand.Conf >= e.cfg.DriftOverrideScore ||
			flowCand.Conf < e.cfg.DriftWeakFlow) {
		flowOK = false
	}

	if flowOK {
		o.cands = append(o.cands, flowCand)
	}

	if tplOK {
		o.cands = append(o.cands, tplCand)
	}

	if e.anchor != nil && tr.Anchors != nil && prev != nil {
		if x, y, conf, ok := e.anchor.Track(prev, cur, tr.Anchors); ok {
			o.cands = append(o.cands, estimate.Candidate{
				X:      float32(x),
				Y:      float32(y),
				Conf:   float32(conf),
				Source: estimate.SourceAnchor,
			})
		}
	}

	if di, ok := claims[tr.ID]; ok {
		x, y := dets[di].Center(cur.Width(), cur.Height())

		o.cands = append(o.cands, estimate.Candidate{
			X:      float32(x),
			Y:      float32(y),
			Conf:   float32(dets[di].Conf),
			Source: estimate.SourceDetector,
		})
	}

	return o
}

// reduce applies one tracker's outcome for this frame
func (e *Engine) reduce(cur *frame.Frame, tr *track.Tracker,
	o observation, claims map[string]int, dets []detect.Detection) {

	if tr.Frozen {
		return
	}

	switch tr.State {
	case track.StateTracking, track.StateOccluded:
		tr.Predict(e.kf)

		fused, ok := e.fuser.Fuse(o.cands)

		if ok && !cur.Contains(int(fused.X), int(fused.Y)) {
			e.log.Debug("tracker left frame bounds",
				"tracker", tr.ID, "x", fused.X, "y", fused.Y)
			tr.MarkLost()
			return
		}

		// a search pinned against the frame edge with nothing matching
		// means the target left the frame, not that it is occluded in
		// place; going Lost at once lets the re-entry search start early
		if !ok && o.edgeOut {
			e.log.Debug("tracker search left frame bounds",
				"tracker", tr.ID, "x", tr.Motion.X, "y", tr.Motion.Y)
			tr.MarkLost()
			return
		}

		tr.Observe(e.kf, float64(fused.X), float64(fused.Y),
			float64(fused.Conf), ok, e.cfg.Lifecycle)

		switch tr.State {
		case track.StateTracking:
			e.refreshAppearance(cur, tr, o)
			e.trail.Add(tr.ID, tr.Motion.DisplayX, tr.Motion.DisplayY)

			if di, claimed := claims[tr.ID]; claimed {
				e.renameFromDetection(tr, dets[di])
			}
		case track.StateLost:
			e.log.Info("tracker lost after occlusion",
				"tracker", tr.ID, "label", tr.Label)
		}

	case track.StateLost, track.StateSearching:
		// a claimed detection shortcuts the search entirely
		if di, claimed := claims[tr.ID]; claimed {
			x, y := dets[di].Center(cur.Width(), cur.Height())

			tr.Reacquire(e.kf, x, y, dets[di].Conf)
			e.renameFromDetection(tr, dets[di])
			e.relocations++

			e.log.Info("tracker reacquired from detection",
				"tracker", tr.ID, "label", tr.Label)
			return
		}

		tr.TickLost(true, e.cfg.Lifecycle)

		if tr.Frozen {
			e.log.Info("tracker frozen",
				"tracker", tr.ID, "framesLost", tr.FramesLost)
			return
		}

		var tpl frame.Patch
		if tr.Appearance.Template != nil {
			tpl = *tr.Appearance.Template
		}

		res, ok := e.searcher.Search(cur, reid.Query{
			LastX:       float32(tr.Motion.X),
			LastY:       float32(tr.Motion.Y),
			FramesLost:  tr.FramesLost,
			Keypoints:   tr.Reid.Keypoints,
			Descriptors: tr.Reid.Descriptors,
			AnchorX:     tr.Reid.AnchorX,
			AnchorY:     tr.Reid.AnchorY,
			Histogram:   tr.Appearance.Histogram,
			Template:    tpl,
		})

		if !ok {
			tr.ClearStaged()
			return
		}

		if tr.ReidCandidate(e.kf, float64(res.X), float64(res.Y),
			float64(res.Conf), e.cfg.Lifecycle) {
			e.relocations++

			e.log.Info("tracker relocated",
				"tracker", tr.ID, "via", res.Via.String(),
				"x", res.X, "y", res.Y)
		}
	}
}

// refreshAppearance folds the current appearance into the stored
// template, histogram and embedding by bounded blending
func (e *Engine) refreshAppearance(cur *frame.Frame, tr *track.Tracker,
	o observation) {

	x, y := int(tr.Motion.X), int(tr.Motion.Y)

	if tpl := tr.Appearance.Template; tpl != nil && o.templateOK {
		sinceMs := cur.Timestamp().Sub(tr.Appearance.TemplateUpdatedAt).
			Milliseconds()

		if e.template.ShouldUpdate(o.templateConf, sinceMs) {
			if fresh, ok := frame.CapturePatch(cur, x, y,
				e.cfg.Template.PatchSize); ok {
				tpl.BlendToward(fresh, e.cfg.Template.BlendAlpha)
				tr.Appearance.TemplateUpdatedAt = cur.Timestamp()
			}
		}
	}

	if tr.Appearance.HasHistogram {
		if h, ok := reid.ComputeHistogram(cur, x, y,
			e.cfg.Reid.HistRadius); ok {
			tr.Appearance.Histogram.Blend(h, e.cfg.HistogramBlendAlpha)
		}
	}

	if tr.Appearance.Embeddings != nil {
		if feat, ok := reid.Embed(cur, x, y, e.cfg.EmbedSize); ok {
			tr.Appearance.Embeddings.Update(feat)
		}
	}
}

// renameFromDetection adopts the detector's class label for auto-labeled
// trackers
func (e *Engine) renameFromDetection(tr *track.Tracker, d detect.Detection) {
	if !tr.AutoLabel || d.Label == "" {
		return
	}

	e.log.Info("tracker renamed from detection",
		"tracker", tr.ID, "old", tr.Label, "new", d.Label)

	tr.Label = d.Label
	tr.AutoLabel = false
}

// moveStrokes propagates tracker displacement to attached strokes
func (e *Engine) moveStrokes(before map[string][2]float64) {
	for _, s := range e.strokes {
		if s.TrackerID == "" {
			continue
		}

		tr, ok := e.findTracker(s.TrackerID)
		if !ok {
			continue
		}

		b, ok := before[tr.ID]
		if !ok {
			continue
		}

		s.Translate(tr.Motion.DisplayX-b[0], tr.Motion.DisplayY-b[1])
	}
}

func (e *Engine) findTracker(id string) (*track.Tracker, bool) {
	for _, tr := range e.trackers {
		if tr.ID == id {
			return tr, true
		}
	}
	return nil, false
}

// buildResult snapshots the per-frame output
func (e *Engine) buildResult(cur *frame.Frame,
	gm estimate.GlobalMotion) *FrameResult {

	res := &FrameResult{
		Seq:    cur.Seq(),
		Global: gm,
	}

	for _, tr := range e.trackers {
		res.Trackers = append(res.Trackers, TrackerResult{
			ID:         tr.ID,
			Label:      tr.Label,
			X:          tr.Motion.DisplayX,
			Y:          tr.Motion.DisplayY,
			State:      tr.State,
			Confidence: tr.Confidence,
			Frozen:     tr.Frozen,
			Trail:      e.trail.GetPoints(tr.ID),
		})
	}

	for _, s := range e.strokes {
		pts := make([]overlay.Point, len(s.Points))
		copy(pts, s.Points)

		res.Strokes = append(res.Strokes, StrokeResult{
			ID:        s.ID,
			TrackerID: s.TrackerID,
			Points:    pts,
		})
	}

	return res
}

// CreateTracker captures a new tracker from the current frame at the
// seed position.  An empty label is replaced by a generated one that a
// claimed detection may later rename
func (e *Engine) CreateTracker(label string, x, y float64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.store.Current()

	if cur == nil {
		return "", errors.New("no frame ingested yet")
	}

	if !cur.Contains(int(x), int(y)) {
		return "", errors.Errorf("seed (%f,%f) outside %dx%d frame",
			x, y, cur.Width(), cur.Height())
	}

	autoLabel := false

	if label == "" {
		e.autoLabelSeq++
		label = fmt.Sprintf("Object %d", e.autoLabelSeq)
		autoLabel = true
	}

	tr := track.New(e.kf, label, autoLabel, x, y)

	// single initial appearance capture; afterwards only bounded
	// blending touches these
	if p, ok := frame.CapturePatch(cur, int(x), int(y),
		e.cfg.Template.PatchSize); ok {
		tr.Appearance.Template = &p
		tr.Appearance.TemplateUpdatedAt = cur.Timestamp()
	}

	if h, ok := reid.ComputeHistogram(cur, int(x), int(y),
		e.cfg.Reid.HistRadius); ok {
		tr.Appearance.Histogram = h
		tr.Appearance.HasHistogram = true
	}

	tr.Appearance.Embeddings = reid.NewEmbeddingHistory(e.cfg.EmbedAlpha,
		e.cfg.EmbedHistory)

	if feat, ok := reid.Embed(cur, int(x), int(y), e.cfg.EmbedSize); ok {
		tr.Appearance.Embeddings.Update(feat)
	}

	half := e.cfg.Reid.ROIBase

	roi := image.Rect(int(x)-half, int(y)-half, int(x)+half, int(y)+half)

	tr.Reid.Keypoints = reid.DetectKeypoints(cur, roi,
		e.cfg.Reid.FastThreshold, e.cfg.Reid.MaxKeypoints)
	tr.Reid.Descriptors = reid.DescribeAll(cur, tr.Reid.Keypoints)
	tr.Reid.AnchorX = x
	tr.Reid.AnchorY = y

	e.trackers = append(e.trackers, tr)

	e.log.Info("tracker created",
		"tracker", tr.ID, "label", tr.Label,
		"x", x, "y", y, "keypoints", len(tr.Reid.Keypoints))

	return tr.ID, nil
}

// RemoveTracker deletes a tracker and detaches its strokes
func (e *Engine) RemoveTracker(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, tr := range e.trackers {
		if tr.ID != id {
			continue
		}

		e.trackers = append(e.trackers[:i], e.trackers[i+1:]...)
		e.trail.Remove(id)

		for _, s := range e.strokes {
			if s.TrackerID == id {
				s.Detach()
			}
		}

		e.log.Info("tracker removed", "tracker", id)
		return true
	}

	return false
}

// Tracker returns the tracker with the given id.  The returned value is
// only safe to read between Process calls
func (e *Engine) Tracker(id string) (*track.Tracker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.findTracker(id)
}

// ApplyValidation applies an external identification result.  Arriving
// asynchronously, it only updates descriptive metadata, except an
// invalid verdict which forces the tracker out of Tracking
func (e *Engine) ApplyValidation(id string, v Validation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.findTracker(id)
	if !ok {
		return false
	}

	if v.Label != "" {
		tr.Label = v.Label
		tr.AutoLabel = false
	}

	if v.Description != "" {
		tr.Meta.Description = v.Description
	}

	if len(v.Features) > 0 {
		tr.Meta.Features = v.Features
	}

	if v.Invalid {
		e.log.Info("tracker invalidated", "tracker", id)
		tr.MarkLost()
	}

	return true
}

// AddStroke registers an overlay stroke and attaches it to the first
// tracker whose position it contains
func (e *Engine) AddStroke(points []overlay.Point) *overlay.Stroke {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := overlay.NewStroke(points)

	for _, tr := range e.trackers {
		if tr.Frozen {
			continue
		}

		if s.Contains(tr.Motion.DisplayX, tr.Motion.DisplayY) {
			s.AttachTo(tr.ID)

			e.log.Debug("stroke attached",
				"stroke", s.ID, "tracker", tr.ID)
			break
		}
	}

	e.strokes = append(e.strokes, s)

	return s
}

// RemoveStroke deletes a stroke
func (e *Engine) RemoveStroke(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.strokes {
		if s.ID == id {
			e.strokes = append(e.strokes[:i], e.strokes[i+1:]...)
			return true
		}
	}

	return false
}

// Reset atomically clears all tracker and motion history state
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Reset()
	e.trail.Reset()
	e.trackers = nil

	for _, s := range e.strokes {
		s.Detach()
	}

	e.log.Info("engine reset")
}

// Stats returns an engine counters snapshot
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		FramesProcessed:   e.frames,
		Relocations:       e.relocations,
		DetectionsClaimed: e.detectionsClaimed,
		TrackersByState:   make(map[track.State]int),
	}

	for _, tr := range e.trackers {
		if tr.Frozen {
			s.FrozenTrackers++
		} else {
			s.ActiveTrackers++
		}
		s.TrackersByState[tr.State]++
	}

	return s
}
