package pointtrack

import (
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pointtrack/go-pointtrack/detect"
	"github.com/pointtrack/go-pointtrack/overlay"
	"github.com/pointtrack/go-pointtrack/track"
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

// flatImage builds a uniform frame
func flatImage(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// stampObject writes a noise textured square of the given half size
// centered at (cx, cy).  The texture is sampled in object-local
// coordinates so the same object can be stamped at any position
func stampObject(img *image.RGBA, cx, cy, half int) {
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			v := noiseAt(x-cx+2000, y-cy+2000)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	e, err := NewEngine(cfg, testLogger())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	return e
}

func TestEngineTracksTranslation(t *testing.T) {
	e := testEngine(t, DefaultConfig())
	ts := time.Unix(0, 0)

	img := flatImage(400, 300, 128)
	stampObject(img, 100, 100, 10)
	e.Process(img, ts, nil)

	id, err := e.CreateTracker("cup", 100, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var last *FrameResult

	for k := 1; k <= 5; k++ {
		ts = ts.Add(33 * time.Millisecond)

		img := flatImage(400, 300, 128)
		stampObject(img, 100+5*k, 100+3*k, 10)

		last = e.Process(img, ts, nil)
	}

	tr, ok := e.Tracker(id)
	if !ok {
		t.Fatal("tracker missing")
	}

	if tr.State != track.StateTracking {
		t.Fatalf("state %v, want Tracking", tr.State)
	}

	if tr.Motion.X < 122 || tr.Motion.X > 127 {
		t.Errorf("x %f, want ~125", tr.Motion.X)
	}

	if tr.Motion.Y < 113 || tr.Motion.Y > 117 {
		t.Errorf("y %f, want ~115", tr.Motion.Y)
	}

	if tr.Motion.VX < 2 {
		t.Errorf("vx %f, want positive after constant motion", tr.Motion.VX)
	}

	if len(last.Trackers) != 1 || len(last.Trackers[0].Trail) == 0 {
		t.Error("result must carry the tracker with a trail")
	}
}

func TestEngineSingleStepFilterAndDisplay(t *testing.T) {
	e := testEngine(t, DefaultConfig())
	ts := time.Unix(0, 0)

	img := flatImage(400, 300, 128)
	stampObject(img, 100, 100, 10)
	e.Process(img, ts, nil)

	id, err := e.CreateTracker("cup", 100, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ts = ts.Add(33 * time.Millisecond)
	moved := flatImage(400, 300, 128)
	stampObject(moved, 105, 103, 10)
	res := e.Process(moved, ts, nil)

	// the wide initial covariance makes the first measurement dominate,
	// so the filtered estimate lands next to the true position
	tr, _ := e.Tracker(id)

	if tr.Motion.X < 104 || tr.Motion.X > 105.5 {
		t.Errorf("filtered x %f, want ~105", tr.Motion.X)
	}

	if tr.Motion.Y < 102.4 || tr.Motion.Y > 103.4 {
		t.Errorf("filtered y %f, want ~103", tr.Motion.Y)
	}

	// the reported position is the smoothed one, which trails the filter
	// at low speed instead of jumping the full step
	got := res.Trackers[0].X

	if got != tr.Motion.DisplayX {
		t.Fatalf("result x %f, want the displayed position %f",
			got, tr.Motion.DisplayX)
	}

	if got <= 100.5 || got >= tr.Motion.X {
		t.Errorf("displayed x %f, want between seed and filtered %f",
			got, tr.Motion.X)
	}
}

func TestEngineOcclusionToLost(t *testing.T) {
	// the raised flow floor rejects the weak matches an occluder
	// produces, while exact matches during normal tracking score 1
	cfg := DefaultConfig()
	cfg.Flow.MinConfidence = 0.95

	e := testEngine(t, cfg)
	ts := time.Unix(0, 0)

	img := flatImage(400, 300, 128)
	stampObject(img, 100, 100, 10)
	e.Process(img, ts, nil)

	if _, err := e.CreateTracker("disc", 100, 100); err != nil {
		t.Fatalf("create: %v", err)
	}

	// a full-frame occluder alternating between black and white defeats
	// every estimator in place: flow finds only weak matches, the
	// template finds no variance, and the position never leaves bounds
	occluder := func(k int) *image.RGBA {
		if k%2 == 0 {
			return flatImage(400, 300, 255)
		}
		return flatImage(400, 300, 0)
	}

	timeout := cfg.Lifecycle.OcclusionTimeout

	for k := 1; k <= timeout; k++ {
		ts = ts.Add(33 * time.Millisecond)
		res := e.Process(occluder(k), ts, nil)

		if got := res.Trackers[0].State; got != track.StateOccluded {
			t.Fatalf("occluded frame %d: state %v, want Occluded", k, got)
		}
	}

	ts = ts.Add(33 * time.Millisecond)
	res := e.Process(occluder(timeout+1), ts, nil)

	if got := res.Trackers[0].State; got != track.StateLost {
		t.Fatalf("state %v, want Lost after occlusion timeout", got)
	}

	ts = ts.Add(33 * time.Millisecond)
	res = e.Process(occluder(timeout+2), ts, nil)

	if got := res.Trackers[0].State; got != track.StateSearching {
		t.Fatalf("state %v, want Searching while lost", got)
	}
}

func TestEngineBoundaryExitGoesLost(t *testing.T) {
	e := testEngine(t, DefaultConfig())
	ts := time.Unix(0, 0)

	// so close to the frame edge the flow search cannot fit inside the
	// boundary margin
	img := flatImage(400, 300, 128)
	stampObject(img, 12, 150, 10)
	e.Process(img, ts, nil)

	if _, err := e.CreateTracker("disc", 12, 150); err != nil {
		t.Fatalf("create: %v", err)
	}

	// the object leaves the frame: no estimator matches and the search
	// is pinned against the edge, which is an exit, not an occlusion
	ts = ts.Add(33 * time.Millisecond)
	res := e.Process(flatImage(400, 300, 128), ts, nil)

	if got := res.Trackers[0].State; got != track.StateLost {
		t.Fatalf("state %v, want Lost on frame exit", got)
	}

	ts = ts.Add(33 * time.Millisecond)
	res = e.Process(flatImage(400, 300, 128), ts, nil)

	if got := res.Trackers[0].State; got != track.StateSearching {
		t.Fatalf("state %v, want Searching right after frame exit", got)
	}
}

func TestEngineRelocalizesAfterLoss(t *testing.T) {
	e := testEngine(t, DefaultConfig())
	ts := time.Unix(0, 0)

	img := flatImage(400, 300, 128)
	stampObject(img, 12, 150, 10)
	e.Process(img, ts, nil)

	id, err := e.CreateTracker("disc", 12, 150)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// the object slips out at the frame edge and the tracker goes Lost
	// at once
	ts = ts.Add(33 * time.Millisecond)
	e.Process(flatImage(400, 300, 128), ts, nil)

	tr, _ := e.Tracker(id)
	if tr.State != track.StateLost {
		t.Fatalf("state %v, want Lost before reappearance", tr.State)
	}

	// the object reappears at a new position; the first sighting only
	// stages a candidate, the second confirms it
	reappear := func() *FrameResult {
		ts = ts.Add(33 * time.Millisecond)
		img := flatImage(400, 300, 128)
		stampObject(img, 40, 130, 10)
		return e.Process(img, ts, nil)
	}

	res := reappear()
	if got := res.Trackers[0].State; got != track.StateSearching {
		t.Fatalf("state %v, want Searching after single sighting", got)
	}

	res = reappear()
	if got := res.Trackers[0].State; got != track.StateTracking {
		t.Fatalf("state %v, want Tracking after confirmed sighting", got)
	}

	reappear()

	tr, _ = e.Tracker(id)
	if tr.Motion.X < 38 || tr.Motion.X > 42 || tr.Motion.Y < 128 || tr.Motion.Y > 132 {
		t.Errorf("relocated to (%f,%f), want ~(40,130)", tr.Motion.X, tr.Motion.Y)
	}

	if s := e.Stats(); s.Relocations != 1 {
		t.Errorf("relocations %d, want 1", s.Relocations)
	}
}

func TestEngineDetectionReacquiresLost(t *testing.T) {
	e := testEngine(t, DefaultConfig())
	ts := time.Unix(0, 0)

	img := flatImage(400, 300, 128)
	stampObject(img, 12, 150, 10)
	e.Process(img, ts, nil)

	id, err := e.CreateTracker("", 12, 150)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tr, _ := e.Tracker(id)
	if tr.Label != "Object 1" || !tr.AutoLabel {
		t.Fatalf("label %q auto %v, want generated label", tr.Label, tr.AutoLabel)
	}

	// exit at the frame edge
	ts = ts.Add(33 * time.Millisecond)
	e.Process(flatImage(400, 300, 128), ts, nil)

	tr, _ = e.Tracker(id)
	if tr.State != track.StateLost {
		t.Fatalf("state %v, want Lost", tr.State)
	}

	// detection centered at (50,150), well within claim distance of the
	// last known position
	dets := []detect.Detection{{
		X: 0.075, Y: 150.0/300 - 0.0667, W: 0.1, H: 0.1333,
		Label: "ball", Conf: 0.9,
	}}

	ts = ts.Add(33 * time.Millisecond)
	res := e.Process(flatImage(400, 300, 128), ts, dets)

	if got := res.Trackers[0].State; got != track.StateTracking {
		t.Fatalf("state %v, want Tracking after detection claim", got)
	}

	tr, _ = e.Tracker(id)
	if tr.Label != "ball" || tr.AutoLabel {
		t.Errorf("label %q auto %v, want detector label", tr.Label, tr.AutoLabel)
	}

	if tr.Motion.X < 48 || tr.Motion.X > 52 || tr.Motion.Y < 148 || tr.Motion.Y > 152 {
		t.Errorf("reacquired at (%f,%f), want ~(50,150)", tr.Motion.X, tr.Motion.Y)
	}

	if s := e.Stats(); s.DetectionsClaimed == 0 {
		t.Error("claimed detection not counted")
	}
}

func TestEngineStrokeFollowsTracker(t *testing.T) {
	e := testEngine(t, DefaultConfig())
	ts := time.Unix(0, 0)

	img := flatImage(400, 300, 128)
	stampObject(img, 100, 100, 10)
	e.Process(img, ts, nil)

	id, err := e.CreateTracker("cup", 100, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	s := e.AddStroke([]overlay.Point{
		{X: 85, Y: 85}, {X: 115, Y: 85}, {X: 115, Y: 115}, {X: 85, Y: 115},
	})

	if s.TrackerID != id {
		t.Fatal("stroke around the tracker must attach to it")
	}

	ts = ts.Add(33 * time.Millisecond)

	moved := flatImage(400, 300, 128)
	stampObject(moved, 110, 106, 10)
	res := e.Process(moved, ts, nil)

	tr, _ := e.Tracker(id)
	dx := tr.Motion.DisplayX - 100

	if dx <= 0 {
		t.Fatalf("display did not follow the object, dx %f", dx)
	}

	if len(res.Strokes) != 1 {
		t.Fatalf("strokes in result: %d", len(res.Strokes))
	}

	got := res.Strokes[0].Points[0].X

	if got < 85+dx-0.5 || got > 85+dx+0.5 {
		t.Errorf("stroke x %f, want %f", got, 85+dx)
	}
}

func TestEngineRemoveTrackerDetachesStrokes(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	img := flatImage(400, 300, 128)
	stampObject(img, 100, 100, 10)
	e.Process(img, time.Unix(0, 0), nil)

	id, _ := e.CreateTracker("cup", 100, 100)

	s := e.AddStroke([]overlay.Point{
		{X: 90, Y: 90}, {X: 110, Y: 90}, {X: 110, Y: 110}, {X: 90, Y: 110},
	})

	if !e.RemoveTracker(id) {
		t.Fatal("remove failed")
	}

	if s.TrackerID != "" {
		t.Error("stroke still attached after tracker removal")
	}

	if e.RemoveTracker(id) {
		t.Error("second remove must report missing")
	}
}

func TestEngineApplyValidation(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	img := flatImage(400, 300, 128)
	stampObject(img, 100, 100, 10)
	e.Process(img, time.Unix(0, 0), nil)

	id, _ := e.CreateTracker("", 100, 100)

	if !e.ApplyValidation(id, Validation{
		Label:       "mug",
		Description: "white ceramic mug",
		Features:    []string{"handle", "rim"},
	}) {
		t.Fatal("validation not applied")
	}

	tr, _ := e.Tracker(id)

	if tr.Label != "mug" || tr.AutoLabel {
		t.Errorf("label %q auto %v", tr.Label, tr.AutoLabel)
	}

	if tr.Meta.Description == "" || len(tr.Meta.Features) != 2 {
		t.Error("metadata not applied")
	}

	e.ApplyValidation(id, Validation{Invalid: true})

	tr, _ = e.Tracker(id)
	if tr.State != track.StateLost {
		t.Errorf("state %v, want Lost after invalid verdict", tr.State)
	}

	if e.ApplyValidation("missing", Validation{Label: "x"}) {
		t.Error("unknown id must report false")
	}
}

func TestEngineCreateTrackerErrors(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	if _, err := e.CreateTracker("cup", 100, 100); err == nil {
		t.Error("create before any frame must fail")
	}

	e.Process(flatImage(400, 300, 128), time.Unix(0, 0), nil)

	if _, err := e.CreateTracker("cup", 500, 100); err == nil {
		t.Error("create outside the frame must fail")
	}
}

func TestEngineReset(t *testing.T) {
	e := testEngine(t, DefaultConfig())

	img := flatImage(400, 300, 128)
	stampObject(img, 100, 100, 10)
	e.Process(img, time.Unix(0, 0), nil)

	e.CreateTracker("cup", 100, 100)

	s := e.AddStroke([]overlay.Point{
		{X: 90, Y: 90}, {X: 110, Y: 90}, {X: 110, Y: 110}, {X: 90, Y: 110},
	})

	e.Reset()

	if got := e.Stats().ActiveTrackers; got != 0 {
		t.Errorf("trackers after reset: %d", got)
	}

	if s.TrackerID != "" {
		t.Error("stroke still attached after reset")
	}

	if _, err := e.CreateTracker("cup", 100, 100); err == nil {
		t.Error("create right after reset must fail until a frame arrives")
	}
}

func newIdleSession(t *testing.T) *Session {
	t.Helper()

	s := &Session{
		engine:  testEngine(t, DefaultConfig()),
		results: make(chan *FrameResult, 2),
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	return s
}

func TestSessionMailboxOverwrite(t *testing.T) {
	s := newIdleSession(t)

	t1 := time.Unix(1, 0)
	t2 := time.Unix(2, 0)

	s.Submit(flatImage(64, 64, 0), t1, nil)
	s.Submit(flatImage(64, 64, 0), t2, nil)

	if c, total := s.Drops(); c != 1 || total != 1 {
		t.Fatalf("drops %d/%d, want 1/1", c, total)
	}

	f, ok := s.take()
	if !ok {
		t.Fatal("take failed")
	}

	if !f.ts.Equal(t2) {
		t.Error("mailbox must hold the newest frame")
	}

	s.Submit(flatImage(64, 64, 0), time.Unix(3, 0), nil)

	if c, _ := s.Drops(); c != 0 {
		t.Errorf("consecutive drops %d, want reset after consume", c)
	}
}

func TestSessionDiscardsStaleResult(t *testing.T) {
	s := newIdleSession(t)

	s.Submit(flatImage(64, 64, 0), time.Unix(1, 0), nil)

	f, _ := s.take()

	s.Reset()
	s.deliver(f, &FrameResult{Seq: 1})

	if len(s.results) != 0 {
		t.Fatal("result from before the reset must be discarded")
	}

	s.Submit(flatImage(64, 64, 0), time.Unix(2, 0), nil)

	f, _ = s.take()
	s.deliver(f, &FrameResult{Seq: 2})

	if len(s.results) != 1 {
		t.Fatal("post-reset result must be delivered")
	}
}

func TestSessionSkipsStaleFrame(t *testing.T) {
	s := newIdleSession(t)

	s.Submit(flatImage(64, 64, 128), time.Unix(1, 0), nil)

	f, _ := s.take()
	s.Reset()

	// the worker drops frames taken before a reset without processing
	// them, so the cleared engine never sees the dead session's pixels
	if !s.stale(f) {
		t.Fatal("frame taken before the reset must be stale")
	}

	if _, err := s.engine.CreateTracker("cup", 10, 10); err == nil {
		t.Error("engine store must stay empty after a reset")
	}

	s.Submit(flatImage(64, 64, 128), time.Unix(2, 0), nil)

	f, _ = s.take()
	if s.stale(f) {
		t.Fatal("post-reset frame must not be stale")
	}
}

func TestSessionDeliversLatest(t *testing.T) {
	s := NewSession(testEngine(t, DefaultConfig()), 4)
	defer s.Close()

	s.Submit(flatImage(64, 64, 128), time.Unix(1, 0), nil)

	select {
	case res := <-s.Results():
		if res.Seq != 1 {
			t.Errorf("seq %d, want 1", res.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result from the session worker")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Flow.PatchSize = 16
	if cfg.Validate() == nil {
		t.Error("even flow patch size must be rejected")
	}

	cfg = DefaultConfig()
	cfg.Lifecycle.OcclusionConfidence = 0
	if cfg.Validate() == nil {
		t.Error("zero occlusion confidence must be rejected")
	}

	cfg = DefaultConfig()
	cfg.Fuse.TrustWeights = nil
	if cfg.Validate() == nil {
		t.Error("empty trust table must be rejected")
	}

	cfg = DefaultConfig()
	cfg.Reid.MaxKeypoints = 4
	if cfg.Validate() == nil {
		t.Error("keypoint budget below the inlier floor must be rejected")
	}

	if _, err := NewEngine(Config{}, testLogger()); err == nil {
		t.Error("engine must reject a zero configuration")
	}
}
