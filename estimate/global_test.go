package estimate

import "testing"

func TestGlobalMotionShiftRecovery(t *testing.T) {
	prev := noiseFrame(320, 240, 0, 0)
	cur := noiseFrame(320, 240, 5, 3)

	e := NewGlobalEstimator(defaultGlobalConfig())
	gm := e.Estimate(prev, cur)

	if gm.DX != 5 || gm.DY != 3 {
		t.Errorf("global motion = (%f,%f), want (5,3)", gm.DX, gm.DY)
	}

	if gm.Conf <= 0.5 {
		t.Errorf("confidence = %f, want > 0.5 for a clean translation", gm.Conf)
	}

	if gm.Conf > 1 {
		t.Errorf("confidence = %f, must not exceed 1", gm.Conf)
	}
}

func TestGlobalMotionDeterministic(t *testing.T) {
	prev := noiseFrame(320, 240, 0, 0)
	cur := noiseFrame(320, 240, -4, 2)

	e := NewGlobalEstimator(defaultGlobalConfig())

	a := e.Estimate(prev, cur)
	b := e.Estimate(prev, cur)

	if a != b {
		t.Errorf("identical frame pairs gave different estimates: %+v vs %+v", a, b)
	}
}

func TestGlobalMotionMissingFrames(t *testing.T) {
	e := NewGlobalEstimator(defaultGlobalConfig())

	if gm := e.Estimate(nil, noiseFrame(64, 64, 0, 0)); gm.Conf != 0 {
		t.Error("missing previous frame should yield zero confidence")
	}
}

func TestGlobalMotionFlatFrameNoMatch(t *testing.T) {
	prev := asFrame(flatFrame(320, 240, 128))
	cur := asFrame(flatFrame(320, 240, 128))

	e := NewGlobalEstimator(defaultGlobalConfig())
	gm := e.Estimate(prev, cur)

	// zero variance patches produce no correlation scores at all
	if gm.Conf != 0 || gm.DX != 0 || gm.DY != 0 {
		t.Errorf("flat frames should yield zero motion, got %+v", gm)
	}
}
