package estimate

// PredictConfig controls how the per-tracker search center is projected
// forward before the estimators run.
type PredictConfig struct {
	// VelocityGain grows the velocity scale with tracker speed
	VelocityGain float32
	// VelocityScaleMax caps the speed dependent velocity factor
	VelocityScaleMax float32
}

// PredictCenter projects the tracker position forward by its velocity,
// scaled up with speed and capped, plus the global motion displacement
// discounted by its confidence.  The result is the search window center
// used by all per-candidate estimators this frame.
func PredictCenter(x, y, vx, vy float32, gm GlobalMotion, cfg PredictConfig) (float32, float32) {
	speed := hypot32(vx, vy)
	scale := clamp32(1+speed*cfg.VelocityGain, 1, cfg.VelocityScaleMax)
	g := clamp32(gm.Conf, 0, 1)

	return x + vx*scale + gm.DX*g, y + vy*scale + gm.DY*g
}
